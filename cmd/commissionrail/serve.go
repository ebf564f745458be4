package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/affiliate"
	"github.com/smallbiznis/commissionrail/internal/attribution"
	"github.com/smallbiznis/commissionrail/internal/audit"
	"github.com/smallbiznis/commissionrail/internal/auth"
	"github.com/smallbiznis/commissionrail/internal/authorization"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/commission"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/eligibility"
	"github.com/smallbiznis/commissionrail/internal/events"
	"github.com/smallbiznis/commissionrail/internal/fraud"
	"github.com/smallbiznis/commissionrail/internal/locking"
	"github.com/smallbiznis/commissionrail/internal/migration"
	"github.com/smallbiznis/commissionrail/internal/observability"
	"github.com/smallbiznis/commissionrail/internal/payout"
	"github.com/smallbiznis/commissionrail/internal/ratelimit"
	"github.com/smallbiznis/commissionrail/internal/server"
	"github.com/smallbiznis/commissionrail/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := newApp()
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newApp() *fx.App {
	return fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		locking.Module,
		events.Module,
		ratelimit.Module,

		// Domains
		audit.Module,
		affiliate.Module,
		attribution.Module,
		commission.Module,
		eligibility.Module,
		payout.Module,
		fraud.Module,

		auth.Module,
		authorization.Module,
		server.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

package main

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/auth"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/spf13/cobra"
)

// tokenCmd mints a bearer token signed with AUTH_JWT_SECRET for operators
// and local testing.
func tokenCmd() *cobra.Command {
	var (
		subject     string
		tenant      string
		role        string
		affiliateID string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := snowflake.ParseString(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			var affiliate snowflake.ID
			if affiliateID != "" {
				affiliate, err = snowflake.ParseString(affiliateID)
				if err != nil {
					return fmt.Errorf("invalid --affiliate: %w", err)
				}
			}

			verifier, err := auth.NewVerifier(config.Load(), clock.New())
			if err != nil {
				return err
			}
			raw, err := verifier.Sign(auth.Principal{
				Subject:     subject,
				TenantID:    tenantID,
				Role:        role,
				AffiliateID: affiliate,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "principal subject")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "admin, finance, reviewer, system or affiliate")
	cmd.Flags().StringVar(&affiliateID, "affiliate", "", "affiliate id for the affiliate role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

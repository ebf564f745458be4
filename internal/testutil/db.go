// Package testutil provides sqlite-backed fixtures for service tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	attributiondomain "github.com/smallbiznis/commissionrail/internal/attribution/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	auditrepository "github.com/smallbiznis/commissionrail/internal/audit/repository"
	auditservice "github.com/smallbiznis/commissionrail/internal/audit/service"
	"github.com/smallbiznis/commissionrail/internal/clock"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	frauddomain "github.com/smallbiznis/commissionrail/internal/fraud/domain"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	payoutdomain "github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&affiliatedomain.Affiliate{},
		&affiliatedomain.ReferralCode{},
		&affiliatedomain.PayoutMethod{},
		&affiliatedomain.TaxDocument{},
		&affiliatedomain.Program{},
		&attributiondomain.Touch{},
		&attributiondomain.CommissionPlan{},
		&attributiondomain.PlanAssignment{},
		&commissiondomain.CommissionEvent{},
		&payoutdomain.Payout{},
		&frauddomain.FraudAlert{},
		&auditdomain.AuditLog{},
	}
}

// NewDB opens an isolated in-memory database with the full schema. A single
// connection serialises concurrent transactions the way row locks would.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// TenantContext returns a context scoped to tenantID and acting as a user.
func TenantContext(tenantID snowflake.ID) context.Context {
	ctx := orgcontext.WithTenantID(context.Background(), tenantID)
	return orgcontext.WithActor(ctx, orgcontext.Actor{
		Type: orgcontext.ActorTypeUser,
		ID:   "reviewer-1",
		Role: "admin",
	})
}

// NewAudit returns an audit service writing to db.
func NewAudit(db *gorm.DB, node *snowflake.Node, clk clock.Clock) auditdomain.Service {
	return auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})
}

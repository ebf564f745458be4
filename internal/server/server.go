package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	attributiondomain "github.com/smallbiznis/commissionrail/internal/attribution/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/auth"
	"github.com/smallbiznis/commissionrail/internal/authorization"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/internal/config"
	eligibilitydomain "github.com/smallbiznis/commissionrail/internal/eligibility/domain"
	frauddomain "github.com/smallbiznis/commissionrail/internal/fraud/domain"
	"github.com/smallbiznis/commissionrail/internal/observability"
	obsmiddleware "github.com/smallbiznis/commissionrail/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/commissionrail/internal/observability/metrics"
	obstracing "github.com/smallbiznis/commissionrail/internal/observability/tracing"
	payoutdomain "github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/smallbiznis/commissionrail/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	verifier       *auth.Verifier
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	affiliateSvc   affiliatedomain.Service
	attributionSvc attributiondomain.Service
	commissionSvc  commissiondomain.Service
	eligibilitySvc eligibilitydomain.Service
	payoutSvc      payoutdomain.Service
	fraudSvc       frauddomain.Service
	ingestLimiter  *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	Verifier       *auth.Verifier
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	AffiliateSvc   affiliatedomain.Service
	AttributionSvc attributiondomain.Service
	CommissionSvc  commissiondomain.Service
	EligibilitySvc eligibilitydomain.Service
	PayoutSvc      payoutdomain.Service
	FraudSvc       frauddomain.Service
	IngestLimiter  *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		verifier:       p.Verifier,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		affiliateSvc:   p.AffiliateSvc,
		attributionSvc: p.AttributionSvc,
		commissionSvc:  p.CommissionSvc,
		eligibilitySvc: p.EligibilitySvc,
		payoutSvc:      p.PayoutSvc,
		fraudSvc:       p.FraudSvc,
		ingestLimiter:  p.IngestLimiter,
	}
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(auth.Middleware(s.verifier, s.log))

	api.POST("/affiliates", s.authorize(authorization.ObjectAffiliate, authorization.ActionCreate), s.CreateAffiliate)
	api.GET("/affiliates", s.authorize(authorization.ObjectAffiliate, authorization.ActionRead), s.ListAffiliates)
	api.GET("/affiliates/:id", s.authorize(authorization.ObjectAffiliate, authorization.ActionRead), s.GetAffiliate)
	api.PATCH("/affiliates/:id/status", s.authorize(authorization.ObjectAffiliate, authorization.ActionStatus), s.ChangeAffiliateStatus)

	api.POST("/affiliates/:id/referral-codes", s.authorize(authorization.ObjectAffiliate, authorization.ActionUpdate), s.CreateReferralCode)
	api.GET("/affiliates/:id/referral-codes", s.authorize(authorization.ObjectAffiliate, authorization.ActionRead), s.ListReferralCodes)
	api.DELETE("/affiliates/:id/referral-codes/:code_id", s.authorize(authorization.ObjectAffiliate, authorization.ActionUpdate), s.DeactivateReferralCode)
	api.GET("/affiliates/:id/referral-codes/:code_id/stats", s.authorize(authorization.ObjectAffiliate, authorization.ActionRead), s.GetTouchStats)

	api.POST("/affiliates/:id/payout-methods", s.authorize(authorization.ObjectAffiliate, authorization.ActionUpdate), s.AddPayoutMethod)
	api.GET("/affiliates/:id/payout-methods", s.authorize(authorization.ObjectAffiliate, authorization.ActionRead), s.ListPayoutMethods)
	api.POST("/affiliates/:id/payout-methods/:method_id/verify", s.authorize(authorization.ObjectAffiliate, authorization.ActionVerify), s.VerifyPayoutMethod)

	api.POST("/affiliates/:id/tax-documents", s.authorize(authorization.ObjectAffiliate, authorization.ActionUpdate), s.SubmitTaxDocument)
	api.POST("/affiliates/:id/tax-documents/:doc_id/verify", s.authorize(authorization.ObjectAffiliate, authorization.ActionVerify), s.VerifyTaxDocument)

	api.GET("/affiliates/:id/eligibility", s.authorize(authorization.ObjectEligibility, authorization.ActionRead), s.EvaluateEligibility)
	api.GET("/affiliates/:id/balance", s.authorize(authorization.ObjectCommission, authorization.ActionRead), s.GetBalance)

	api.GET("/program", s.authorize(authorization.ObjectProgram, authorization.ActionRead), s.GetProgram)
	api.PUT("/program", s.authorize(authorization.ObjectProgram, authorization.ActionUpdate), s.UpsertProgram)

	api.POST("/touches", s.authorize(authorization.ObjectAttribution, authorization.ActionIngest), s.limitIngest(), s.RecordTouch)
	api.POST("/conversions", s.authorize(authorization.ObjectAttribution, authorization.ActionIngest), s.limitIngest(), s.RecordConversion)
	api.POST("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionCreate), s.CreatePlan)
	api.GET("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionRead), s.ListPlans)
	api.POST("/plans/:id/assignments", s.authorize(authorization.ObjectPlan, authorization.ActionAssign), s.AssignPlan)

	api.POST("/commission-events", s.authorize(authorization.ObjectCommission, authorization.ActionCreate), s.CreateCommissionEvent)
	api.GET("/commission-events", s.authorize(authorization.ObjectCommission, authorization.ActionRead), s.ListCommissionEvents)
	api.GET("/commission-events/:id", s.authorize(authorization.ObjectCommission, authorization.ActionRead), s.GetCommissionEvent)
	api.POST("/commission-events/:id/approve", s.authorize(authorization.ObjectCommission, authorization.ActionApprove), s.ApproveCommissionEvent)
	api.POST("/commission-events/:id/reverse", s.authorize(authorization.ObjectCommission, authorization.ActionReverse), s.ReverseCommissionEvent)

	api.POST("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionRequest), s.RequestPayout)
	api.GET("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionRead), s.ListPayouts)
	api.GET("/payouts/:id", s.authorize(authorization.ObjectPayout, authorization.ActionRead), s.GetPayout)
	api.POST("/payouts/:id/complete", s.authorize(authorization.ObjectPayout, authorization.ActionComplete), s.CompletePayout)
	api.POST("/payouts/:id/reject", s.authorize(authorization.ObjectPayout, authorization.ActionComplete), s.RejectPayout)
	api.POST("/payouts/:id/outcome", s.authorize(authorization.ObjectPayout, authorization.ActionOutcome), s.ReportRailOutcome)

	api.POST("/fraud-alerts", s.authorize(authorization.ObjectFraud, authorization.ActionCreate), s.CreateFraudAlert)
	api.GET("/fraud-alerts", s.authorize(authorization.ObjectFraud, authorization.ActionRead), s.ListFraudAlerts)
	api.GET("/fraud-alerts/:id", s.authorize(authorization.ObjectFraud, authorization.ActionRead), s.GetFraudAlert)
	api.PATCH("/fraud-alerts/:id", s.authorize(authorization.ObjectFraud, authorization.ActionResolve), s.ResolveFraudAlert)

	api.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionRead), s.ListAuditLogs)
}

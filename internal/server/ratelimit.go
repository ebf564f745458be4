package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"go.uber.org/zap"
)

// limitIngest applies the per-tenant ingestion bucket. Redis failures fail
// open.
func (s *Server) limitIngest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ingestLimiter.Enabled() {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		tenantID, ok := orgcontext.TenantIDFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		res, err := s.ingestLimiter.AllowTenant(ctx, tenantID.String())
		if err != nil {
			s.log.Warn("ingest rate limiter unavailable", zap.String("tenant_id", tenantID.String()), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

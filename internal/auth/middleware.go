package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"go.uber.org/zap"
)

// Middleware authenticates the bearer token and places the tenant and actor
// on the request context. Failures are reported through c.Error so the
// server's error middleware renders them.
func Middleware(v *Verifier, log *zap.Logger) gin.HandlerFunc {
	log = log.Named("auth.middleware")
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			_ = c.Error(ErrMissingToken)
			c.Abort()
			return
		}

		principal, err := v.Verify(raw)
		if err != nil {
			log.Debug("bearer token rejected", zap.Error(err))
			_ = c.Error(err)
			c.Abort()
			return
		}

		ctx := orgcontext.WithTenantID(c.Request.Context(), principal.TenantID)
		ctx = orgcontext.WithActor(ctx, principal.Actor())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/commissionrail/internal/auth"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
)

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tenantID, ok := orgcontext.TenantIDFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(ctx, orgcontext.ActorFromContext(ctx), tenantID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// authorizeAffiliateScope confines affiliate principals to their own records.
// Staff roles pass through.
func authorizeAffiliateScope(c *gin.Context, affiliateID snowflake.ID) error {
	actor := orgcontext.ActorFromContext(c.Request.Context())
	if actor.Role != auth.RoleAffiliate {
		return nil
	}
	if actor.AffiliateID == 0 || actor.AffiliateID != affiliateID {
		return ErrForbidden
	}
	return nil
}

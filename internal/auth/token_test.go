package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newVerifier(t *testing.T) (*Verifier, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	v, err := NewVerifier(config.Config{AuthJWTSecret: "test-secret"}, clk)
	require.NoError(t, err)
	return v, clk
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(config.Config{AuthJWTSecret: "  "}, clock.New())
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestVerifyRoundTrip(t *testing.T) {
	v, _ := newVerifier(t)

	token, err := v.Sign(Principal{Subject: "u-1", TenantID: 42, Role: RoleFinance}, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.Subject)
	assert.Equal(t, snowflake.ID(42), got.TenantID)
	assert.Equal(t, RoleFinance, got.Role)
	assert.Equal(t, orgcontext.ActorTypeUser, got.Actor().Type)
}

func TestVerifyAffiliateRequiresAffiliateID(t *testing.T) {
	v, _ := newVerifier(t)

	token, err := v.Sign(Principal{Subject: "aff-user", TenantID: 42, Role: RoleAffiliate}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidClaims)

	token, err = v.Sign(Principal{Subject: "aff-user", TenantID: 42, Role: RoleAffiliate, AffiliateID: 7}, time.Hour)
	require.NoError(t, err)
	got, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(7), got.Actor().AffiliateID)
}

func TestVerifyRejects(t *testing.T) {
	v, clk := newVerifier(t)

	expiring, err := v.Sign(Principal{Subject: "u-1", TenantID: 42, Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)
	clk.Advance(5 * time.Minute)

	other, err := NewVerifier(config.Config{AuthJWTSecret: "other-secret"}, clk)
	require.NoError(t, err)
	foreign, err := other.Sign(Principal{Subject: "u-1", TenantID: 42, Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	badRole, err := v.Sign(Principal{Subject: "u-1", TenantID: 42, Role: "owner"}, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		TenantID: "42",
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "", want: ErrMissingToken},
		{name: "expired", token: expiring, want: ErrInvalidToken},
		{name: "wrong secret", token: foreign, want: ErrInvalidToken},
		{name: "alg none", token: unsigned, want: ErrInvalidToken},
		{name: "unknown role", token: badRole, want: ErrInvalidClaims},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(tc.token)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v, _ := newVerifier(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if last := c.Errors.Last(); last != nil && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": last.Err.Error()})
		}
	})
	r.Use(Middleware(v, zap.NewNop()))
	r.GET("/whoami", func(c *gin.Context) {
		tenantID, _ := orgcontext.TenantIDFromContext(c.Request.Context())
		actor := orgcontext.ActorFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID.String(), "actor": actor.ID, "role": actor.Role})
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing_bearer_token")
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := v.Sign(Principal{Subject: "reviewer-9", TenantID: 42, Role: RoleReviewer}, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tenant_id":"42","actor":"reviewer-9","role":"reviewer"}`, w.Body.String())
	})
}

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
)

const (
	RoleAdmin     = "admin"
	RoleFinance   = "finance"
	RoleReviewer  = "reviewer"
	RoleSystem    = "system"
	RoleAffiliate = "affiliate"
)

var (
	ErrMissingToken   = errors.New("missing_bearer_token")
	ErrInvalidToken   = errors.New("invalid_token")
	ErrInvalidClaims  = errors.New("invalid_token_claims")
	ErrSecretRequired = errors.New("auth_jwt_secret_required")
)

// Claims is the bearer token payload. AffiliateID is required for the
// affiliate role and ignored otherwise.
type Claims struct {
	TenantID    string `json:"tenant_id"`
	Role        string `json:"role"`
	AffiliateID string `json:"affiliate_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal is a verified caller.
type Principal struct {
	Subject     string
	TenantID    snowflake.ID
	Role        string
	AffiliateID snowflake.ID
}

func (p Principal) Actor() orgcontext.Actor {
	actorType := orgcontext.ActorTypeUser
	if p.Role == RoleSystem {
		actorType = orgcontext.ActorTypeSystem
	}
	return orgcontext.Actor{
		Type:        actorType,
		ID:          p.Subject,
		Role:        p.Role,
		AffiliateID: p.AffiliateID,
	}
}

// Verifier signs and verifies HS256 bearer tokens.
type Verifier struct {
	secret []byte
	clock  clock.Clock
	leeway time.Duration
}

func NewVerifier(cfg config.Config, clk clock.Clock) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		return nil, ErrSecretRequired
	}
	return &Verifier{
		secret: []byte(secret),
		clock:  clk,
		leeway: 30 * time.Second,
	}, nil
}

// Sign issues a token for p. It is used by the CLI and by tests.
func (v *Verifier) Sign(p Principal, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		TenantID: p.TenantID.String(),
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if p.AffiliateID != 0 {
		claims.AffiliateID = p.AffiliateID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func (v *Verifier) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	return principalFromClaims(claims)
}

func principalFromClaims(claims *Claims) (Principal, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Principal{}, ErrInvalidClaims
	}
	tenantID, err := snowflake.ParseString(strings.TrimSpace(claims.TenantID))
	if err != nil || tenantID == 0 {
		return Principal{}, ErrInvalidClaims
	}

	role := strings.ToLower(strings.TrimSpace(claims.Role))
	switch role {
	case RoleAdmin, RoleFinance, RoleReviewer, RoleSystem:
		return Principal{Subject: subject, TenantID: tenantID, Role: role}, nil
	case RoleAffiliate:
		affiliateID, err := snowflake.ParseString(strings.TrimSpace(claims.AffiliateID))
		if err != nil || affiliateID == 0 {
			return Principal{}, ErrInvalidClaims
		}
		return Principal{Subject: subject, TenantID: tenantID, Role: role, AffiliateID: affiliateID}, nil
	default:
		return Principal{}, ErrInvalidClaims
	}
}

package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/commissionrail/internal/config"
)

const keyIngestTenant = "ingest:tenant:%s"

// IngestLimiter throttles attribution ingestion per tenant. A nil limiter
// allows everything.
type IngestLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewIngestLimiter returns nil when redis is absent or the rate is unset.
func NewIngestLimiter(cfg config.Config, client *redis.Client) *IngestLimiter {
	if client == nil || cfg.IngestRatePerSecond <= 0 || cfg.IngestBurst <= 0 {
		return nil
	}
	return &IngestLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.IngestRatePerSecond,
		burst:  cfg.IngestBurst,
	}
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *IngestLimiter) AllowTenant(ctx context.Context, tenantID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestTenant, strings.TrimSpace(tenantID)), l.rate, l.burst)
}

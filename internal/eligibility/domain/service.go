package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Evaluate(ctx context.Context, affiliateID snowflake.ID) (Result, error)
}

var (
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidAffiliate = errors.New("invalid_affiliate")
	ErrNotFound         = errors.New("not_found")
)

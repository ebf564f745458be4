package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
)

type CreateAffiliateRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	ExternalID string `json:"external_id"`
}

type ListAffiliateRequest struct {
	pagination.Pagination
	Status string
}

type ListAffiliateResponse struct {
	pagination.PageInfo
	Affiliates []Affiliate `json:"affiliates"`
}

type ChangeStatusRequest struct {
	AffiliateID snowflake.ID
	Status      string `json:"status"`
	Reason      string `json:"reason"`
}

type CreateReferralCodeRequest struct {
	AffiliateID snowflake.ID
	Code        string `json:"code"`
}

type AddPayoutMethodRequest struct {
	AffiliateID snowflake.ID
	MethodType  string `json:"method_type"`
	Destination string `json:"destination"`
}

type SubmitTaxDocumentRequest struct {
	AffiliateID snowflake.ID
	TaxYear     int    `json:"tax_year"`
	FormType    string `json:"form_type"`
}

type UpsertProgramRequest struct {
	MinPayoutCents int64  `json:"min_payout_cents"`
	Currency       string `json:"currency"`
	AutoApprove    bool   `json:"auto_approve"`
}

type Service interface {
	Create(ctx context.Context, req CreateAffiliateRequest) (Affiliate, error)
	Get(ctx context.Context, id snowflake.ID) (Affiliate, error)
	List(ctx context.Context, req ListAffiliateRequest) (ListAffiliateResponse, error)
	ChangeStatus(ctx context.Context, req ChangeStatusRequest) (Affiliate, error)

	CreateReferralCode(ctx context.Context, req CreateReferralCodeRequest) (ReferralCode, error)
	ListReferralCodes(ctx context.Context, affiliateID snowflake.ID) ([]ReferralCode, error)
	DeactivateReferralCode(ctx context.Context, affiliateID, codeID snowflake.ID) error

	AddPayoutMethod(ctx context.Context, req AddPayoutMethodRequest) (PayoutMethod, error)
	VerifyPayoutMethod(ctx context.Context, affiliateID, methodID snowflake.ID) (PayoutMethod, error)
	ListPayoutMethods(ctx context.Context, affiliateID snowflake.ID) ([]PayoutMethod, error)

	SubmitTaxDocument(ctx context.Context, req SubmitTaxDocumentRequest) (TaxDocument, error)
	VerifyTaxDocument(ctx context.Context, affiliateID, docID snowflake.ID) (TaxDocument, error)

	GetProgram(ctx context.Context) (Program, error)
	UpsertProgram(ctx context.Context, req UpsertProgramRequest) (Program, error)
}

var (
	ErrInvalidTenant           = errors.New("invalid_tenant")
	ErrInvalidName             = errors.New("invalid_name")
	ErrInvalidEmail            = errors.New("invalid_email")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidStatusTransition = errors.New("invalid_status_transition")
	ErrInvalidReferralCode     = errors.New("invalid_referral_code")
	ErrReferralCodeTaken       = errors.New("referral_code_taken")
	ErrReferralCodeLimit       = errors.New("referral_code_limit_reached")
	ErrInvalidMethodType       = errors.New("invalid_method_type")
	ErrInvalidDestination      = errors.New("invalid_destination")
	ErrPayoutMethodExists      = errors.New("payout_method_exists")
	ErrInvalidTaxYear          = errors.New("invalid_tax_year")
	ErrInvalidFormType         = errors.New("invalid_form_type")
	ErrInvalidMinPayout        = errors.New("invalid_min_payout")
	ErrInvalidCurrency         = errors.New("invalid_currency")
	ErrAffiliateNotActive      = errors.New("affiliate_not_active")
	ErrNotFound                = errors.New("not_found")
)

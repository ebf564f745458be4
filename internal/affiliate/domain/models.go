package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

var statusTransitions = map[Status][]Status{
	StatusActive:    {StatusSuspended, StatusInactive},
	StatusSuspended: {StatusActive, StatusInactive},
}

func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive, true
	case StatusSuspended:
		return StatusSuspended, true
	case StatusInactive:
		return StatusInactive, true
	default:
		return "", false
	}
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MethodType names a disbursement rail.
type MethodType string

const (
	MethodStripeConnect MethodType = "stripe_connect"
	MethodPayPal        MethodType = "paypal"
	MethodBankWire      MethodType = "bank_wire"
	MethodCheck         MethodType = "check"
	MethodManual        MethodType = "manual"
)

func ParseMethodType(raw string) (MethodType, bool) {
	switch MethodType(strings.ToLower(strings.TrimSpace(raw))) {
	case MethodStripeConnect:
		return MethodStripeConnect, true
	case MethodPayPal:
		return MethodPayPal, true
	case MethodBankWire:
		return MethodBankWire, true
	case MethodCheck:
		return MethodCheck, true
	case MethodManual:
		return MethodManual, true
	default:
		return "", false
	}
}

// IsManual reports whether the rail settles outside the system and needs
// reviewer completion.
func (m MethodType) IsManual() bool {
	switch m {
	case MethodBankWire, MethodCheck, MethodManual:
		return true
	default:
		return false
	}
}

type Affiliate struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name       string       `gorm:"not null" json:"name"`
	Email      string       `gorm:"not null" json:"email"`
	ExternalID string       `gorm:"column:external_id" json:"external_id,omitempty"`
	Status     Status       `gorm:"type:text;not null" json:"status"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (a Affiliate) IsActive() bool {
	return a.Status == StatusActive
}

type ReferralCode struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;uniqueIndex:ux_referral_codes_tenant_code" json:"tenant_id"`
	AffiliateID snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	Code        string       `gorm:"not null;uniqueIndex:ux_referral_codes_tenant_code" json:"code"`
	IsActive    bool         `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

type PayoutMethod struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;uniqueIndex:ux_payout_methods_affiliate_type" json:"tenant_id"`
	AffiliateID snowflake.ID `gorm:"not null;uniqueIndex:ux_payout_methods_affiliate_type" json:"affiliate_id"`
	MethodType  MethodType   `gorm:"type:text;not null;uniqueIndex:ux_payout_methods_affiliate_type" json:"method_type"`
	Destination string       `gorm:"not null" json:"destination"`
	IsVerified  bool         `gorm:"not null" json:"is_verified"`
	VerifiedAt  *time.Time   `json:"verified_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

type TaxDocument struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	AffiliateID snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	TaxYear     int          `gorm:"not null" json:"tax_year"`
	FormType    string       `gorm:"not null" json:"form_type"`
	IsVerified  bool         `gorm:"not null" json:"is_verified"`
	VerifiedAt  *time.Time   `json:"verified_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

// Program is the tenant's affiliate program configuration.
type Program struct {
	TenantID       snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"tenant_id"`
	MinPayoutCents int64        `gorm:"not null" json:"min_payout_cents"`
	Currency       string       `gorm:"not null" json:"currency"`
	AutoApprove    bool         `gorm:"not null" json:"auto_approve"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (Program) TableName() string {
	return "affiliate_programs"
}

const fallbackCurrency = "USD"

// SettlementCurrency is the single currency a tenant accrues and pays out
// in: the program's, else the configured default, else USD.
func SettlementCurrency(program *Program, configured string) string {
	if program != nil && program.Currency != "" {
		return program.Currency
	}
	if c := strings.ToUpper(strings.TrimSpace(configured)); c != "" {
		return c
	}
	return fallbackCurrency
}

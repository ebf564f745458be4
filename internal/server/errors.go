package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	attributiondomain "github.com/smallbiznis/commissionrail/internal/attribution/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/auth"
	"github.com/smallbiznis/commissionrail/internal/authorization"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	eligibilitydomain "github.com/smallbiznis/commissionrail/internal/eligibility/domain"
	frauddomain "github.com/smallbiznis/commissionrail/internal/fraud/domain"
	payoutdomain "github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var payoutErr *payoutdomain.Error
	if errors.As(err, &payoutErr) {
		return mapPayoutError(payoutErr)
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidClaims):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict), isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func mapPayoutError(err *payoutdomain.Error) (int, errorPayload) {
	payload := errorPayload{
		Type:    strings.ToLower(string(err.Code)),
		Message: err.Reason,
	}
	if payload.Message == "" {
		payload.Message = strings.ToLower(string(err.Code))
	}

	switch err.Code {
	case payoutdomain.CodeValidation:
		payload.Errors = []ValidationError{{
			Field:   validationErrorField(err.Reason),
			Code:    err.Reason,
			Message: validationErrorMessage(err.Reason),
		}}
		return http.StatusBadRequest, payload
	case payoutdomain.CodeInsufficientBalance:
		return http.StatusConflict, payload
	case payoutdomain.CodeIneligible, payoutdomain.CodeNoVerifiedMethod:
		return http.StatusUnprocessableEntity, payload
	case payoutdomain.CodeRailFailure:
		return http.StatusBadGateway, payload
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isValidationError(err error) bool {
	return isAny(err,
		ErrInvalidRequest,
		pagination.ErrInvalidPageToken,
		affiliatedomain.ErrInvalidTenant,
		affiliatedomain.ErrInvalidName,
		affiliatedomain.ErrInvalidEmail,
		affiliatedomain.ErrInvalidStatus,
		affiliatedomain.ErrInvalidReferralCode,
		affiliatedomain.ErrInvalidMethodType,
		affiliatedomain.ErrInvalidDestination,
		affiliatedomain.ErrInvalidTaxYear,
		affiliatedomain.ErrInvalidFormType,
		affiliatedomain.ErrInvalidMinPayout,
		affiliatedomain.ErrInvalidCurrency,
		attributiondomain.ErrInvalidTenant,
		attributiondomain.ErrInvalidReferralCode,
		attributiondomain.ErrInvalidTouchType,
		attributiondomain.ErrInvalidPlanName,
		attributiondomain.ErrInvalidPlanType,
		attributiondomain.ErrInvalidPlanAmount,
		attributiondomain.ErrInvalidWindow,
		attributiondomain.ErrInvalidAmount,
		attributiondomain.ErrInvalidOccurredAt,
		commissiondomain.ErrInvalidTenant,
		commissiondomain.ErrInvalidAffiliate,
		commissiondomain.ErrInvalidAmount,
		commissiondomain.ErrInvalidCurrency,
		commissiondomain.ErrCurrencyMismatch,
		commissiondomain.ErrInvalidOccurredAt,
		commissiondomain.ErrInvalidStatus,
		commissiondomain.ErrInvalidReason,
		eligibilitydomain.ErrInvalidTenant,
		eligibilitydomain.ErrInvalidAffiliate,
		payoutdomain.ErrInvalidTenant,
		payoutdomain.ErrInvalidStatus,
		payoutdomain.ErrInvalidReference,
		payoutdomain.ErrInvalidReason,
		frauddomain.ErrInvalidTenant,
		frauddomain.ErrInvalidAffiliate,
		frauddomain.ErrInvalidAlertType,
		frauddomain.ErrInvalidSeverity,
		frauddomain.ErrInvalidStatus,
		frauddomain.ErrInvalidAction,
		frauddomain.ErrInvalidCommission,
		auditdomain.ErrInvalidTenant,
		auditdomain.ErrInvalidAction,
	)
}

func isNotFoundError(err error) bool {
	return isAny(err,
		ErrNotFound,
		affiliatedomain.ErrNotFound,
		attributiondomain.ErrNotFound,
		commissiondomain.ErrNotFound,
		eligibilitydomain.ErrNotFound,
		payoutdomain.ErrNotFound,
		frauddomain.ErrNotFound,
		gorm.ErrRecordNotFound,
	)
}

func isConflictError(err error) bool {
	return isAny(err,
		affiliatedomain.ErrInvalidStatusTransition,
		affiliatedomain.ErrReferralCodeTaken,
		affiliatedomain.ErrPayoutMethodExists,
		attributiondomain.ErrOverlappingAssignment,
		commissiondomain.ErrInvalidTransition,
		commissiondomain.ErrTerminalState,
		commissiondomain.ErrEventClaimed,
		commissiondomain.ErrConcurrentUpdate,
		payoutdomain.ErrInvalidTransition,
		payoutdomain.ErrTerminalState,
		frauddomain.ErrInvalidTransition,
		frauddomain.ErrAlreadyResolved,
		frauddomain.ErrConcurrentResolution,
	)
}

func isUnprocessableError(err error) bool {
	return isAny(err,
		affiliatedomain.ErrReferralCodeLimit,
		affiliatedomain.ErrAffiliateNotActive,
		attributiondomain.ErrReferralCodeInactive,
		attributiondomain.ErrNoActivePlan,
		attributiondomain.ErrZeroCommission,
		attributiondomain.ErrAffiliateNotActive,
		frauddomain.ErrActionRequiresFraud,
		frauddomain.ErrReverseRequiresFraud,
		frauddomain.ErrNoLinkedEvent,
	)
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

package domain

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeIneligible          Code = "INELIGIBLE"
	CodeNoVerifiedMethod    Code = "NO_VERIFIED_METHOD"
	CodeRailFailure         Code = "RAIL_FAILURE"
	CodeInternal            Code = "INTERNAL"
)

// Error is a coded payout rejection. Reason is the caller-facing detail.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any Error with the same code, so errors.Is(err, ErrRailFailure)
// holds regardless of reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Reason == "" || t.Reason == e.Reason)
}

func NewError(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

func WrapError(code Code, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

var (
	ErrValidation          = &Error{Code: CodeValidation}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance}
	ErrIneligible          = &Error{Code: CodeIneligible}
	ErrNoVerifiedMethod    = &Error{Code: CodeNoVerifiedMethod}
	ErrRailFailure         = &Error{Code: CodeRailFailure}
	ErrInternal            = &Error{Code: CodeInternal}
)

// Lifecycle command errors, outside the request taxonomy.
var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidReference  = errors.New("invalid_reference_number")
	ErrInvalidReason     = errors.New("invalid_reason")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrTerminalState     = errors.New("payout_terminal")
	ErrNotFound          = errors.New("not_found")
)

package order

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonInvalidSize         Reason = "invalid_size"
	ReasonMissingField        Reason = "missing_field"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonInvalidLeverage     Reason = "invalid_leverage"
	ReasonInvalidSide         Reason = "invalid_side"
	ReasonInvalidType         Reason = "invalid_order_type"
	ReasonInvalidTimeInForce  Reason = "invalid_time_in_force"
	ReasonUnknownInstrument   Reason = "unknown_instrument"
)

// ValidationError is the rejection returned by Validate. It is always
// recoverable; the caller maps Code() to a user-facing message.
type ValidationError struct {
	Reason Reason
	Field  string
	Detail string
}

// Code is the machine-readable reason, e.g. "missing_field:limit_price".
func (e *ValidationError) Code() string {
	if e.Reason == ReasonMissingField && e.Field != "" {
		return string(e.Reason) + ":" + e.Field
	}
	return string(e.Reason)
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "order rejected: " + e.Code()
	}
	return fmt.Sprintf("order rejected: %s: %s", e.Code(), e.Detail)
}

func reject(r Reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

func missing(field string) *ValidationError {
	return &ValidationError{Reason: ReasonMissingField, Field: field}
}

// IsReason reports whether err is a ValidationError with reason r.
func IsReason(err error, r Reason) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return ve.Reason == r
}

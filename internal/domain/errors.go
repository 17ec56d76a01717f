package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrAllocationConflict = errors.New("reference allocation conflict")
	ErrRetriesExhausted   = errors.New("retries exhausted, try again later")
	ErrPolicyOverride     = errors.New("policy override required")
	ErrReversalMismatch   = errors.New("reversal mismatch")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every offending field of a rejected request.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// OrNil returns e as an error when it holds at least one field, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewFieldError builds a single-field validation error.
func NewFieldError(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

type WarningCode string

const (
	WarnNegativeWallet    WarningCode = "negative_wallet"
	WarnCreditLimit       WarningCode = "credit_limit_exceeded"
	WarnNegativeCreditUse WarningCode = "negative_credit_used"
	WarnNegativeTill      WarningCode = "negative_till"
)

// PolicyWarning describes a balance left outside policy by a mutation.
type PolicyWarning struct {
	Code     WarningCode     `json:"code"`
	Account  Account         `json:"account"`
	EntityID int64           `json:"entity_id,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
	Limit    decimal.Decimal `json:"limit"`
	Message  string          `json:"message"`
}

type PolicyWarnings []PolicyWarning

func (w PolicyWarnings) Value() (driver.Value, error) {
	if w == nil {
		w = PolicyWarnings{}
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (w *PolicyWarnings) Scan(src any) error {
	return scanJSON(src, w)
}

// PolicyError rejects a mutation that needs an explicit override.
type PolicyError struct {
	Warnings PolicyWarnings
}

func (e *PolicyError) Error() string {
	msgs := make([]string, 0, len(e.Warnings))
	for _, w := range e.Warnings {
		msgs = append(msgs, w.Message)
	}
	return fmt.Sprintf("%s: %s", ErrPolicyOverride, strings.Join(msgs, "; "))
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicyOverride
}

// PolicyAlert is published when a mutation went through with an override.
type PolicyAlert struct {
	TransactionID int64          `json:"transaction_id"`
	RefNo         string         `json:"ref_no"`
	Operation     string         `json:"operation"`
	Warnings      PolicyWarnings `json:"warnings"`
}

package effect

import (
	"fmt"
	"strconv"
	"strings"

	"tripledger/internal/domain"
)

// RuleContext selects which input fields apply. It is passed explicitly so
// that callers never depend on shared form state.
type RuleContext struct {
	Type      domain.TxnType   `json:"type" form:"type"`
	Direction domain.Direction `json:"refund_direction,omitempty" form:"refund_direction"`
	PayType   domain.PayType   `json:"pay_type,omitempty" form:"pay_type"`
}

// FieldRule describes one input field for a rule context.
type FieldRule struct {
	Field    string   `json:"field"`
	Required bool     `json:"required"`
	Allowed  []string `json:"allowed,omitempty"`
}

var (
	txnTypes      = []string{string(payment), string(receipt), string(refund), string(transfer)}
	tillModes     = []string{string(domain.ModeCash), string(domain.ModeOnline)}
	settleModes   = []string{string(domain.ModeCash), string(domain.ModeOnline), string(domain.ModeWallet), string(domain.ModeCredit)}
	refundOut     = []string{string(domain.ModeCash), string(domain.ModeOnline), string(domain.ModeServiceAvailed), string(domain.ModeWallet), string(domain.ModeCredit)}
	transferModes = []string{string(domain.ModeWallet), string(domain.ModeCredit)}
	directions    = []string{string(dirIn), string(dirOut)}
	paymentTypes  = []string{"", string(domain.PayCashWithdrawal), string(domain.PayCashDeposit), string(domain.PayOtherExpense), string(domain.PayRefund), string(domain.PayServiceAvailed)}
	receiptTypes  = []string{"", string(domain.PayOtherReceipt), string(domain.PayRefund), string(domain.PayServiceAvailed)}
)

// RequiredFields lists the fields a transaction of the given context takes.
// Fields not listed must be left empty.
func RequiredFields(rc RuleContext) []FieldRule {
	fields := []FieldRule{
		{Field: "type", Required: true, Allowed: txnTypes},
		{Field: "date", Required: true},
		{Field: "amount", Required: true},
	}

	switch rc.Type {
	case payment:
		modes := tillModes
		if rc.PayType == domain.PayServiceAvailed {
			modes = settleModes
		}
		needsEntity := rc.PayType == domain.PayCashWithdrawal || rc.PayType == domain.PayServiceAvailed
		fields = append(fields,
			FieldRule{Field: "mode", Required: true, Allowed: modes},
			FieldRule{Field: "pay_type", Allowed: paymentTypes},
			FieldRule{Field: "entity_id", Required: needsEntity},
			FieldRule{Field: "deduct_from_account"},
		)
	case receipt:
		modes := tillModes
		if rc.PayType == domain.PayServiceAvailed {
			modes = settleModes
		}
		fields = append(fields,
			FieldRule{Field: "mode", Required: true, Allowed: modes},
			FieldRule{Field: "pay_type", Allowed: receiptTypes},
			FieldRule{Field: "entity_id", Required: rc.PayType == domain.PayServiceAvailed},
			FieldRule{Field: "credit_to_account"},
		)
	case refund:
		fields = append(fields, FieldRule{Field: "refund_direction", Required: true, Allowed: directions})
		switch rc.Direction {
		case dirOut:
			fields = append(fields,
				FieldRule{Field: "to_entity_id"},
				FieldRule{Field: "mode_from", Required: true, Allowed: refundOut},
				FieldRule{Field: "deduct_from_account"},
				FieldRule{Field: "credit_to_account"},
			)
		case dirIn:
			fields = append(fields,
				FieldRule{Field: "from_entity_id"},
				FieldRule{Field: "mode_from", Required: true, Allowed: settleModes},
				FieldRule{Field: "mode_to", Allowed: tillModes},
			)
		}
	case transfer:
		fields = append(fields,
			FieldRule{Field: "from_entity_id", Required: true},
			FieldRule{Field: "to_entity_id", Required: true},
			FieldRule{Field: "mode_from", Allowed: transferModes},
			FieldRule{Field: "mode_to", Allowed: transferModes},
		)
	}
	return fields
}

// inputFields is every field RequiredFields may name, in report order.
var inputFields = []string{
	"type", "date", "amount", "refund_direction", "entity_id", "from_entity_id", "to_entity_id",
	"mode", "mode_from", "mode_to", "pay_type", "deduct_from_account", "credit_to_account",
}

func fieldValue(in domain.TransactionInput, name string) (string, bool) {
	switch name {
	case "type":
		return string(in.Type), in.Type != ""
	case "date":
		return in.Date.Format("2006-01-02"), !in.Date.IsZero()
	case "amount":
		return in.Amount.String(), !in.Amount.IsZero()
	case "refund_direction":
		return string(in.Direction), in.Direction != ""
	case "entity_id":
		return idValue(in.EntityID)
	case "from_entity_id":
		return idValue(in.FromEntityID)
	case "to_entity_id":
		return idValue(in.ToEntityID)
	case "mode":
		return string(in.Mode), in.Mode != ""
	case "mode_from":
		return string(in.ModeFrom), in.ModeFrom != ""
	case "mode_to":
		return string(in.ModeTo), in.ModeTo != ""
	case "pay_type":
		return string(in.PayType), in.PayType != ""
	case "deduct_from_account":
		return strconv.FormatBool(in.DeductFromAccount), in.DeductFromAccount
	case "credit_to_account":
		return strconv.FormatBool(in.CreditToAccount), in.CreditToAccount
	}
	return "", false
}

func idValue(id *int64) (string, bool) {
	if id == nil {
		return "", false
	}
	return strconv.FormatInt(*id, 10), true
}

// ValidateInput checks the shape of a transaction input against its rule
// context and reports every offending field at once.
func ValidateInput(in domain.TransactionInput) error {
	verr := &domain.ValidationError{}
	if !in.Type.Valid() {
		verr.Add("type", "must be one of "+strings.Join(txnTypes, ", "))
		return verr
	}

	rc := RuleContext{Type: in.Type, Direction: in.Direction, PayType: in.PayType}
	known := map[string]FieldRule{}
	for _, f := range RequiredFields(rc) {
		known[f.Field] = f
	}

	for _, name := range inputFields {
		f, ok := known[name]
		v, set := fieldValue(in, name)
		switch {
		case !ok && set:
			verr.Add(name, fmt.Sprintf("is not used by %s", describe(rc)))
		case ok && f.Required && !set:
			verr.Add(name, "is required")
		case ok && set && len(f.Allowed) > 0 && !contains(f.Allowed, v):
			verr.Add(name, "must be one of "+strings.Join(nonEmpty(f.Allowed), ", "))
		}
	}

	if in.Amount.IsNegative() {
		verr.Add("amount", "must be greater than zero")
	} else if !in.Amount.Equal(in.Amount.Round(2)) {
		verr.Add("amount", "must have at most 2 decimal places")
	}
	if in.DeductFromAccount && in.CreditToAccount {
		verr.Add("credit_to_account", "cannot be combined with deduct_from_account")
	}
	if in.Type == transfer && in.FromEntityID != nil && in.ToEntityID != nil && *in.FromEntityID == *in.ToEntityID {
		verr.Add("to_entity_id", "must differ from from_entity_id")
	}

	return verr.OrNil()
}

func describe(rc RuleContext) string {
	s := string(rc.Type)
	if rc.Direction != "" {
		s += " " + string(rc.Direction)
	}
	if rc.PayType != "" {
		s += " " + string(rc.PayType)
	}
	return s
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func nonEmpty(list []string) []string {
	out := make([]string, 0, len(list))
	for _, x := range list {
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}

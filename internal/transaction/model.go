package transaction

import (
	"time"

	"tripledger/internal/api"
	"tripledger/internal/domain"
	"tripledger/internal/effect"

	"github.com/shopspring/decimal"
)

// TransactionRequest is the body of create and amend calls. Which optional
// fields apply depends on type, pay_type and refund_direction; see
// GET /transactions/rules.
type TransactionRequest struct {
	Type              string          `json:"type" validate:"required,oneof=payment receipt refund wallet_transfer"`
	Date              string          `json:"date" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
	EntityID          *int64          `json:"entity_id,omitempty" validate:"omitempty,gt=0"`
	FromEntityID      *int64          `json:"from_entity_id,omitempty" validate:"omitempty,gt=0"`
	ToEntityID        *int64          `json:"to_entity_id,omitempty" validate:"omitempty,gt=0"`
	Mode              string          `json:"mode,omitempty"`
	ModeFrom          string          `json:"mode_from,omitempty"`
	ModeTo            string          `json:"mode_to,omitempty"`
	PayType           string          `json:"pay_type,omitempty"`
	RefundDirection   string          `json:"refund_direction,omitempty" validate:"omitempty,oneof=incoming outgoing"`
	DeductFromAccount bool            `json:"deduct_from_account"`
	CreditToAccount   bool            `json:"credit_to_account"`
	Description       string          `json:"description,omitempty" validate:"max=500"`
	Override          bool            `json:"override"`
}

func (r *TransactionRequest) ToInput() (domain.TransactionInput, error) {
	date, err := time.Parse(api.DateLayout, r.Date)
	if err != nil {
		return domain.TransactionInput{}, domain.NewFieldError("date", "must be a date formatted as YYYY-MM-DD")
	}

	return domain.TransactionInput{
		Type:              domain.TxnType(r.Type),
		Date:              date,
		Amount:            r.Amount,
		EntityID:          r.EntityID,
		FromEntityID:      r.FromEntityID,
		ToEntityID:        r.ToEntityID,
		Mode:              domain.Mode(r.Mode),
		ModeFrom:          domain.Mode(r.ModeFrom),
		ModeTo:            domain.Mode(r.ModeTo),
		PayType:           domain.PayType(r.PayType),
		Direction:         domain.Direction(r.RefundDirection),
		DeductFromAccount: r.DeductFromAccount,
		CreditToAccount:   r.CreditToAccount,
		Description:       r.Description,
	}, nil
}

type ReverseRequest struct {
	Override bool `json:"override"`
}

type RulesResponse struct {
	Context effect.RuleContext `json:"context"`
	Fields  []effect.FieldRule `json:"fields"`
}

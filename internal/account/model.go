package account

import (
	"github.com/shopspring/decimal"
)

type CreateEntityRequest struct {
	Kind                string           `json:"kind" validate:"required,oneof=customer agent partner other"`
	Name                string           `json:"name" validate:"required,max=200"`
	Phone               string           `json:"phone" validate:"max=40"`
	Email               string           `json:"email" validate:"omitempty,email"`
	CreditLimit         *decimal.Decimal `json:"credit_limit,omitempty"`
	AllowNegativeWallet bool             `json:"allow_negative_wallet"`
}

// UpdateEntityRequest changes descriptive fields and limits. Balances are
// only ever changed by transactions.
type UpdateEntityRequest struct {
	Name                *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Phone               *string          `json:"phone,omitempty" validate:"omitempty,max=40"`
	Email               *string          `json:"email,omitempty" validate:"omitempty,email"`
	CreditLimit         *decimal.Decimal `json:"credit_limit,omitempty"`
	AllowNegativeWallet *bool            `json:"allow_negative_wallet,omitempty"`
}

type TillResponse struct {
	Cash   decimal.Decimal `json:"cash"`
	Online decimal.Decimal `json:"online"`
	Total  decimal.Decimal `json:"total"`
}

type TillModeResponse struct {
	Mode    string          `json:"mode"`
	Balance decimal.Decimal `json:"balance"`
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntityKind string

const (
	KindCustomer EntityKind = "customer"
	KindAgent    EntityKind = "agent"
	KindPartner  EntityKind = "partner"
	KindOther    EntityKind = "other"
)

func (k EntityKind) Valid() bool {
	switch k {
	case KindCustomer, KindAgent, KindPartner, KindOther:
		return true
	}
	return false
}

// HasCreditLine reports whether entities of this kind carry a credit limit.
func (k EntityKind) HasCreditLine() bool {
	return k == KindCustomer || k == KindAgent
}

// Entity is a business party holding a wallet and, for customers and agents, a credit line.
type Entity struct {
	ID                  int64           `db:"id" json:"id"`
	Kind                EntityKind      `db:"kind" json:"kind"`
	Name                string          `db:"name" json:"name"`
	Phone               string          `db:"phone" json:"phone"`
	Email               string          `db:"email" json:"email"`
	WalletBalance       decimal.Decimal `db:"wallet_balance" json:"wallet_balance"`
	CreditLimit         decimal.Decimal `db:"credit_limit" json:"credit_limit"`
	CreditUsed          decimal.Decimal `db:"credit_used" json:"credit_used"`
	AllowNegativeWallet bool            `db:"allow_negative_wallet" json:"allow_negative_wallet"`
	Active              bool            `db:"active" json:"active"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// CreditAvailable is the unused part of the credit line, never below zero.
func (e *Entity) CreditAvailable() decimal.Decimal {
	avail := e.CreditLimit.Sub(e.CreditUsed)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

type EntityFilter struct {
	Kind            EntityKind
	IncludeInactive bool
}

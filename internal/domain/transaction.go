package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxnType string

const (
	TxnPayment        TxnType = "payment"
	TxnReceipt        TxnType = "receipt"
	TxnRefund         TxnType = "refund"
	TxnWalletTransfer TxnType = "wallet_transfer"
)

func (t TxnType) Valid() bool {
	switch t {
	case TxnPayment, TxnReceipt, TxnRefund, TxnWalletTransfer:
		return true
	}
	return false
}

// Mode is the settlement channel of one leg.
type Mode string

const (
	ModeCash           Mode = "cash"
	ModeOnline         Mode = "online"
	ModeWallet         Mode = "wallet"
	ModeCredit         Mode = "credit"
	ModeServiceAvailed Mode = "service_availed"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeCash, ModeOnline, ModeWallet, ModeCredit, ModeServiceAvailed:
		return true
	}
	return false
}

// IsTill reports whether the mode settles through the company till.
func (m Mode) IsTill() bool {
	return m == ModeCash || m == ModeOnline
}

func (m Mode) TillMode() TillMode {
	if m == ModeOnline {
		return TillOnline
	}
	return TillCash
}

type PayType string

const (
	PayCashWithdrawal PayType = "cash_withdrawal"
	PayCashDeposit    PayType = "cash_deposit"
	PayOtherExpense   PayType = "other_expense"
	PayOtherReceipt   PayType = "other_receipt"
	PayRefund         PayType = "refund"
	PayServiceAvailed PayType = "service_availed"
)

func (p PayType) Valid() bool {
	switch p {
	case "", PayCashWithdrawal, PayCashDeposit, PayOtherExpense, PayOtherReceipt, PayRefund, PayServiceAvailed:
		return true
	}
	return false
}

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

type TxnStatus string

const (
	StatusActive   TxnStatus = "active"
	StatusReversed TxnStatus = "reversed"
)

// Leg marks a transaction that belongs to a booking.
type Leg string

const (
	LegNone           Leg = ""
	LegCustomerCharge Leg = "customer_charge"
	LegAgentPayment   Leg = "agent_payment"
	LegCustomerRefund Leg = "customer_refund"
	LegAgentRecovery  Leg = "agent_recovery"
)

// TransactionInput is the caller-controlled part of a transaction.
type TransactionInput struct {
	Type              TxnType         `json:"type"`
	Date              time.Time       `json:"date"`
	Amount            decimal.Decimal `json:"amount"`
	EntityID          *int64          `json:"entity_id,omitempty"`
	FromEntityID      *int64          `json:"from_entity_id,omitempty"`
	ToEntityID        *int64          `json:"to_entity_id,omitempty"`
	Mode              Mode            `json:"mode,omitempty"`
	ModeFrom          Mode            `json:"mode_from,omitempty"`
	ModeTo            Mode            `json:"mode_to,omitempty"`
	PayType           PayType         `json:"pay_type,omitempty"`
	Direction         Direction       `json:"refund_direction,omitempty"`
	DeductFromAccount bool            `json:"deduct_from_account"`
	CreditToAccount   bool            `json:"credit_to_account"`
	Description       string          `json:"description,omitempty"`
}

// Transaction is a persisted, applied transaction together with the deltas it caused.
type Transaction struct {
	ID                int64           `db:"id" json:"id"`
	RefNo             string          `db:"ref_no" json:"ref_no"`
	Type              TxnType         `db:"type" json:"type"`
	Date              time.Time       `db:"txn_date" json:"date"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	EntityID          *int64          `db:"entity_id" json:"entity_id,omitempty"`
	FromEntityID      *int64          `db:"from_entity_id" json:"from_entity_id,omitempty"`
	ToEntityID        *int64          `db:"to_entity_id" json:"to_entity_id,omitempty"`
	Mode              Mode            `db:"mode" json:"mode,omitempty"`
	ModeFrom          Mode            `db:"mode_from" json:"mode_from,omitempty"`
	ModeTo            Mode            `db:"mode_to" json:"mode_to,omitempty"`
	PayType           PayType         `db:"pay_type" json:"pay_type,omitempty"`
	Direction         Direction       `db:"refund_direction" json:"refund_direction,omitempty"`
	DeductFromAccount bool            `db:"deduct_from_account" json:"deduct_from_account"`
	CreditToAccount   bool            `db:"credit_to_account" json:"credit_to_account"`
	Description       string          `db:"description" json:"description"`
	AppliedDeltas     Deltas          `db:"applied_deltas" json:"applied_deltas"`
	PolicyOverrides   PolicyWarnings  `db:"policy_overrides" json:"policy_overrides,omitempty"`
	Status            TxnStatus       `db:"status" json:"status"`
	BookingID         *int64          `db:"booking_id" json:"booking_id,omitempty"`
	Leg               Leg             `db:"leg" json:"leg,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	ReversedAt        *time.Time      `db:"reversed_at" json:"reversed_at,omitempty"`
}

// Input returns the caller-controlled fields of t.
func (t *Transaction) Input() TransactionInput {
	return TransactionInput{
		Type:              t.Type,
		Date:              t.Date,
		Amount:            t.Amount,
		EntityID:          t.EntityID,
		FromEntityID:      t.FromEntityID,
		ToEntityID:        t.ToEntityID,
		Mode:              t.Mode,
		ModeFrom:          t.ModeFrom,
		ModeTo:            t.ModeTo,
		PayType:           t.PayType,
		Direction:         t.Direction,
		DeductFromAccount: t.DeductFromAccount,
		CreditToAccount:   t.CreditToAccount,
		Description:       t.Description,
	}
}

// SetInput overwrites the caller-controlled fields of t.
func (t *Transaction) SetInput(in TransactionInput) {
	t.Type = in.Type
	t.Date = in.Date
	t.Amount = in.Amount
	t.EntityID = in.EntityID
	t.FromEntityID = in.FromEntityID
	t.ToEntityID = in.ToEntityID
	t.Mode = in.Mode
	t.ModeFrom = in.ModeFrom
	t.ModeTo = in.ModeTo
	t.PayType = in.PayType
	t.Direction = in.Direction
	t.DeductFromAccount = in.DeductFromAccount
	t.CreditToAccount = in.CreditToAccount
	t.Description = in.Description
}

// EntityIDs returns every entity referenced by the input.
func (in TransactionInput) EntityIDs() []int64 {
	var ids []int64
	for _, p := range []*int64{in.EntityID, in.FromEntityID, in.ToEntityID} {
		if p != nil {
			ids = append(ids, *p)
		}
	}
	return ids
}

type TransactionFilter struct {
	Type      TxnType
	EntityID  int64
	Status    TxnStatus
	BookingID int64
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Options tune how a mutation treats policy warnings.
type Options struct {
	Override bool
}

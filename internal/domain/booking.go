package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingKind string

const (
	BookingTicket  BookingKind = "ticket"
	BookingService BookingKind = "service"
)

func (k BookingKind) Valid() bool {
	return k == BookingTicket || k == BookingService
}

type BookingStatus string

const (
	BookingBooked    BookingStatus = "booked"
	BookingCancelled BookingStatus = "cancelled"
	BookingDeleted   BookingStatus = "deleted"
)

// Booking pairs a customer charge with an optional agent payment under one reference.
type Booking struct {
	ID                   int64           `db:"id" json:"id"`
	RefNo                string          `db:"ref_no" json:"ref_no"`
	Kind                 BookingKind     `db:"kind" json:"kind"`
	BookingDate          time.Time       `db:"booking_date" json:"booking_date"`
	CustomerID           int64           `db:"customer_id" json:"customer_id"`
	AgentID              *int64          `db:"agent_id" json:"agent_id,omitempty"`
	CustomerCharge       decimal.Decimal `db:"customer_charge" json:"customer_charge"`
	AgentPaid            decimal.Decimal `db:"agent_paid" json:"agent_paid"`
	CustomerPaymentMode  Mode            `db:"customer_payment_mode" json:"customer_payment_mode"`
	AgentPaymentMode     Mode            `db:"agent_payment_mode" json:"agent_payment_mode,omitempty"`
	Status               BookingStatus   `db:"status" json:"status"`
	PNR                  string          `db:"pnr" json:"pnr,omitempty"`
	Sector               string          `db:"sector" json:"sector,omitempty"`
	TravelDate           *time.Time      `db:"travel_date" json:"travel_date,omitempty"`
	ServiceName          string          `db:"service_name" json:"service_name,omitempty"`
	Description          string          `db:"description" json:"description,omitempty"`
	CustomerRefundAmount decimal.Decimal `db:"customer_refund_amount" json:"customer_refund_amount"`
	CustomerRefundMode   Mode            `db:"customer_refund_mode" json:"customer_refund_mode,omitempty"`
	AgentRecoveryAmount  decimal.Decimal `db:"agent_recovery_amount" json:"agent_recovery_amount"`
	AgentRecoveryMode    Mode            `db:"agent_recovery_mode" json:"agent_recovery_mode,omitempty"`
	AppliedCancelDeltas  Deltas          `db:"applied_cancel_deltas" json:"applied_cancel_deltas,omitempty"`
	ChargeTxnID          *int64          `db:"charge_txn_id" json:"charge_txn_id,omitempty"`
	AgentTxnID           *int64          `db:"agent_txn_id" json:"agent_txn_id,omitempty"`
	RefundTxnID          *int64          `db:"refund_txn_id" json:"refund_txn_id,omitempty"`
	RecoveryTxnID        *int64          `db:"recovery_txn_id" json:"recovery_txn_id,omitempty"`
	LegRevision          int             `db:"leg_revision" json:"-"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
	CancelledAt          *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	DeletedAt            *time.Time      `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Profit is derived from the booking amounts and never stored.
func (b *Booking) Profit() decimal.Decimal {
	return b.CustomerCharge.Sub(b.AgentPaid)
}

// OriginalLegs returns the ids of the legs created at booking time.
func (b *Booking) OriginalLegs() []int64 {
	return collectIDs(b.ChargeTxnID, b.AgentTxnID)
}

// CancelLegs returns the ids of the refund and recovery legs.
func (b *Booking) CancelLegs() []int64 {
	return collectIDs(b.RefundTxnID, b.RecoveryTxnID)
}

func collectIDs(ptrs ...*int64) []int64 {
	var ids []int64
	for _, p := range ptrs {
		if p != nil {
			ids = append(ids, *p)
		}
	}
	return ids
}

type BookingFilter struct {
	Kind       BookingKind
	Status     BookingStatus
	CustomerID int64
	AgentID    int64
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

package booking

import (
	"time"

	"tripledger/internal/api"
	"tripledger/internal/domain"

	"github.com/shopspring/decimal"
)

// BookInput describes a new ticket or service booking.
type BookInput struct {
	Kind                domain.BookingKind
	BookingDate         time.Time
	CustomerID          int64
	AgentID             *int64
	CustomerCharge      decimal.Decimal
	AgentPaid           decimal.Decimal
	CustomerPaymentMode domain.Mode
	AgentPaymentMode    domain.Mode
	PNR                 string
	Sector              string
	TravelDate          *time.Time
	ServiceName         string
	Description         string
}

// Settlement is what a cancellation pays back to the customer and recovers
// from the agent. A zero amount means no leg.
type Settlement struct {
	RefundAmount   decimal.Decimal
	RefundMode     domain.Mode
	RecoveryAmount decimal.Decimal
	RecoveryMode   domain.Mode
}

type BookRequest struct {
	Kind                string          `json:"kind" validate:"required,oneof=ticket service"`
	BookingDate         string          `json:"booking_date" validate:"required"`
	CustomerID          int64           `json:"customer_id" validate:"required,gt=0"`
	AgentID             *int64          `json:"agent_id,omitempty" validate:"omitempty,gt=0"`
	CustomerCharge      decimal.Decimal `json:"customer_charge"`
	AgentPaid           decimal.Decimal `json:"agent_paid"`
	CustomerPaymentMode string          `json:"customer_payment_mode" validate:"required,oneof=cash online wallet credit"`
	AgentPaymentMode    string          `json:"agent_payment_mode,omitempty" validate:"omitempty,oneof=cash online wallet credit"`
	PNR                 string          `json:"pnr,omitempty" validate:"max=20"`
	Sector              string          `json:"sector,omitempty" validate:"max=100"`
	TravelDate          string          `json:"travel_date,omitempty"`
	ServiceName         string          `json:"service_name,omitempty" validate:"max=200"`
	Description         string          `json:"description,omitempty" validate:"max=500"`
	Override            bool            `json:"override"`
}

func (r *BookRequest) ToInput() (BookInput, error) {
	verr := &domain.ValidationError{}
	bookingDate, err := time.Parse(api.DateLayout, r.BookingDate)
	if err != nil {
		verr.Add("booking_date", "must be a date formatted as YYYY-MM-DD")
	}
	var travelDate *time.Time
	if r.TravelDate != "" {
		d, err := time.Parse(api.DateLayout, r.TravelDate)
		if err != nil {
			verr.Add("travel_date", "must be a date formatted as YYYY-MM-DD")
		}
		travelDate = &d
	}
	if err := verr.OrNil(); err != nil {
		return BookInput{}, err
	}

	return BookInput{
		Kind:                domain.BookingKind(r.Kind),
		BookingDate:         bookingDate,
		CustomerID:          r.CustomerID,
		AgentID:             r.AgentID,
		CustomerCharge:      r.CustomerCharge,
		AgentPaid:           r.AgentPaid,
		CustomerPaymentMode: domain.Mode(r.CustomerPaymentMode),
		AgentPaymentMode:    domain.Mode(r.AgentPaymentMode),
		PNR:                 r.PNR,
		Sector:              r.Sector,
		TravelDate:          travelDate,
		ServiceName:         r.ServiceName,
		Description:         r.Description,
	}, nil
}

// SettlementRequest is the body of cancel and edit-cancellation calls.
type SettlementRequest struct {
	CustomerRefundAmount decimal.Decimal `json:"customer_refund_amount"`
	CustomerRefundMode   string          `json:"customer_refund_mode,omitempty" validate:"omitempty,oneof=cash online wallet credit"`
	AgentRecoveryAmount  decimal.Decimal `json:"agent_recovery_amount"`
	AgentRecoveryMode    string          `json:"agent_recovery_mode,omitempty" validate:"omitempty,oneof=cash online wallet credit"`
	Override             bool            `json:"override"`
}

func (r *SettlementRequest) ToSettlement() Settlement {
	return Settlement{
		RefundAmount:   r.CustomerRefundAmount,
		RefundMode:     domain.Mode(r.CustomerRefundMode),
		RecoveryAmount: r.AgentRecoveryAmount,
		RecoveryMode:   domain.Mode(r.AgentRecoveryMode),
	}
}

type DeleteRequest struct {
	Override bool `json:"override"`
}

// BookingResponse adds the derived profit to a booking.
type BookingResponse struct {
	*domain.Booking
	Profit decimal.Decimal `json:"profit"`
}

func toResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{Booking: b, Profit: b.Profit()}
}

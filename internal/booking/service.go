// Package booking keeps ticket and service bookings. Every booking owns up to
// two legs at booking time (customer charge, agent payment) and up to two at
// cancellation (customer refund, agent recovery); all of them are ordinary
// transactions applied through the transaction processor.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripledger/internal/domain"
	"tripledger/internal/logger"
	"tripledger/internal/metrics"
	"tripledger/internal/refno"
	"tripledger/internal/store"
	"tripledger/internal/transaction"

	"github.com/shopspring/decimal"
)

// Ledger is the part of the transaction processor bookings are built from.
type Ledger interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error
	CreateLegTx(ctx context.Context, tx store.Tx, in domain.TransactionInput, leg transaction.LegRef, opts domain.Options) (*transaction.Outcome, error)
	ReverseTx(ctx context.Context, tx store.Tx, id int64, opts domain.Options) (*transaction.Outcome, error)
	AmendTx(ctx context.Context, tx store.Tx, id int64, in domain.TransactionInput, opts domain.Options) (*transaction.Outcome, error)
	Publish(ctx context.Context, outcomes ...*transaction.Outcome)
}

type Service interface {
	Book(ctx context.Context, in BookInput, opts domain.Options) (*domain.Booking, error)
	Cancel(ctx context.Context, id int64, s Settlement, opts domain.Options) (*domain.Booking, error)
	EditCancelled(ctx context.Context, id int64, s Settlement, opts domain.Options) (*domain.Booking, error)
	Delete(ctx context.Context, id int64, opts domain.Options) (*domain.Booking, error)
	Get(ctx context.Context, id int64) (*domain.Booking, error)
	List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error)
}

type service struct {
	reader store.Reader
	ledger Ledger
	now    func() time.Time
}

func NewService(reader store.Reader, ledger Ledger) Service {
	return &service{
		reader: reader,
		ledger: ledger,
		now:    time.Now,
	}
}

var settleModes = map[domain.Mode]bool{
	domain.ModeCash:   true,
	domain.ModeOnline: true,
	domain.ModeWallet: true,
	domain.ModeCredit: true,
}

func checkAmount(verr *domain.ValidationError, field string, v decimal.Decimal) {
	switch {
	case v.IsNegative():
		verr.Add(field, "must be greater than or equal to 0")
	case !v.Equal(v.Round(2)):
		verr.Add(field, "must have at most 2 decimal places")
	}
}

func validateBook(in BookInput) error {
	verr := &domain.ValidationError{}
	if !in.Kind.Valid() {
		verr.Add("kind", "must be one of ticket, service")
	}
	if in.BookingDate.IsZero() {
		verr.Add("booking_date", "is required")
	}
	if in.CustomerID <= 0 {
		verr.Add("customer_id", "is required")
	}
	checkAmount(verr, "customer_charge", in.CustomerCharge)
	checkAmount(verr, "agent_paid", in.AgentPaid)
	if !settleModes[in.CustomerPaymentMode] {
		verr.Add("customer_payment_mode", "must be one of cash, online, wallet, credit")
	}
	if in.AgentPaid.IsPositive() {
		if in.AgentID == nil {
			verr.Add("agent_paid", "requires agent_id")
		}
		if !settleModes[in.AgentPaymentMode] {
			verr.Add("agent_payment_mode", "must be one of cash, online, wallet, credit")
		}
	}
	if in.Kind == domain.BookingService && in.ServiceName == "" {
		verr.Add("service_name", "is required for service bookings")
	}
	return verr.OrNil()
}

func validateSettlement(b *domain.Booking, s Settlement) error {
	verr := &domain.ValidationError{}
	checkAmount(verr, "customer_refund_amount", s.RefundAmount)
	checkAmount(verr, "agent_recovery_amount", s.RecoveryAmount)

	if s.RefundAmount.GreaterThan(b.CustomerCharge) {
		verr.Add("customer_refund_amount", "must not exceed customer_charge "+b.CustomerCharge.StringFixed(2))
	}
	if s.RefundAmount.IsPositive() && !settleModes[s.RefundMode] {
		verr.Add("customer_refund_mode", "must be one of cash, online, wallet, credit")
	}
	if s.RecoveryAmount.GreaterThan(b.AgentPaid) {
		verr.Add("agent_recovery_amount", "must not exceed agent_paid "+b.AgentPaid.StringFixed(2))
	}
	if s.RecoveryAmount.IsPositive() && !settleModes[s.RecoveryMode] {
		verr.Add("agent_recovery_mode", "must be one of cash, online, wallet, credit")
	}
	return verr.OrNil()
}

// checkParty verifies that id names an active entity of the expected kind.
func checkParty(ctx context.Context, tx store.Tx, verr *domain.ValidationError, field string, id int64, kind domain.EntityKind) error {
	e, err := tx.GetEntity(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		verr.Add(field, fmt.Sprintf("entity %d does not exist", id))
	case err != nil:
		return err
	case e.Kind != kind:
		verr.Add(field, fmt.Sprintf("entity %d is a %s, not a %s", id, e.Kind, kind))
	case !e.Active:
		verr.Add(field, fmt.Sprintf("entity %d is inactive", id))
	}
	return nil
}

func legRef(b *domain.Booking, suffix string) string {
	if b.LegRevision == 0 {
		return b.RefNo + "-" + suffix
	}
	return fmt.Sprintf("%s-%s%d", b.RefNo, suffix, b.LegRevision+1)
}

func (s *service) describe(b *domain.Booking, what string) string {
	return fmt.Sprintf("%s %s %s", b.Kind, b.RefNo, what)
}

func (s *service) chargeInput(b *domain.Booking) domain.TransactionInput {
	customer := b.CustomerID
	return domain.TransactionInput{
		Type:        domain.TxnReceipt,
		Date:        b.BookingDate,
		Amount:      b.CustomerCharge,
		EntityID:    &customer,
		Mode:        b.CustomerPaymentMode,
		PayType:     domain.PayServiceAvailed,
		Description: s.describe(b, "customer charge"),
	}
}

func (s *service) agentInput(b *domain.Booking) domain.TransactionInput {
	agent := *b.AgentID
	return domain.TransactionInput{
		Type:        domain.TxnPayment,
		Date:        b.BookingDate,
		Amount:      b.AgentPaid,
		EntityID:    &agent,
		Mode:        b.AgentPaymentMode,
		PayType:     domain.PayServiceAvailed,
		Description: s.describe(b, "agent payment"),
	}
}

func (s *service) refundInput(b *domain.Booking, date time.Time) domain.TransactionInput {
	customer := b.CustomerID
	return domain.TransactionInput{
		Type:        domain.TxnRefund,
		Date:        date,
		Amount:      b.CustomerRefundAmount,
		ToEntityID:  &customer,
		ModeFrom:    b.CustomerRefundMode,
		Direction:   domain.DirectionOutgoing,
		Description: s.describe(b, "customer refund"),
	}
}

func (s *service) recoveryInput(b *domain.Booking, date time.Time) domain.TransactionInput {
	agent := *b.AgentID
	return domain.TransactionInput{
		Type:         domain.TxnRefund,
		Date:         date,
		Amount:       b.AgentRecoveryAmount,
		FromEntityID: &agent,
		ModeFrom:     b.AgentRecoveryMode,
		Direction:    domain.DirectionIncoming,
		Description:  s.describe(b, "agent recovery"),
	}
}

func (s *service) Book(ctx context.Context, in BookInput, opts domain.Options) (*domain.Booking, error) {
	if err := validateBook(in); err != nil {
		return nil, err
	}

	var (
		booked   *domain.Booking
		outcomes []*transaction.Outcome
	)
	err := s.ledger.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		outcomes = nil

		verr := &domain.ValidationError{}
		if err := checkParty(ctx, tx, verr, "customer_id", in.CustomerID, domain.KindCustomer); err != nil {
			return err
		}
		if in.AgentID != nil {
			if err := checkParty(ctx, tx, verr, "agent_id", *in.AgentID, domain.KindAgent); err != nil {
				return err
			}
		}
		if err := verr.OrNil(); err != nil {
			return err
		}

		ref, err := refno.Allocate(ctx, tx, string(in.Kind), in.BookingDate.Year())
		if err != nil {
			return err
		}

		now := s.now().UTC()
		b := &domain.Booking{
			RefNo:               ref,
			Kind:                in.Kind,
			BookingDate:         in.BookingDate,
			CustomerID:          in.CustomerID,
			AgentID:             in.AgentID,
			CustomerCharge:      in.CustomerCharge,
			AgentPaid:           in.AgentPaid,
			CustomerPaymentMode: in.CustomerPaymentMode,
			AgentPaymentMode:    in.AgentPaymentMode,
			Status:              domain.BookingBooked,
			PNR:                 in.PNR,
			Sector:              in.Sector,
			TravelDate:          in.TravelDate,
			ServiceName:         in.ServiceName,
			Description:         in.Description,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if b.AgentID == nil || !b.AgentPaid.IsPositive() {
			b.AgentPaymentMode = ""
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}

		if b.CustomerCharge.IsPositive() {
			o, err := s.ledger.CreateLegTx(ctx, tx, s.chargeInput(b),
				transaction.LegRef{BookingID: b.ID, Leg: domain.LegCustomerCharge, RefNo: legRef(b, "C")}, opts)
			if err != nil {
				return err
			}
			b.ChargeTxnID = &o.Txn.ID
			outcomes = append(outcomes, o)
		}
		if b.AgentID != nil && b.AgentPaid.IsPositive() {
			o, err := s.ledger.CreateLegTx(ctx, tx, s.agentInput(b),
				transaction.LegRef{BookingID: b.ID, Leg: domain.LegAgentPayment, RefNo: legRef(b, "A")}, opts)
			if err != nil {
				return err
			}
			b.AgentTxnID = &o.Txn.ID
			outcomes = append(outcomes, o)
		}

		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		booked = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Publish(ctx, outcomes...)
	metrics.RecordBooking(booked.Kind, booked.Status)
	logger.Info("booking created", "ref_no", booked.RefNo, "id", booked.ID, "profit", booked.Profit().StringFixed(2))
	return booked, nil
}

// Cancel records the refund and recovery legs. The original legs stay in
// place; the new legs net against them. Cancelling a cancelled booking
// changes nothing.
func (s *service) Cancel(ctx context.Context, id int64, st Settlement, opts domain.Options) (*domain.Booking, error) {
	var (
		result   *domain.Booking
		outcomes []*transaction.Outcome
		changed  bool
	)
	err := s.ledger.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		outcomes, changed = nil, false

		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		switch b.Status {
		case domain.BookingCancelled:
			result = b
			return nil
		case domain.BookingDeleted:
			return fmt.Errorf("%w: booking %s is deleted", domain.ErrInvalidTransition, b.RefNo)
		}
		if st.RecoveryAmount.IsPositive() && b.AgentID == nil {
			return domain.NewFieldError("agent_recovery_amount", "booking has no agent")
		}
		if err := validateSettlement(b, st); err != nil {
			return err
		}

		now := s.now().UTC()
		b.CustomerRefundAmount, b.CustomerRefundMode = st.RefundAmount, st.RefundMode
		b.AgentRecoveryAmount, b.AgentRecoveryMode = st.RecoveryAmount, st.RecoveryMode
		if !st.RefundAmount.IsPositive() {
			b.CustomerRefundMode = ""
		}
		if !st.RecoveryAmount.IsPositive() {
			b.AgentRecoveryMode = ""
		}

		today := now.Truncate(24 * time.Hour)
		if b.CustomerRefundAmount.IsPositive() {
			o, err := s.ledger.CreateLegTx(ctx, tx, s.refundInput(b, today),
				transaction.LegRef{BookingID: b.ID, Leg: domain.LegCustomerRefund, RefNo: legRef(b, "CR")}, opts)
			if err != nil {
				return err
			}
			b.RefundTxnID = &o.Txn.ID
			outcomes = append(outcomes, o)
		}
		if b.AgentRecoveryAmount.IsPositive() {
			o, err := s.ledger.CreateLegTx(ctx, tx, s.recoveryInput(b, today),
				transaction.LegRef{BookingID: b.ID, Leg: domain.LegAgentRecovery, RefNo: legRef(b, "AR")}, opts)
			if err != nil {
				return err
			}
			b.RecoveryTxnID = &o.Txn.ID
			outcomes = append(outcomes, o)
		}

		var applied domain.Deltas
		for _, o := range outcomes {
			applied = applied.Add(o.Deltas)
		}
		b.AppliedCancelDeltas = applied
		b.Status = domain.BookingCancelled
		b.CancelledAt = &now
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		result, changed = b, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.ledger.Publish(ctx, outcomes...)
		metrics.RecordBooking(result.Kind, result.Status)
		logger.Info("booking cancelled", "ref_no", result.RefNo, "refund", result.CustomerRefundAmount.StringFixed(2),
			"recovery", result.AgentRecoveryAmount.StringFixed(2))
	}
	return result, nil
}

// EditCancelled changes the refund and recovery of a cancelled booking.
// Only the difference to what the cancellation applied reaches the accounts.
func (s *service) EditCancelled(ctx context.Context, id int64, st Settlement, opts domain.Options) (*domain.Booking, error) {
	var (
		result   *domain.Booking
		outcomes []*transaction.Outcome
	)
	err := s.ledger.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		outcomes = nil

		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != domain.BookingCancelled {
			return fmt.Errorf("%w: booking %s is %s, not cancelled", domain.ErrInvalidTransition, b.RefNo, b.Status)
		}
		if st.RecoveryAmount.IsPositive() && b.AgentID == nil {
			return domain.NewFieldError("agent_recovery_amount", "booking has no agent")
		}
		if err := validateSettlement(b, st); err != nil {
			return err
		}

		now := s.now().UTC()
		b.CustomerRefundAmount, b.CustomerRefundMode = st.RefundAmount, st.RefundMode
		b.AgentRecoveryAmount, b.AgentRecoveryMode = st.RecoveryAmount, st.RecoveryMode
		if b.RefundTxnID == nil && b.CustomerRefundAmount.IsPositive() ||
			b.RecoveryTxnID == nil && b.AgentRecoveryAmount.IsPositive() {
			b.LegRevision++
		}

		legDate := now.Truncate(24 * time.Hour)
		if b.CancelledAt != nil {
			legDate = b.CancelledAt.Truncate(24 * time.Hour)
		}

		o, err := s.settleLeg(ctx, tx, &b.RefundTxnID, b.CustomerRefundAmount, s.refundInput(b, legDate),
			transaction.LegRef{BookingID: b.ID, Leg: domain.LegCustomerRefund, RefNo: legRef(b, "CR")}, opts)
		if err != nil {
			return err
		}
		if o != nil {
			outcomes = append(outcomes, o)
		}
		if b.AgentID != nil {
			o, err = s.settleLeg(ctx, tx, &b.RecoveryTxnID, b.AgentRecoveryAmount, s.recoveryInput(b, legDate),
				transaction.LegRef{BookingID: b.ID, Leg: domain.LegAgentRecovery, RefNo: legRef(b, "AR")}, opts)
			if err != nil {
				return err
			}
			if o != nil {
				outcomes = append(outcomes, o)
			}
		}

		if !b.CustomerRefundAmount.IsPositive() {
			b.CustomerRefundMode = ""
		}
		if !b.AgentRecoveryAmount.IsPositive() {
			b.AgentRecoveryMode = ""
		}
		for _, o := range outcomes {
			b.AppliedCancelDeltas = b.AppliedCancelDeltas.Add(o.Deltas)
		}
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Publish(ctx, outcomes...)
	logger.Info("booking cancellation edited", "ref_no", result.RefNo, "refund", result.CustomerRefundAmount.StringFixed(2),
		"recovery", result.AgentRecoveryAmount.StringFixed(2))
	return result, nil
}

// settleLeg moves one cancellation leg to amount: it creates the leg when
// there is none, reverses it when amount drops to zero and amends it
// otherwise.
func (s *service) settleLeg(ctx context.Context, tx store.Tx, legID **int64, amount decimal.Decimal,
	in domain.TransactionInput, ref transaction.LegRef, opts domain.Options) (*transaction.Outcome, error) {
	switch {
	case *legID == nil && amount.IsPositive():
		o, err := s.ledger.CreateLegTx(ctx, tx, in, ref, opts)
		if err != nil {
			return nil, err
		}
		*legID = &o.Txn.ID
		return o, nil
	case *legID != nil && !amount.IsPositive():
		o, err := s.ledger.ReverseTx(ctx, tx, **legID, opts)
		if err != nil {
			return nil, err
		}
		*legID = nil
		return o, nil
	case *legID != nil:
		return s.ledger.AmendTx(ctx, tx, **legID, in, opts)
	}
	return nil, nil
}

// Delete reverses every live leg of the booking so its net effect on the
// accounts is zero. Deleting a deleted booking changes nothing.
func (s *service) Delete(ctx context.Context, id int64, opts domain.Options) (*domain.Booking, error) {
	var (
		result   *domain.Booking
		outcomes []*transaction.Outcome
		changed  bool
	)
	err := s.ledger.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		outcomes, changed = nil, false

		b, err := tx.LockBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == domain.BookingDeleted {
			result = b
			return nil
		}

		// Cancellation legs first, then the originals.
		legs := b.OriginalLegs()
		if b.Status == domain.BookingCancelled {
			legs = append(b.CancelLegs(), legs...)
		}
		for _, legID := range legs {
			o, err := s.ledger.ReverseTx(ctx, tx, legID, opts)
			if err != nil {
				return err
			}
			outcomes = append(outcomes, o)
		}

		now := s.now().UTC()
		b.Status = domain.BookingDeleted
		b.DeletedAt = &now
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		result, changed = b, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.ledger.Publish(ctx, outcomes...)
		metrics.RecordBooking(result.Kind, result.Status)
		logger.Info("booking deleted", "ref_no", result.RefNo, "reversed_legs", len(outcomes))
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, id int64) (*domain.Booking, error) {
	return s.reader.GetBooking(ctx, id)
}

func (s *service) List(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	verr := &domain.ValidationError{}
	if f.Kind != "" && !f.Kind.Valid() {
		verr.Add("kind", "must be one of ticket, service")
	}
	switch f.Status {
	case "", domain.BookingBooked, domain.BookingCancelled, domain.BookingDeleted:
	default:
		verr.Add("status", "must be one of booked, cancelled, deleted")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		verr.Add("to", "must not be before from")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return s.reader.ListBookings(ctx, f)
}

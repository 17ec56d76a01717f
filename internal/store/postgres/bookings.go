package postgres

import (
	"context"

	"tripledger/internal/domain"

	"github.com/jmoiron/sqlx"
)

const bookingColumns = `id, ref_no, kind, booking_date, customer_id, agent_id, customer_charge, agent_paid,
	customer_payment_mode, agent_payment_mode, status, pnr, sector, travel_date, service_name, description,
	customer_refund_amount, customer_refund_mode, agent_recovery_amount, agent_recovery_mode,
	applied_cancel_deltas, charge_txn_id, agent_txn_id, refund_txn_id, recovery_txn_id, leg_revision,
	created_at, updated_at, cancelled_at, deleted_at`

func (q *queries) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	b := &domain.Booking{}
	err := sqlx.GetContext(ctx, q.ext, b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (q *queries) ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	w := &where{}
	if f.Kind != "" {
		w.add("kind = $%d", string(f.Kind))
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	if f.CustomerID != 0 {
		w.add("customer_id = $%d", f.CustomerID)
	}
	if f.AgentID != 0 {
		w.add("agent_id = $%d", f.AgentID)
	}
	if !f.From.IsZero() {
		w.add("booking_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("booking_date <= $%d", f.To)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings` + w.String() + ` ORDER BY booking_date DESC, id DESC`
	query += w.page(f.Limit, f.Offset)

	var bookings []domain.Booking
	if err := sqlx.SelectContext(ctx, q.ext, &bookings, query, w.args...); err != nil {
		return nil, mapErr(err)
	}
	return bookings, nil
}

func (q *queries) InsertBooking(ctx context.Context, b *domain.Booking) error {
	err := q.ext.QueryRowxContext(ctx,
		`INSERT INTO bookings (ref_no, kind, booking_date, customer_id, agent_id, customer_charge, agent_paid,
			customer_payment_mode, agent_payment_mode, status, pnr, sector, travel_date, service_name,
			description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id`,
		b.RefNo, b.Kind, b.BookingDate, b.CustomerID, b.AgentID, b.CustomerCharge, b.AgentPaid,
		b.CustomerPaymentMode, b.AgentPaymentMode, b.Status, b.PNR, b.Sector, b.TravelDate, b.ServiceName,
		b.Description, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	return mapErr(err)
}

func (q *queries) LockBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	b := &domain.Booking{}
	err := sqlx.GetContext(ctx, q.ext, b,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return b, nil
}

func (q *queries) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	res, err := q.ext.ExecContext(ctx,
		`UPDATE bookings
		 SET status = $1, customer_refund_amount = $2, customer_refund_mode = $3,
			agent_recovery_amount = $4, agent_recovery_mode = $5, applied_cancel_deltas = $6,
			charge_txn_id = $7, agent_txn_id = $8, refund_txn_id = $9, recovery_txn_id = $10,
			leg_revision = $11, updated_at = $12, cancelled_at = $13, deleted_at = $14
		 WHERE id = $15`,
		b.Status, b.CustomerRefundAmount, b.CustomerRefundMode,
		b.AgentRecoveryAmount, b.AgentRecoveryMode, b.AppliedCancelDeltas,
		b.ChargeTxnID, b.AgentTxnID, b.RefundTxnID, b.RecoveryTxnID,
		b.LegRevision, b.UpdatedAt, b.CancelledAt, b.DeletedAt,
		b.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	return requireOneRow(res)
}

package postgres

import (
	"context"

	"tripledger/internal/domain"

	"github.com/jmoiron/sqlx"
)

const transactionColumns = `id, ref_no, type, txn_date, amount, entity_id, from_entity_id, to_entity_id,
	mode, mode_from, mode_to, pay_type, refund_direction, deduct_from_account, credit_to_account,
	description, applied_deltas, policy_overrides, status, booking_id, leg, created_at, updated_at, reversed_at`

func (q *queries) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := sqlx.GetContext(ctx, q.ext, t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

func (q *queries) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	w := &where{}
	if f.Type != "" {
		w.add("type = $%d", string(f.Type))
	}
	if f.EntityID != 0 {
		w.add("(entity_id = $%[1]d OR from_entity_id = $%[1]d OR to_entity_id = $%[1]d)", f.EntityID)
	}
	if f.Status != "" {
		w.add("status = $%d", string(f.Status))
	}
	if f.BookingID != 0 {
		w.add("booking_id = $%d", f.BookingID)
	}
	if !f.From.IsZero() {
		w.add("txn_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("txn_date <= $%d", f.To)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` + w.String() + ` ORDER BY txn_date DESC, id DESC`
	query += w.page(f.Limit, f.Offset)

	var txns []domain.Transaction
	if err := sqlx.SelectContext(ctx, q.ext, &txns, query, w.args...); err != nil {
		return nil, mapErr(err)
	}
	return txns, nil
}

func (q *queries) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	err := q.ext.QueryRowxContext(ctx,
		`INSERT INTO transactions (ref_no, type, txn_date, amount, entity_id, from_entity_id, to_entity_id,
			mode, mode_from, mode_to, pay_type, refund_direction, deduct_from_account, credit_to_account,
			description, applied_deltas, policy_overrides, status, booking_id, leg, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		 RETURNING id`,
		t.RefNo, t.Type, t.Date, t.Amount, t.EntityID, t.FromEntityID, t.ToEntityID,
		t.Mode, t.ModeFrom, t.ModeTo, t.PayType, t.Direction, t.DeductFromAccount, t.CreditToAccount,
		t.Description, t.AppliedDeltas, t.PolicyOverrides, t.Status, t.BookingID, t.Leg, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	return mapErr(err)
}

func (q *queries) LockTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := sqlx.GetContext(ctx, q.ext, t,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return t, nil
}

func (q *queries) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	res, err := q.ext.ExecContext(ctx,
		`UPDATE transactions
		 SET txn_date = $1, amount = $2, entity_id = $3, from_entity_id = $4, to_entity_id = $5,
			mode = $6, mode_from = $7, mode_to = $8, pay_type = $9, refund_direction = $10,
			deduct_from_account = $11, credit_to_account = $12, description = $13,
			applied_deltas = $14, policy_overrides = $15, status = $16, updated_at = $17, reversed_at = $18
		 WHERE id = $19`,
		t.Date, t.Amount, t.EntityID, t.FromEntityID, t.ToEntityID,
		t.Mode, t.ModeFrom, t.ModeTo, t.PayType, t.Direction,
		t.DeductFromAccount, t.CreditToAccount, t.Description,
		t.AppliedDeltas, t.PolicyOverrides, t.Status, t.UpdatedAt, t.ReversedAt,
		t.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	return requireOneRow(res)
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tripledger/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type tillRow struct {
	Mode      domain.TillMode `db:"mode"`
	Balance   decimal.Decimal `db:"balance"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func toTill(rows []tillRow) *domain.Till {
	t := &domain.Till{}
	for _, r := range rows {
		t.Set(r.Mode, r.Balance)
		if r.UpdatedAt.After(t.UpdatedAt) {
			t.UpdatedAt = r.UpdatedAt
		}
	}
	return t
}

func (q *queries) GetTill(ctx context.Context) (*domain.Till, error) {
	var rows []tillRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `SELECT mode, balance, updated_at FROM till_balances ORDER BY mode`)
	if err != nil {
		return nil, mapErr(err)
	}
	return toTill(rows), nil
}

func (q *queries) LockTill(ctx context.Context, modes ...domain.TillMode) (*domain.Till, error) {
	if len(modes) == 0 {
		return &domain.Till{}, nil
	}

	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}

	var rows []tillRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT mode, balance, updated_at
		 FROM till_balances
		 WHERE mode = ANY($1)
		 ORDER BY mode
		 FOR UPDATE`,
		pq.Array(names),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(rows) != len(modes) {
		return nil, fmt.Errorf("till rows missing: want %v, got %d rows", modes, len(rows))
	}
	return toTill(rows), nil
}

func (q *queries) UpdateTill(ctx context.Context, t *domain.Till, modes ...domain.TillMode) error {
	for _, m := range modes {
		res, err := q.ext.ExecContext(ctx,
			`UPDATE till_balances SET balance = $1, updated_at = $2 WHERE mode = $3`,
			t.Balance(m), t.UpdatedAt, string(m),
		)
		if err != nil {
			return mapErr(err)
		}
		if err := requireOneRow(res); err != nil {
			return err
		}
	}
	return nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

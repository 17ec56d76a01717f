package postgres

import (
	"context"

	"tripledger/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const entityColumns = `id, kind, name, phone, email, wallet_balance, credit_limit, credit_used,
	allow_negative_wallet, active, created_at, updated_at`

func (q *queries) GetEntity(ctx context.Context, id int64) (*domain.Entity, error) {
	e := &domain.Entity{}
	err := sqlx.GetContext(ctx, q.ext, e, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

func (q *queries) ListEntities(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
	w := &where{}
	if f.Kind != "" {
		w.add("kind = $%d", string(f.Kind))
	}
	if !f.IncludeInactive {
		w.add("active = $%d", true)
	}

	var entities []domain.Entity
	err := sqlx.SelectContext(ctx, q.ext, &entities,
		`SELECT `+entityColumns+` FROM entities`+w.String()+` ORDER BY name, id`,
		w.args...,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return entities, nil
}

func (q *queries) InsertEntity(ctx context.Context, e *domain.Entity) error {
	err := q.ext.QueryRowxContext(ctx,
		`INSERT INTO entities (kind, name, phone, email, wallet_balance, credit_limit, credit_used,
			allow_negative_wallet, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		e.Kind, e.Name, e.Phone, e.Email, e.WalletBalance, e.CreditLimit, e.CreditUsed,
		e.AllowNegativeWallet, e.Active, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	return mapErr(err)
}

func (q *queries) UpdateEntity(ctx context.Context, e *domain.Entity) error {
	res, err := q.ext.ExecContext(ctx,
		`UPDATE entities
		 SET name = $1, phone = $2, email = $3, wallet_balance = $4, credit_limit = $5, credit_used = $6,
			allow_negative_wallet = $7, active = $8, updated_at = $9
		 WHERE id = $10`,
		e.Name, e.Phone, e.Email, e.WalletBalance, e.CreditLimit, e.CreditUsed,
		e.AllowNegativeWallet, e.Active, e.UpdatedAt, e.ID,
	)
	if err != nil {
		return mapErr(err)
	}
	return requireOneRow(res)
}

func (q *queries) LockEntities(ctx context.Context, ids []int64) (map[int64]*domain.Entity, error) {
	locked := make(map[int64]*domain.Entity, len(ids))
	if len(ids) == 0 {
		return locked, nil
	}

	var rows []domain.Entity
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, mapErr(err)
	}

	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}
	return locked, nil
}

// Package postgres implements store.Store on PostgreSQL with sqlx.
//
// Row locks are taken with SELECT ... FOR UPDATE: entities in ascending id
// order, till rows in mode order, then the transaction or booking row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tripledger/internal/domain"
	"tripledger/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
	queries
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, queries: queries{ext: db}}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &queries{ext: tx}); err != nil {
		return err
	}

	return mapErr(tx.Commit())
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// queries runs every statement against either the pool or an open transaction.
type queries struct {
	ext sqlx.ExtContext
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", store.ErrTransient, err)
		case "23505":
			return fmt.Errorf("%w: %v", domain.ErrAllocationConflict, err)
		}
	}
	return err
}

// where accumulates filter clauses with positional arguments.
type where struct {
	clauses []string
	args    []interface{}
}

// add appends a clause; every %[1]d in clause becomes the new argument's position.
func (w *where) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page appends LIMIT/OFFSET with a default page size of 50.
func (w *where) page(limit, offset int) string {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	w.args = append(w.args, limit, offset)
	n := len(w.args)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n-1, n)
}

func (q *queries) NextSequence(ctx context.Context, year int, prefix string) (int64, error) {
	var seq int64
	err := sqlx.GetContext(ctx, q.ext, &seq,
		`INSERT INTO ref_counters (year, prefix, last_seq)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (year, prefix) DO UPDATE SET last_seq = ref_counters.last_seq + 1
		 RETURNING last_seq`,
		year, prefix,
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return seq, nil
}

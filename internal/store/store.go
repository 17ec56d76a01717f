// Package store defines the persistence boundary of the engine. Every
// mutation runs inside RunInTx; implementations lock what they return from
// Lock* calls until the transaction ends.
package store

import (
	"context"
	"errors"

	"tripledger/internal/domain"
)

// ErrTransient marks a failure that is safe to retry as a whole unit:
// serialization failures and deadlocks.
var ErrTransient = errors.New("transient store failure")

type Reader interface {
	GetEntity(ctx context.Context, id int64) (*domain.Entity, error)
	ListEntities(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error)
	GetTill(ctx context.Context) (*domain.Till, error)
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
	GetBooking(ctx context.Context, id int64) (*domain.Booking, error)
	ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error)
}

type Tx interface {
	Reader

	// NextSequence advances the (year, prefix) reference counter.
	NextSequence(ctx context.Context, year int, prefix string) (int64, error)

	InsertEntity(ctx context.Context, e *domain.Entity) error
	UpdateEntity(ctx context.Context, e *domain.Entity) error
	// LockEntities locks the given entities in ascending id order. Unknown
	// ids are absent from the result.
	LockEntities(ctx context.Context, ids []int64) (map[int64]*domain.Entity, error)

	// LockTill locks the rows of the given modes; other modes are left zero.
	LockTill(ctx context.Context, modes ...domain.TillMode) (*domain.Till, error)
	UpdateTill(ctx context.Context, t *domain.Till, modes ...domain.TillMode) error

	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	LockTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error

	InsertBooking(ctx context.Context, b *domain.Booking) error
	LockBooking(ctx context.Context, id int64) (*domain.Booking, error)
	UpdateBooking(ctx context.Context, b *domain.Booking) error
}

type Store interface {
	Reader
	// RunInTx runs fn in one atomic unit. Any error from fn rolls back every
	// write made through tx.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Package bolt implements store.Store on an embedded BoltDB file.
//
// Records are JSON values keyed by big-endian ids. Bolt allows one writer at
// a time, so every RunInTx call is serialized and the Lock* methods are plain
// reads inside the write transaction.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"tripledger/internal/domain"
	"tripledger/internal/store"

	bolt "github.com/boltdb/bolt"
)

var (
	bucketEntities     = []byte("entities")
	bucketTill         = []byte("till")
	bucketCounters     = []byte("counters")
	bucketTransactions = []byte("transactions")
	bucketTxnRefs      = []byte("txn_refs")
	bucketBookings     = []byte("bookings")
	bucketBookingRefs  = []byte("booking_refs")
)

var allBuckets = [][]byte{
	bucketEntities, bucketTill, bucketCounters, bucketTransactions,
	bucketTxnRefs, bucketBookings, bucketBookingRefs,
}

type Store struct {
	db *bolt.DB
}

// New opens (or creates) the database at path and ensures every bucket exists.
func New(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTill) == nil {
			return fmt.Errorf("bolt store not initialised")
		}
		return nil
	})
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(ctx, &txn{tx: btx})
	})
}

func view[T any](s *Store, fn func(t *txn) (T, error)) (T, error) {
	var out T
	err := s.db.View(func(btx *bolt.Tx) error {
		var err error
		out, err = fn(&txn{tx: btx})
		return err
	})
	return out, err
}

func (s *Store) GetEntity(ctx context.Context, id int64) (*domain.Entity, error) {
	return view(s, func(t *txn) (*domain.Entity, error) { return t.GetEntity(ctx, id) })
}

func (s *Store) ListEntities(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
	return view(s, func(t *txn) ([]domain.Entity, error) { return t.ListEntities(ctx, f) })
}

func (s *Store) GetTill(ctx context.Context) (*domain.Till, error) {
	return view(s, func(t *txn) (*domain.Till, error) { return t.GetTill(ctx) })
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return view(s, func(t *txn) (*domain.Transaction, error) { return t.GetTransaction(ctx, id) })
}

func (s *Store) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	return view(s, func(t *txn) ([]domain.Transaction, error) { return t.ListTransactions(ctx, f) })
}

func (s *Store) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return view(s, func(t *txn) (*domain.Booking, error) { return t.GetBooking(ctx, id) })
}

func (s *Store) ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	return view(s, func(t *txn) ([]domain.Booking, error) { return t.ListBookings(ctx, f) })
}

// txn is a bolt transaction seen through store.Tx.
type txn struct {
	tx *bolt.Tx
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func (t *txn) get(bucket []byte, id int64, dest interface{}) error {
	v := t.tx.Bucket(bucket).Get(itob(id))
	if v == nil {
		return domain.ErrNotFound
	}
	return json.Unmarshal(v, dest)
}

func (t *txn) put(bucket []byte, id int64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return t.tx.Bucket(bucket).Put(itob(id), data)
}

// replace overwrites an existing record, failing when it does not exist.
func (t *txn) replace(bucket []byte, id int64, value interface{}) error {
	if t.tx.Bucket(bucket).Get(itob(id)) == nil {
		return domain.ErrNotFound
	}
	return t.put(bucket, id, value)
}

// nextID reserves the next id of a bucket.
func (t *txn) nextID(bucket []byte) (int64, error) {
	seq, err := t.tx.Bucket(bucket).NextSequence()
	if err != nil {
		return 0, err
	}
	return int64(seq), nil
}

// each walks a bucket from the highest id down.
func each[T any](t *txn, bucket []byte, fn func(v *T) error) error {
	c := t.tx.Bucket(bucket).Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		item := new(T)
		if err := json.Unmarshal(v, item); err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (t *txn) NextSequence(ctx context.Context, year int, prefix string) (int64, error) {
	b := t.tx.Bucket(bucketCounters)
	key := []byte(fmt.Sprintf("%d/%s", year, prefix))

	var seq int64
	if v := b.Get(key); v != nil {
		seq = btoi(v)
	}
	seq++
	if err := b.Put(key, itob(seq)); err != nil {
		return 0, err
	}
	return seq, nil
}

package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"tripledger/internal/domain"

	"github.com/shopspring/decimal"
)

func (t *txn) GetEntity(ctx context.Context, id int64) (*domain.Entity, error) {
	e := &domain.Entity{}
	if err := t.get(bucketEntities, id, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (t *txn) ListEntities(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
	var out []domain.Entity
	err := each(t, bucketEntities, func(e *domain.Entity) error {
		if f.Kind != "" && e.Kind != f.Kind {
			return nil
		}
		if !f.IncludeInactive && !e.Active {
			return nil
		}
		out = append(out, *e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *txn) InsertEntity(ctx context.Context, e *domain.Entity) error {
	id, err := t.nextID(bucketEntities)
	if err != nil {
		return err
	}
	e.ID = id
	return t.put(bucketEntities, e.ID, e)
}

func (t *txn) UpdateEntity(ctx context.Context, e *domain.Entity) error {
	return t.replace(bucketEntities, e.ID, e)
}

func (t *txn) LockEntities(ctx context.Context, ids []int64) (map[int64]*domain.Entity, error) {
	locked := make(map[int64]*domain.Entity, len(ids))
	for _, id := range ids {
		e, err := t.GetEntity(ctx, id)
		if err == domain.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		locked[id] = e
	}
	return locked, nil
}

type tillRecord struct {
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (t *txn) readTill(modes ...domain.TillMode) (*domain.Till, error) {
	till := &domain.Till{}
	b := t.tx.Bucket(bucketTill)
	for _, m := range modes {
		v := b.Get([]byte(m))
		if v == nil {
			continue
		}
		var rec tillRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, err
		}
		till.Set(m, rec.Balance)
		if rec.UpdatedAt.After(till.UpdatedAt) {
			till.UpdatedAt = rec.UpdatedAt
		}
	}
	return till, nil
}

func (t *txn) GetTill(ctx context.Context) (*domain.Till, error) {
	return t.readTill(domain.TillModes...)
}

func (t *txn) LockTill(ctx context.Context, modes ...domain.TillMode) (*domain.Till, error) {
	return t.readTill(modes...)
}

func (t *txn) UpdateTill(ctx context.Context, till *domain.Till, modes ...domain.TillMode) error {
	b := t.tx.Bucket(bucketTill)
	for _, m := range modes {
		data, err := json.Marshal(tillRecord{Balance: till.Balance(m), UpdatedAt: till.UpdatedAt})
		if err != nil {
			return err
		}
		if err := b.Put([]byte(m), data); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	tr := &domain.Transaction{}
	if err := t.get(bucketTransactions, id, tr); err != nil {
		return nil, err
	}
	return tr, nil
}

func involves(tr *domain.Transaction, entityID int64) bool {
	for _, p := range []*int64{tr.EntityID, tr.FromEntityID, tr.ToEntityID} {
		if p != nil && *p == entityID {
			return true
		}
	}
	return false
}

func (t *txn) ListTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := each(t, bucketTransactions, func(tr *domain.Transaction) error {
		switch {
		case f.Type != "" && tr.Type != f.Type,
			f.EntityID != 0 && !involves(tr, f.EntityID),
			f.Status != "" && tr.Status != f.Status,
			f.BookingID != 0 && (tr.BookingID == nil || *tr.BookingID != f.BookingID),
			!f.From.IsZero() && tr.Date.Before(f.From),
			!f.To.IsZero() && tr.Date.After(f.To):
			return nil
		}
		out = append(out, *tr)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return page(out, f.Limit, f.Offset), nil
}

func (t *txn) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	refs := t.tx.Bucket(bucketTxnRefs)
	if refs.Get([]byte(tr.RefNo)) != nil {
		return fmt.Errorf("%w: reference %s already used", domain.ErrAllocationConflict, tr.RefNo)
	}

	id, err := t.nextID(bucketTransactions)
	if err != nil {
		return err
	}
	tr.ID = id
	if err := refs.Put([]byte(tr.RefNo), itob(id)); err != nil {
		return err
	}
	return t.put(bucketTransactions, tr.ID, tr)
}

func (t *txn) LockTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	return t.GetTransaction(ctx, id)
}

func (t *txn) UpdateTransaction(ctx context.Context, tr *domain.Transaction) error {
	return t.replace(bucketTransactions, tr.ID, tr)
}

func (t *txn) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	b := &domain.Booking{}
	if err := t.get(bucketBookings, id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (t *txn) ListBookings(ctx context.Context, f domain.BookingFilter) ([]domain.Booking, error) {
	var out []domain.Booking
	err := each(t, bucketBookings, func(b *domain.Booking) error {
		switch {
		case f.Kind != "" && b.Kind != f.Kind,
			f.Status != "" && b.Status != f.Status,
			f.CustomerID != 0 && b.CustomerID != f.CustomerID,
			f.AgentID != 0 && (b.AgentID == nil || *b.AgentID != f.AgentID),
			!f.From.IsZero() && b.BookingDate.Before(f.From),
			!f.To.IsZero() && b.BookingDate.After(f.To):
			return nil
		}
		out = append(out, *b)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].BookingDate.After(out[j].BookingDate) })
	return page(out, f.Limit, f.Offset), nil
}

func (t *txn) InsertBooking(ctx context.Context, b *domain.Booking) error {
	refs := t.tx.Bucket(bucketBookingRefs)
	if refs.Get([]byte(b.RefNo)) != nil {
		return fmt.Errorf("%w: reference %s already used", domain.ErrAllocationConflict, b.RefNo)
	}

	id, err := t.nextID(bucketBookings)
	if err != nil {
		return err
	}
	b.ID = id
	if err := refs.Put([]byte(b.RefNo), itob(id)); err != nil {
		return err
	}
	return t.put(bucketBookings, b.ID, b)
}

func (t *txn) LockBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return t.GetBooking(ctx, id)
}

func (t *txn) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	return t.replace(bucketBookings, b.ID, b)
}

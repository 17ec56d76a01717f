package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"tripledger/internal/domain"
	"tripledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNextSequence_ConcurrentAllocationsAreDense(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	const n = 40
	var (
		mu   sync.Mutex
		seqs []int64
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
				seq, err := tx.NextSequence(ctx, 2025, "T")
				if err != nil {
					return err
				}
				mu.Lock()
				seqs = append(seqs, seq)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	require.Len(t, seqs, n)
	for i, s := range seqs {
		assert.Equal(t, int64(i+1), s)
	}
}

func TestNextSequence_RolledBackAllocationLeavesNoGap(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.NextSequence(ctx, 2025, "R"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var seq int64
	err = st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		seq, err = tx.NextSequence(ctx, 2025, "R")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestInsertTransaction_DuplicateRefIsConflict(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insert := func() error {
		return st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertTransaction(ctx, &domain.Transaction{
				RefNo:  "2025/P/00001",
				Type:   domain.TxnPayment,
				Amount: decimal.NewFromInt(10),
				Status: domain.StatusActive,
			})
		})
	}

	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), domain.ErrAllocationConflict)
}

func TestEntitiesAndTill_RoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	e := &domain.Entity{Kind: domain.KindCustomer, Name: "Asha", Active: true, CreatedAt: now, UpdatedAt: now}
	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertEntity(ctx, e); err != nil {
			return err
		}
		till, err := tx.LockTill(ctx, domain.TillCash)
		if err != nil {
			return err
		}
		till.Cash = decimal.RequireFromString("250.75")
		till.UpdatedAt = now
		return tx.UpdateTill(ctx, till, domain.TillCash)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.ID)

	got, err := st.GetEntity(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)

	till, err := st.GetTill(ctx)
	require.NoError(t, err)
	assert.True(t, till.Cash.Equal(decimal.RequireFromString("250.75")))
	assert.True(t, till.Online.IsZero())

	err = st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockEntities(ctx, []int64{e.ID, 42})
		if err != nil {
			return err
		}
		assert.Len(t, locked, 1)
		return nil
	})
	require.NoError(t, err)

	_, err = st.GetEntity(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListTransactions_FiltersAndOrders(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	customer, agent := int64(1), int64(2)
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }
	txns := []*domain.Transaction{
		{RefNo: "2025/R/00001", Type: domain.TxnReceipt, Date: day(3), EntityID: &customer, Status: domain.StatusActive},
		{RefNo: "2025/P/00001", Type: domain.TxnPayment, Date: day(5), EntityID: &agent, Status: domain.StatusActive},
		{RefNo: "2025/W/00001", Type: domain.TxnWalletTransfer, Date: day(4), FromEntityID: &agent, ToEntityID: &customer, Status: domain.StatusReversed},
	}
	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, tr := range txns {
			if err := tx.InsertTransaction(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	got, err := st.ListTransactions(ctx, domain.TransactionFilter{EntityID: customer})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025/W/00001", got[0].RefNo)
	assert.Equal(t, "2025/R/00001", got[1].RefNo)

	got, err = st.ListTransactions(ctx, domain.TransactionFilter{Status: domain.StatusActive, From: day(4)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025/P/00001", got[0].RefNo)

	got, err = st.ListTransactions(ctx, domain.TransactionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025/W/00001", got[0].RefNo)
}

func TestUpdateBooking_MissingRecord(t *testing.T) {
	st := openTestStore(t)

	err := st.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateBooking(ctx, &domain.Booking{ID: 9, Status: domain.BookingCancelled})
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunInTx_CancelledContext(t *testing.T) {
	st := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

package refno

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tripledger/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSequencer struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *memSequencer) NextSequence(_ context.Context, year int, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	key := Format(year, prefix, 0)
	m.counters[key]++
	return m.counters[key], nil
}

type stuckSequencer struct{}

func (stuckSequencer) NextSequence(context.Context, int, string) (int64, error) { return 0, nil }

func TestAllocate_FormatsPerSeries(t *testing.T) {
	seq := &memSequencer{}
	ctx := context.Background()

	ref, err := Allocate(ctx, seq, string(domain.BookingTicket), 2025)
	require.NoError(t, err)
	assert.Equal(t, "2025/T/00001", ref)

	ref, err = Allocate(ctx, seq, string(domain.TxnPayment), 2025)
	require.NoError(t, err)
	assert.Equal(t, "2025/P/00001", ref)

	ref, err = Allocate(ctx, seq, string(domain.BookingTicket), 2025)
	require.NoError(t, err)
	assert.Equal(t, "2025/T/00002", ref)

	ref, err = Allocate(ctx, seq, string(domain.BookingTicket), 2026)
	require.NoError(t, err)
	assert.Equal(t, "2026/T/00001", ref)
}

func TestAllocate_UnknownSeries(t *testing.T) {
	_, err := Allocate(context.Background(), &memSequencer{}, "invoice", 2025)
	assert.ErrorIs(t, err, ErrUnknownSeries)
}

func TestAllocate_NonPositiveSequenceIsConflict(t *testing.T) {
	_, err := Allocate(context.Background(), stuckSequencer{}, string(domain.TxnRefund), 2025)
	assert.True(t, errors.Is(err, domain.ErrAllocationConflict))
}

func TestAllocate_ConcurrentCallersGetDistinctSequences(t *testing.T) {
	seq := &memSequencer{}
	const n = 50

	var wg sync.WaitGroup
	refs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := Allocate(context.Background(), seq, string(domain.TxnReceipt), 2025)
			assert.NoError(t, err)
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	seen := map[int64]bool{}
	for ref := range refs {
		_, prefix, s, err := Parse(ref)
		require.NoError(t, err)
		assert.Equal(t, "R", prefix)
		seen[s] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing sequence %d", i)
	}
	assert.Len(t, seen, n)
}

func TestParse(t *testing.T) {
	year, prefix, seq, err := Parse("2025/W/00042")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, "W", prefix)
	assert.Equal(t, int64(42), seq)

	_, _, _, err = Parse("2025-W-42")
	assert.Error(t, err)
}

func TestCheckLeg(t *testing.T) {
	assert.NoError(t, CheckLeg("2025/T/00001-C"))
	assert.NoError(t, CheckLeg("2025/S/00012-CR3"))

	assert.Error(t, CheckLeg("2025/T/00001"))
	assert.Error(t, CheckLeg("2025/T/00001-"))
	assert.Error(t, CheckLeg("2025/R/00001-C"))
	assert.Error(t, CheckLeg("T00001-C"))
}

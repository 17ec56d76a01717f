// Package refno issues human-readable reference numbers of the form
// "{year}/{prefix}/{seq:05d}".
//
// Sequences come from an atomic counter keyed by (year, prefix) that lives in
// the same store transaction as the record being created, so an allocation
// that is rolled back leaves no gap.
package refno

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tripledger/internal/domain"
)

// Sequencer hands out the next value of the (year, prefix) counter.
type Sequencer interface {
	NextSequence(ctx context.Context, year int, prefix string) (int64, error)
}

var ErrUnknownSeries = errors.New("unknown reference series")

var prefixes = map[string]string{
	string(domain.TxnPayment):        "P",
	string(domain.TxnReceipt):        "R",
	string(domain.TxnRefund):         "E",
	string(domain.TxnWalletTransfer): "W",
	string(domain.BookingService):    "S",
	string(domain.BookingTicket):     "T",
}

// Prefix returns the fixed prefix of a transaction type or booking kind.
func Prefix(series string) (string, error) {
	p, ok := prefixes[series]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeries, series)
	}
	return p, nil
}

func Format(year int, prefix string, seq int64) string {
	return fmt.Sprintf("%d/%s/%05d", year, prefix, seq)
}

// Parse splits a reference back into its parts.
func Parse(ref string) (year int, prefix string, seq int64, err error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 3 {
		return 0, "", 0, fmt.Errorf("malformed reference %q", ref)
	}
	if year, err = strconv.Atoi(parts[0]); err != nil {
		return 0, "", 0, fmt.Errorf("malformed reference year %q: %w", ref, err)
	}
	if seq, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
		return 0, "", 0, fmt.Errorf("malformed reference sequence %q: %w", ref, err)
	}
	return year, parts[1], seq, nil
}

// CheckLeg verifies that ref is a booking reference followed by a leg
// suffix, as in "2025/T/00001-CR".
func CheckLeg(ref string) error {
	base, suffix, ok := strings.Cut(ref, "-")
	if !ok || suffix == "" {
		return fmt.Errorf("leg reference %q has no suffix", ref)
	}
	_, prefix, _, err := Parse(base)
	if err != nil {
		return err
	}
	if prefix != prefixes[string(domain.BookingService)] && prefix != prefixes[string(domain.BookingTicket)] {
		return fmt.Errorf("leg reference %q is not under a booking", ref)
	}
	return nil
}

// Allocate reserves the next reference of a series for the given year.
// A non-positive sequence means the counter could not be advanced and is
// reported as domain.ErrAllocationConflict so the caller retries.
func Allocate(ctx context.Context, s Sequencer, series string, year int) (string, error) {
	prefix, err := Prefix(series)
	if err != nil {
		return "", err
	}

	seq, err := s.NextSequence(ctx, year, prefix)
	if err != nil {
		return "", err
	}
	if seq <= 0 {
		return "", fmt.Errorf("%w: counter %d/%s returned %d", domain.ErrAllocationConflict, year, prefix, seq)
	}

	return Format(year, prefix, seq), nil
}

// Package transaction validates, resolves and applies transactions to the
// entity accounts and the company till, one atomic store unit per operation.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tripledger/internal/account"
	"tripledger/internal/domain"
	"tripledger/internal/effect"
	"tripledger/internal/logger"
	"tripledger/internal/metrics"
	"tripledger/internal/refno"
	"tripledger/internal/store"

	"github.com/cenkalti/backoff/v4"
)

const (
	OpCreate  = "create"
	OpReverse = "reverse"
	OpAmend   = "amend"
)

const defaultMaxAttempts = 5

// Notifier receives policy alerts for mutations applied with an override.
type Notifier interface {
	PublishAlert(ctx context.Context, alert domain.PolicyAlert) error
}

// Outcome is what one operation changed. It is published after the store
// transaction that produced it commits.
type Outcome struct {
	Operation string
	Txn       *domain.Transaction
	Deltas    domain.Deltas
	Warnings  domain.PolicyWarnings
}

// LegRef ties a transaction to the booking it settles.
type LegRef struct {
	BookingID int64
	Leg       domain.Leg
	RefNo     string
}

type Processor struct {
	store       store.Store
	policy      account.Policy
	maxAttempts int
	notifier    Notifier
	now         func() time.Time
	newBackOff  func() backoff.BackOff
}

type Option func(*Processor)

func WithPolicy(p account.Policy) Option {
	return func(pr *Processor) { pr.policy = p }
}

// WithMaxAttempts bounds how many times an atomic unit runs before
// ErrRetriesExhausted is returned.
func WithMaxAttempts(n int) Option {
	return func(pr *Processor) {
		if n > 0 {
			pr.maxAttempts = n
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(pr *Processor) { pr.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(pr *Processor) { pr.now = now }
}

func NewProcessor(st store.Store, opts ...Option) *Processor {
	p := &Processor{
		store:       st,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Atomically runs fn in one store transaction, re-running the whole unit on
// reference conflicts and transient store failures.
func (p *Processor) Atomically(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	attempts := 0
	op := func() error {
		attempts++
		err := p.store.RunInTx(ctx, fn)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrAllocationConflict):
			metrics.RecordRetry("allocation_conflict")
			return err
		case errors.Is(err, store.ErrTransient):
			metrics.RecordRetry("transient")
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.maxAttempts-1)), ctx)
	err := backoff.Retry(op, b)
	if err != nil && (errors.Is(err, domain.ErrAllocationConflict) || errors.Is(err, store.ErrTransient)) {
		logger.Warn("atomic unit gave up", "attempts", attempts, "error", err)
		return fmt.Errorf("%w (%d attempts): %v", domain.ErrRetriesExhausted, attempts, err)
	}
	return err
}

func (p *Processor) Create(ctx context.Context, in domain.TransactionInput, opts domain.Options) (*domain.Transaction, error) {
	if err := effect.ValidateInput(in); err != nil {
		return nil, err
	}

	var out *Outcome
	err := p.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = p.CreateTx(ctx, tx, in, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.Publish(ctx, out)
	return out.Txn, nil
}

// CreateTx allocates a reference and applies in inside tx.
func (p *Processor) CreateTx(ctx context.Context, tx store.Tx, in domain.TransactionInput, opts domain.Options) (*Outcome, error) {
	if err := effect.ValidateInput(in); err != nil {
		return nil, err
	}
	ref, err := refno.Allocate(ctx, tx, string(in.Type), in.Date.Year())
	if err != nil {
		return nil, err
	}
	return p.insert(ctx, tx, in, ref, nil, domain.LegNone, opts)
}

// CreateLegTx applies in as a booking leg under the booking's reference.
func (p *Processor) CreateLegTx(ctx context.Context, tx store.Tx, in domain.TransactionInput, leg LegRef, opts domain.Options) (*Outcome, error) {
	if err := effect.ValidateInput(in); err != nil {
		return nil, err
	}
	if err := refno.CheckLeg(leg.RefNo); err != nil {
		return nil, err
	}
	bookingID := leg.BookingID
	return p.insert(ctx, tx, in, leg.RefNo, &bookingID, leg.Leg, opts)
}

func (p *Processor) insert(ctx context.Context, tx store.Tx, in domain.TransactionInput, ref string, bookingID *int64, leg domain.Leg, opts domain.Options) (*Outcome, error) {
	deltas, err := p.resolve(ctx, tx, in, nil)
	if err != nil {
		return nil, err
	}
	warnings, err := p.apply(ctx, tx, deltas, opts)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	t := &domain.Transaction{
		RefNo:           ref,
		AppliedDeltas:   deltas,
		PolicyOverrides: warnings,
		Status:          domain.StatusActive,
		BookingID:       bookingID,
		Leg:             leg,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.SetInput(in)
	if err := tx.InsertTransaction(ctx, t); err != nil {
		return nil, err
	}

	return &Outcome{Operation: OpCreate, Txn: t, Deltas: deltas, Warnings: warnings}, nil
}

// Reverse undoes exactly what a transaction applied. Booking legs are only
// reversed through their booking.
func (p *Processor) Reverse(ctx context.Context, id int64, opts domain.Options) (*domain.Transaction, error) {
	var out *Outcome
	err := p.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return reversalTarget(id, err)
		}
		if t.BookingID != nil {
			return fmt.Errorf("%w: transaction %s belongs to booking %d", domain.ErrInvalidTransition, t.RefNo, *t.BookingID)
		}
		out, err = p.ReverseTx(ctx, tx, id, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.Publish(ctx, out)
	return out.Txn, nil
}

func (p *Processor) ReverseTx(ctx context.Context, tx store.Tx, id int64, opts domain.Options) (*Outcome, error) {
	t, err := tx.LockTransaction(ctx, id)
	if err != nil {
		return nil, reversalTarget(id, err)
	}
	if t.Status == domain.StatusReversed {
		return nil, fmt.Errorf("%w: transaction %s is already reversed", domain.ErrReversalMismatch, t.RefNo)
	}

	undo := t.AppliedDeltas.Negate()
	warnings, err := p.apply(ctx, tx, undo, opts)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	t.Status = domain.StatusReversed
	t.ReversedAt = &now
	t.UpdatedAt = now
	t.PolicyOverrides = append(t.PolicyOverrides, warnings...)
	if err := tx.UpdateTransaction(ctx, t); err != nil {
		return nil, err
	}

	return &Outcome{Operation: OpReverse, Txn: t, Deltas: undo, Warnings: warnings}, nil
}

func reversalTarget(id int64, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: transaction %d does not exist", domain.ErrReversalMismatch, id)
	}
	return err
}

// Amend replaces the caller-controlled fields of a transaction and applies
// only the difference between its new and old effect.
func (p *Processor) Amend(ctx context.Context, id int64, in domain.TransactionInput, opts domain.Options) (*domain.Transaction, error) {
	if err := effect.ValidateInput(in); err != nil {
		return nil, err
	}

	var out *Outcome
	err := p.Atomically(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return reversalTarget(id, err)
		}
		if t.BookingID != nil {
			return fmt.Errorf("%w: transaction %s belongs to booking %d", domain.ErrInvalidTransition, t.RefNo, *t.BookingID)
		}
		out, err = p.AmendTx(ctx, tx, id, in, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.Publish(ctx, out)
	return out.Txn, nil
}

func (p *Processor) AmendTx(ctx context.Context, tx store.Tx, id int64, in domain.TransactionInput, opts domain.Options) (*Outcome, error) {
	t, err := tx.LockTransaction(ctx, id)
	if err != nil {
		return nil, reversalTarget(id, err)
	}
	if t.Status == domain.StatusReversed {
		return nil, fmt.Errorf("%w: transaction %s is reversed", domain.ErrReversalMismatch, t.RefNo)
	}
	if in.Type != t.Type {
		return nil, domain.NewFieldError("type", fmt.Sprintf("cannot change from %s", t.Type))
	}
	if err := effect.ValidateInput(in); err != nil {
		return nil, err
	}

	// Old and new parties are locked in one ascending pass; resolve and
	// apply then only touch rows this transaction already holds.
	known := t.Input().EntityIDs()
	if _, err := tx.LockEntities(ctx, append(append([]int64(nil), known...), in.EntityIDs()...)); err != nil {
		return nil, err
	}

	next, err := p.resolve(ctx, tx, in, known)
	if err != nil {
		return nil, err
	}
	diff := next.Sub(t.AppliedDeltas)
	warnings, err := p.apply(ctx, tx, diff, opts)
	if err != nil {
		return nil, err
	}

	t.SetInput(in)
	t.AppliedDeltas = next
	t.PolicyOverrides = append(t.PolicyOverrides, warnings...)
	t.UpdatedAt = p.now().UTC()
	if err := tx.UpdateTransaction(ctx, t); err != nil {
		return nil, err
	}

	return &Outcome{Operation: OpAmend, Txn: t, Deltas: diff, Warnings: warnings}, nil
}

func (p *Processor) Get(ctx context.Context, id int64) (*domain.Transaction, error) {
	return p.store.GetTransaction(ctx, id)
}

func (p *Processor) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	verr := &domain.ValidationError{}
	if f.Type != "" && !f.Type.Valid() {
		verr.Add("type", "must be one of payment, receipt, refund, wallet_transfer")
	}
	if f.Status != "" && f.Status != domain.StatusActive && f.Status != domain.StatusReversed {
		verr.Add("status", "must be one of active, reversed")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		verr.Add("to", "must not be before from")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return p.store.ListTransactions(ctx, f)
}

// resolve computes the effect of in against the current entity kinds.
// Entities in known may be inactive; any other referenced entity must be
// active.
func (p *Processor) resolve(ctx context.Context, tx store.Tx, in domain.TransactionInput, known []int64) (domain.Deltas, error) {
	ids := in.EntityIDs()
	entities, err := tx.LockEntities(ctx, ids)
	if err != nil {
		return nil, err
	}

	allowed := make(map[int64]bool, len(known))
	for _, id := range known {
		allowed[id] = true
	}

	verr := &domain.ValidationError{}
	kinds := make(map[int64]domain.EntityKind, len(entities))
	for _, ref := range []struct {
		field string
		id    *int64
	}{
		{"entity_id", in.EntityID},
		{"from_entity_id", in.FromEntityID},
		{"to_entity_id", in.ToEntityID},
	} {
		if ref.id == nil {
			continue
		}
		e, ok := entities[*ref.id]
		switch {
		case !ok:
			verr.Add(ref.field, fmt.Sprintf("entity %d does not exist", *ref.id))
		case !e.Active && !allowed[e.ID]:
			verr.Add(ref.field, fmt.Sprintf("entity %d is inactive", e.ID))
		default:
			kinds[e.ID] = e.Kind
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	return effect.Resolve(effect.NewDescriptor(in, kinds))
}

// apply locks every balance deltas touch, entities first in ascending id
// order then till modes, and writes the new balances back. Warnings without
// an override reject the whole unit.
func (p *Processor) apply(ctx context.Context, tx store.Tx, deltas domain.Deltas, opts domain.Options) (domain.PolicyWarnings, error) {
	deltas = deltas.Net()
	if len(deltas) == 0 {
		return nil, nil
	}

	ids := deltas.EntityIDs()
	entities, err := tx.LockEntities(ctx, ids)
	if err != nil {
		return nil, err
	}
	modes := deltas.TillModes()
	var till *domain.Till
	if len(modes) > 0 {
		if till, err = tx.LockTill(ctx, modes...); err != nil {
			return nil, err
		}
	}

	warnings, err := account.Apply(deltas, entities, till, p.policy)
	if err != nil {
		return nil, err
	}
	if len(warnings) > 0 && !opts.Override {
		return nil, &domain.PolicyError{Warnings: warnings}
	}

	now := p.now().UTC()
	for _, id := range ids {
		e := entities[id]
		e.UpdatedAt = now
		if err := tx.UpdateEntity(ctx, e); err != nil {
			return nil, err
		}
	}
	if till != nil {
		till.UpdatedAt = now
		if err := tx.UpdateTill(ctx, till, modes...); err != nil {
			return nil, err
		}
	}
	return warnings, nil
}

// Publish records metrics, queues policy alerts and refreshes the till
// gauges for committed outcomes. Failures here never undo the commit.
func (p *Processor) Publish(ctx context.Context, outcomes ...*Outcome) {
	var tillModes []domain.TillMode
	for _, o := range outcomes {
		if o == nil || o.Txn == nil {
			continue
		}
		metrics.RecordTransaction(o.Operation, o.Txn.Type)
		logger.Info("transaction "+o.Operation, "ref_no", o.Txn.RefNo, "id", o.Txn.ID, "type", o.Txn.Type)
		tillModes = append(tillModes, o.Deltas.TillModes()...)

		if len(o.Warnings) == 0 {
			continue
		}
		metrics.RecordPolicyOverrides(o.Warnings)
		logger.Warn("policy overridden", "ref_no", o.Txn.RefNo, "operation", o.Operation, "warnings", len(o.Warnings))
		if p.notifier == nil {
			continue
		}
		alert := domain.PolicyAlert{
			TransactionID: o.Txn.ID,
			RefNo:         o.Txn.RefNo,
			Operation:     o.Operation,
			Warnings:      o.Warnings,
		}
		if err := p.notifier.PublishAlert(ctx, alert); err != nil {
			logger.Error("failed to queue policy alert", "ref_no", o.Txn.RefNo, "error", err)
		}
	}

	if len(tillModes) == 0 {
		return
	}
	till, err := p.store.GetTill(ctx)
	if err != nil {
		logger.Warn("failed to refresh till gauges", "error", err)
		return
	}
	metrics.SetTill(till, domain.TillModes...)
}

package account

import (
	"context"
	"time"

	"tripledger/internal/domain"
	"tripledger/internal/logger"
	"tripledger/internal/store"

	"github.com/shopspring/decimal"
)

type Service interface {
	CreateEntity(ctx context.Context, req CreateEntityRequest) (*domain.Entity, error)
	GetEntity(ctx context.Context, id int64) (*domain.Entity, error)
	ListEntities(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error)
	UpdateEntity(ctx context.Context, id int64, req UpdateEntityRequest) (*domain.Entity, error)
	DeactivateEntity(ctx context.Context, id int64) (*domain.Entity, error)
	GetTill(ctx context.Context) (*domain.Till, error)
}

type service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store) Service {
	return &service{
		store: st,
		now:   time.Now,
	}
}

func (s *service) CreateEntity(ctx context.Context, req CreateEntityRequest) (*domain.Entity, error) {
	kind := domain.EntityKind(req.Kind)
	verr := &domain.ValidationError{}
	checkLimits(verr, kind, req.CreditLimit, req.AllowNegativeWallet)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &domain.Entity{
		Kind:                kind,
		Name:                req.Name,
		Phone:               req.Phone,
		Email:               req.Email,
		AllowNegativeWallet: req.AllowNegativeWallet,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.CreditLimit != nil {
		e.CreditLimit = *req.CreditLimit
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertEntity(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("entity created", "entity_id", e.ID, "kind", e.Kind)
	return e, nil
}

func (s *service) GetEntity(ctx context.Context, id int64) (*domain.Entity, error) {
	return s.store.GetEntity(ctx, id)
}

func (s *service) ListEntities(ctx context.Context, f domain.EntityFilter) ([]domain.Entity, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, domain.NewFieldError("kind", "must be one of customer, agent, partner, other")
	}
	return s.store.ListEntities(ctx, f)
}

func (s *service) UpdateEntity(ctx context.Context, id int64, req UpdateEntityRequest) (*domain.Entity, error) {
	var updated *domain.Entity
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		e, err := lockOne(ctx, tx, id)
		if err != nil {
			return err
		}

		allowNegative := e.AllowNegativeWallet
		if req.AllowNegativeWallet != nil {
			allowNegative = *req.AllowNegativeWallet
		}
		verr := &domain.ValidationError{}
		checkLimits(verr, e.Kind, req.CreditLimit, allowNegative)
		if err := verr.OrNil(); err != nil {
			return err
		}

		if req.Name != nil {
			e.Name = *req.Name
		}
		if req.Phone != nil {
			e.Phone = *req.Phone
		}
		if req.Email != nil {
			e.Email = *req.Email
		}
		if req.CreditLimit != nil {
			e.CreditLimit = *req.CreditLimit
		}
		e.AllowNegativeWallet = allowNegative
		e.UpdatedAt = s.now().UTC()

		if err := tx.UpdateEntity(ctx, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeactivateEntity stops an entity from taking part in new transactions.
// Existing transactions can still be reversed or amended.
func (s *service) DeactivateEntity(ctx context.Context, id int64) (*domain.Entity, error) {
	var updated *domain.Entity
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		e, err := lockOne(ctx, tx, id)
		if err != nil {
			return err
		}
		if !e.Active {
			updated = e
			return nil
		}
		e.Active = false
		e.UpdatedAt = s.now().UTC()
		if err := tx.UpdateEntity(ctx, e); err != nil {
			return err
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("entity deactivated", "entity_id", id)
	return updated, nil
}

func (s *service) GetTill(ctx context.Context) (*domain.Till, error) {
	return s.store.GetTill(ctx)
}

func lockOne(ctx context.Context, tx store.Tx, id int64) (*domain.Entity, error) {
	locked, err := tx.LockEntities(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	e, ok := locked[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func checkLimits(verr *domain.ValidationError, kind domain.EntityKind, creditLimit *decimal.Decimal, allowNegative bool) {
	if creditLimit != nil {
		switch {
		case !kind.HasCreditLine():
			verr.Add("credit_limit", "only customers and agents have a credit line")
		case creditLimit.IsNegative():
			verr.Add("credit_limit", "must be greater than or equal to 0")
		}
	}
	if allowNegative && kind != domain.KindPartner {
		verr.Add("allow_negative_wallet", "only partners may run a negative wallet")
	}
}

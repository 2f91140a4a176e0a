// Package treasury tracks the deployment's operational balance so the
// operator can sweep accumulated funds. It has no bearing on update
// acceptance.
package treasury

import (
	"context"

	"github.com/relaybridge/feed_registry/internal/app/storage"
	"github.com/relaybridge/feed_registry/pkg/logger"
)

// Service manages the operational funds balance.
type Service struct {
	store storage.TreasuryStore
	log   *logger.Logger
}

// New constructs a treasury service.
func New(store storage.TreasuryStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("treasury")
	}
	return &Service{store: store, log: log}
}

// Balance returns the current operational balance.
func (s *Service) Balance(ctx context.Context) (uint64, error) {
	return s.store.TreasuryBalance(ctx)
}

// Deposit credits the balance and returns the new total.
func (s *Service) Deposit(ctx context.Context, amount uint64) (uint64, error) {
	balance, err := s.store.TreasuryDeposit(ctx, amount)
	if err != nil {
		return 0, err
	}
	s.log.WithField("amount", amount).
		WithField("balance", balance).
		Info("operational funds deposited")
	return balance, nil
}

// Withdraw debits amount to the given recipient, or the full balance when
// amount is zero. Fails with feed.ErrNoFunds when nothing can be withdrawn.
func (s *Service) Withdraw(ctx context.Context, amount uint64, recipient string) (uint64, error) {
	withdrawn, remaining, err := s.store.TreasuryWithdraw(ctx, amount)
	if err != nil {
		return 0, err
	}
	s.log.WithField("amount", withdrawn).
		WithField("recipient", recipient).
		WithField("remaining", remaining).
		Info("operational funds withdrawn")
	return withdrawn, nil
}

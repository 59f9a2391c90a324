// Package wallet holds the deposit screen: local minimum-amount gating, one
// remote-procedure call per submission, and an optimistic display balance
// pending the authoritative re-read.
package wallet

import (
	"context"
	"sync"

	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/session"
)

// MinDeposit is the smallest accepted deposit amount, checked locally
// before the remote procedure is invoked.
const MinDeposit = 10

// DepositScreen is the deposit view-model.
type DepositScreen struct {
	backend backend.Client
	session *session.Context

	mu         sync.Mutex
	submitting bool
	balance    float64
}

// NewDepositScreen builds the deposit view-model.
func NewDepositScreen(b backend.Client, sess *session.Context) *DepositScreen {
	return &DepositScreen{backend: b, session: sess}
}

// Submitting reports whether a deposit is in flight.
func (s *DepositScreen) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Balance returns the display balance, which may be an optimistic value
// between a deposit and the next Refresh.
func (s *DepositScreen) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Refresh re-reads the authoritative balance.
func (s *DepositScreen) Refresh(ctx context.Context) error {
	snap := s.session.Snapshot()
	if snap.Identity == nil {
		return &backend.AuthError{Reason: "you must be logged in"}
	}
	balance, err := s.backend.WalletBalance(ctx, snap.Identity.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.balance = balance
	s.mu.Unlock()
	return nil
}

// Deposit validates the amount locally and invokes the deposit procedure
// exactly once. On success the display balance is bumped optimistically;
// callers Refresh afterwards to converge on the server value.
func (s *DepositScreen) Deposit(ctx context.Context, amount float64) error {
	snap := s.session.Snapshot()
	if snap.Identity == nil {
		return &backend.AuthError{Reason: "you must be logged in"}
	}
	if amount < MinDeposit {
		return &backend.ValidationError{Field: "amount", Reason: "minimum deposit is $10.00"}
	}

	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return &backend.ValidationError{Reason: "submission already in progress"}
	}
	s.submitting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	if err := s.backend.DepositFunds(ctx, amount); err != nil {
		return err
	}

	s.mu.Lock()
	s.balance += amount
	s.mu.Unlock()
	return nil
}

package store

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/rewardledger/internal/kv"
	"github.com/dukerupert/rewardledger/internal/model"
	"github.com/google/uuid"
)

// WithdrawalPolicy holds the limits a payout request is checked against.
type WithdrawalPolicy struct {
	MinAmount         int
	MinDestinationLen int
}

// WithdrawalStore records payout requests. A request reserves the account's
// whole balance; rejecting it restores exactly the reserved amount.
type WithdrawalStore struct {
	withdrawals kv.Collection[[]model.Withdrawal]
	accounts    *AccountStore
	policy      WithdrawalPolicy
	now         func() time.Time
	newID       func() string
}

func NewWithdrawalStore(c Collections, accounts *AccountStore, policy WithdrawalPolicy) *WithdrawalStore {
	return &WithdrawalStore{
		withdrawals: c.Withdrawals,
		accounts:    accounts,
		policy:      policy,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// ValidateDestination checks that dest is a handle@provider pair with exactly
// one separator, non-empty on both sides, and at least minLen bytes long.
func ValidateDestination(dest string, minLen int) error {
	if len(dest) < minLen || strings.Count(dest, "@") != 1 {
		return model.ErrInvalidDestination
	}
	handle, provider, _ := strings.Cut(dest, "@")
	if handle == "" || provider == "" {
		return model.ErrInvalidDestination
	}
	return nil
}

// Request reserves the account's entire balance for a payout to destination.
// Nothing changes unless both the minimum and the destination checks pass.
func (s *WithdrawalStore) Request(accountID, destination string) (*model.Withdrawal, error) {
	destination = strings.TrimSpace(destination)

	var w model.Withdrawal
	reserved := false
	err := s.withdrawals.Upsert(accountID, func(list *[]model.Withdrawal, _ bool) error {
		err := s.accounts.Mutate(accountID, func(a *model.Account) error {
			if a.Blocked {
				return model.ErrBlocked
			}
			if a.Balance <= 0 || a.Balance < s.policy.MinAmount {
				return model.ErrBelowMinimum
			}
			if err := ValidateDestination(destination, s.policy.MinDestinationLen); err != nil {
				return err
			}
			w = model.Withdrawal{
				ID:          s.newID(),
				AccountID:   accountID,
				Amount:      a.Balance,
				Destination: destination,
				Status:      model.StatusPending,
				RequestedAt: s.now(),
			}
			a.Balance = 0
			return nil
		})
		if err != nil {
			return err
		}
		reserved = true
		*list = append(*list, w)
		return nil
	})
	if err != nil {
		if reserved {
			s.restore(accountID, w.Amount)
		}
		return nil, fmt.Errorf("request withdrawal: %w", err)
	}
	return &w, nil
}

// ListByAccount returns an account's withdrawals, oldest first.
func (s *WithdrawalStore) ListByAccount(accountID string) ([]model.Withdrawal, error) {
	list, err := s.withdrawals.Get(accountID)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}
	if list == nil {
		return nil, nil
	}
	return *list, nil
}

// ListPending returns every pending withdrawal, oldest first.
func (s *WithdrawalStore) ListPending() ([]model.Withdrawal, error) {
	all, err := s.withdrawals.List()
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}

	var pending []model.Withdrawal
	for _, list := range all {
		for _, w := range list {
			if w.Pending() {
				pending = append(pending, w)
			}
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].RequestedAt.Before(pending[j].RequestedAt)
	})
	return pending, nil
}

// Decide resolves the pending withdrawal the account requested at requestedAt.
func (s *WithdrawalStore) Decide(accountID string, requestedAt time.Time, outcome model.Outcome, reason string) (*model.Withdrawal, error) {
	return s.decide(accountID, outcome, reason, func(list []model.Withdrawal) (int, error) {
		for i, w := range list {
			if w.Pending() && w.RequestedAt.Equal(requestedAt) {
				return i, nil
			}
		}
		return -1, fmt.Errorf("pending withdrawal at %s: %w", requestedAt.Format(time.RFC3339Nano), model.ErrNotFound)
	})
}

// DecideByID resolves one specific withdrawal. Deciding one that already
// left pending fails with model.ErrInvalidTransition.
func (s *WithdrawalStore) DecideByID(accountID, withdrawalID string, outcome model.Outcome, reason string) (*model.Withdrawal, error) {
	return s.decide(accountID, outcome, reason, func(list []model.Withdrawal) (int, error) {
		for i, w := range list {
			if w.ID == withdrawalID {
				return i, nil
			}
		}
		return -1, fmt.Errorf("withdrawal %s: %w", withdrawalID, model.ErrNotFound)
	})
}

func (s *WithdrawalStore) decide(accountID string, outcome model.Outcome, reason string, pick func([]model.Withdrawal) (int, error)) (*model.Withdrawal, error) {
	if !outcome.Valid() {
		return nil, fmt.Errorf("outcome %q: %w", outcome, model.ErrInvalidTransition)
	}

	var decided model.Withdrawal
	restored := false
	err := s.withdrawals.Update(accountID, func(list *[]model.Withdrawal) error {
		idx, err := pick(*list)
		if err != nil {
			return err
		}
		w := &(*list)[idx]
		if !w.Pending() {
			return fmt.Errorf("withdrawal %s is %s: %w", w.ID, w.Status, model.ErrInvalidTransition)
		}

		if outcome == model.OutcomeReject {
			if err := s.accounts.Credit(accountID, w.Amount); err != nil {
				return err
			}
			restored = true
			w.Reason = reason
		}
		now := s.now()
		w.Status = outcome.Status()
		w.ProcessedAt = &now
		decided = *w
		return nil
	})
	if err != nil {
		if restored {
			s.unrestore(accountID, decided.Amount)
		}
		return nil, fmt.Errorf("decide withdrawal: %w", err)
	}
	return &decided, nil
}

func (s *WithdrawalStore) restore(accountID string, amount int) {
	if err := s.accounts.Credit(accountID, amount); err != nil {
		slog.Error("restore reserved withdrawal amount", "account_id", accountID, "amount", amount, "error", err)
	}
}

func (s *WithdrawalStore) unrestore(accountID string, amount int) {
	if err := s.accounts.Debit(accountID, amount); err != nil {
		slog.Error("reverse withdrawal restore", "account_id", accountID, "amount", amount, "error", err)
	}
}

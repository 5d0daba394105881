package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dukerupert/rewardledger/internal/kv"
	"github.com/dukerupert/rewardledger/internal/model"
)

const (
	referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	referralCodeLength   = 8
	maxCodeAttempts      = 10
)

var errCodeSpaceExhausted = errors.New("could not allocate a unique referral code")

type AccountStore struct {
	accounts kv.Collection[model.Account]
	codes    kv.Collection[string]
	now      func() time.Time
	newCode  func() (string, error)
}

func NewAccountStore(c Collections) *AccountStore {
	return &AccountStore{
		accounts: c.Accounts,
		codes:    c.ReferralCodes,
		now:      time.Now,
		newCode:  generateReferralCode,
	}
}

func generateReferralCode() (string, error) {
	max := big.NewInt(int64(len(referralCodeAlphabet)))
	code := make([]byte, referralCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		code[i] = referralCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

func (s *AccountStore) GetByID(id string) (*model.Account, error) {
	a, err := s.accounts.Get(id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// GetByReferralCode returns nil, nil when no account owns code.
func (s *AccountStore) GetByReferralCode(code string) (*model.Account, error) {
	if code == "" {
		return nil, nil
	}
	owner, err := s.codes.Get(code)
	if err != nil {
		return nil, fmt.Errorf("resolve referral code: %w", err)
	}
	if owner == nil {
		return nil, nil
	}
	a, err := s.GetByID(*owner)
	if err != nil {
		return nil, err
	}
	// A reservation left behind by a create that lost a race on the same id
	// points at an account carrying a different code.
	if a == nil || a.ReferralCode != code {
		return nil, nil
	}
	return a, nil
}

// Create registers a new account with a freshly reserved referral code.
// referredBy may be empty.
func (s *AccountStore) Create(id, name, referredBy string) (*model.Account, error) {
	existing, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("create account %s: %w", id, model.ErrAlreadyExists)
	}

	code, err := s.reserveCode(id)
	if err != nil {
		return nil, err
	}

	a := model.Account{
		ID:             id,
		Name:           name,
		ReferralCode:   code,
		ReferredBy:     referredBy,
		RegisteredAt:   s.now(),
		CompletedTasks: []model.CompletedTask{},
	}
	if err := s.accounts.Insert(id, a); err != nil {
		return nil, fmt.Errorf("create account %s: %w", id, err)
	}
	return &a, nil
}

func (s *AccountStore) reserveCode(id string) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		err = s.codes.Insert(code, id)
		if errors.Is(err, model.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("reserve referral code: %w", err)
		}
		return code, nil
	}
	return "", errCodeSpaceExhausted
}

// Mutate applies fn to the account as one atomic read-modify-write.
// The write is refused if fn leaves a negative balance or referral count.
func (s *AccountStore) Mutate(id string, fn func(a *model.Account) error) error {
	err := s.accounts.Update(id, func(a *model.Account) error {
		if err := fn(a); err != nil {
			return err
		}
		if a.Balance < 0 {
			return model.ErrInsufficientBalance
		}
		if a.Referrals < 0 {
			return fmt.Errorf("negative referral count for account %s", id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	return nil
}

func (s *AccountStore) Credit(id string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit %d: %w", amount, model.ErrInvalidReward)
	}
	return s.Mutate(id, func(a *model.Account) error {
		a.Balance += amount
		return nil
	})
}

func (s *AccountStore) Debit(id string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("debit %d: %w", amount, model.ErrInvalidReward)
	}
	return s.Mutate(id, func(a *model.Account) error {
		if amount > a.Balance {
			return model.ErrInsufficientBalance
		}
		a.Balance -= amount
		return nil
	})
}

func (s *AccountStore) SetBlocked(id string, blocked bool) error {
	return s.Mutate(id, func(a *model.Account) error {
		a.Blocked = blocked
		return nil
	})
}

func (s *AccountStore) AppendCompletedTask(id, taskID string, reward int, at time.Time) error {
	return s.Mutate(id, func(a *model.Account) error {
		a.CompletedTasks = append(a.CompletedTasks, model.CompletedTask{
			TaskID:      taskID,
			Reward:      reward,
			CompletedAt: at,
		})
		return nil
	})
}

// List returns all accounts in registration order.
func (s *AccountStore) List() ([]model.Account, error) {
	accounts, err := s.accounts.List()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

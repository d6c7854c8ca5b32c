package accounts

import (
	"context"
	"sync"

	goOTP "github.com/MrEthical07/goOTP"
)

// MemoryStore is a goroutine-safe in-process AccountStore.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]goOTP.Account
}

var _ goOTP.AccountStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]goOTP.Account)}
}

func (s *MemoryStore) GetAccount(ctx context.Context, email string) (goOTP.Account, error) {
	if err := ctx.Err(); err != nil {
		return goOTP.Account{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[email]
	if !ok {
		return goOTP.Account{}, goOTP.ErrUserNotFound
	}
	return account, nil
}

// CreateAccount stores account keyed by its email.
func (s *MemoryStore) CreateAccount(ctx context.Context, account goOTP.Account) (goOTP.Account, error) {
	if err := ctx.Err(); err != nil {
		return goOTP.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.Email]; ok {
		return goOTP.Account{}, goOTP.ErrAccountExists
	}
	s.accounts[account.Email] = account
	return account, nil
}

// Len returns the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

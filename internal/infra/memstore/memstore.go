// Package memstore is an in-memory AccountStore used for local runs and tests.
// It enforces the same account number uniqueness constraint as the database.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"

	"github.com/google/uuid"
)

// Store keeps accounts in maps guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Account
	byNumber map[string]string // account number -> id
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byID:     make(map[string]*domain.Account),
		byNumber: make(map[string]string),
		now:      time.Now,
	}
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return a.Clone(), nil
}

func (s *Store) GetByNumber(_ context.Context, number string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNumber[number]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: number}
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0)
	for _, a := range s.byID {
		if a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *Store) ExistsByNumber(_ context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byNumber[number]
	return ok, nil
}

// Save inserts accounts without an ID and updates the rest.
// Only the balance is mutable on update; identity fields keep their stored values.
func (s *Store) Save(_ context.Context, account *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()

	if account.ID == "" {
		if _, taken := s.byNumber[account.AccountNumber]; taken {
			return nil, &domain.ErrDuplicate{Key: "account_number=" + account.AccountNumber}
		}
		stored := account.Clone()
		stored.ID = uuid.NewString()
		stored.CreatedAt = now
		stored.UpdatedAt = now
		s.byID[stored.ID] = stored
		s.byNumber[stored.AccountNumber] = stored.ID
		return stored.Clone(), nil
	}

	existing, ok := s.byID[account.ID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: account.ID}
	}
	existing.Balance = account.Balance
	existing.UpdatedAt = now
	return existing.Clone(), nil
}

func (s *Store) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "account", ID: id}
	}
	delete(s.byNumber, a.AccountNumber)
	delete(s.byID, id)
	return nil
}

func (s *Store) ListAll(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.byID))
	for _, a := range s.byID {
		out = append(out, *a)
	}
	sortByCreation(out)
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func sortByCreation(accounts []domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].AccountNumber < accounts[j].AccountNumber
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
}

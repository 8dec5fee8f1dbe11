package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/lock"
	"github.com/boddenberg/account-ms/internal/infra/memstore"
	"github.com/boddenberg/account-ms/internal/infra/observability"
	"github.com/boddenberg/account-ms/internal/port"
	"github.com/boddenberg/account-ms/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Mocks ---

type mockDirectory struct {
	known map[string]bool
	err   error
	calls int32
}

func (m *mockDirectory) Exists(_ context.Context, ownerID string) (bool, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return false, m.err
	}
	return m.known[ownerID], nil
}

// scriptedRand returns the queued values in order, then repeats the last one.
type scriptedRand struct {
	mu     sync.Mutex
	values []int
	calls  int
}

func (s *scriptedRand) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[0]
	if len(s.values) > 1 {
		s.values = s.values[1:]
	}
	return v % n
}

func (s *scriptedRand) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// spyStore wraps a real store, counting writes and injecting failures.
type spyStore struct {
	port.AccountStore

	saves      int32
	probes     int32
	duplicates int32 // inserts to reject with ErrDuplicate before delegating
	existsErr  error
	saveErr    error
	getErr     error
}

func (s *spyStore) Save(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	atomic.AddInt32(&s.saves, 1)
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	if a.ID == "" && atomic.AddInt32(&s.duplicates, -1) >= 0 {
		return nil, &domain.ErrDuplicate{Key: "account_number=" + a.AccountNumber}
	}
	return s.AccountStore.Save(ctx, a)
}

func (s *spyStore) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	atomic.AddInt32(&s.probes, 1)
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.AccountStore.ExistsByNumber(ctx, number)
}

func (s *spyStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.AccountStore.GetByID(ctx, id)
}

func (s *spyStore) Saves() int { return int(atomic.LoadInt32(&s.saves)) }

func (s *spyStore) Probes() int { return int(atomic.LoadInt32(&s.probes)) }

// failingLocker never grants the lock.
type failingLocker struct{}

func (failingLocker) WithLock(context.Context, string, func(context.Context) error) error {
	return errors.New("redis: connection refused")
}

// expiredLocker grants the lock but its lease has already run out.
type expiredLocker struct{}

func (expiredLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(port.WithLease(ctx, func(context.Context) error {
		return errors.New("lock expired")
	}))
}

// --- Fixtures ---

type fixture struct {
	store     *spyStore
	directory *mockDirectory
	rand      *scriptedRand
	metrics   *observability.Metrics
	allocator *service.Allocator
	engine    *service.Engine
	lifecycle *service.Lifecycle
	adapter   *service.NumberAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     &spyStore{AccountStore: memstore.New()},
		directory: &mockDirectory{known: map[string]bool{"cust-1": true, "cust-2": true}},
		rand:      &scriptedRand{values: []int{23456}},
		metrics:   observability.NewMetrics(),
	}
	f.wire(lock.NewKeyedMutex(), f.rand, service.DefaultMaxAttempts)
	return f
}

func (f *fixture) wire(locker port.Locker, src service.RandSource, maxAttempts int) {
	logger := zap.NewNop()
	f.allocator = service.NewAllocator(f.store, src, maxAttempts, f.metrics, logger)
	f.engine = service.NewEngine(f.store, locker, f.metrics, logger)
	f.lifecycle = service.NewLifecycle(f.store, f.directory, f.allocator, f.metrics, logger)
	f.adapter = service.NewNumberAdapter(f.store, f.engine)
}

// seed inserts an account directly, bypassing owner checks.
func (f *fixture) seed(t *testing.T, number string, typ domain.AccountType, balance string) *domain.Account {
	t.Helper()
	acc, err := f.store.AccountStore.Save(context.Background(), &domain.Account{
		AccountNumber: number,
		Balance:       decimal.RequireFromString(balance),
		Type:          typ,
		OwnerID:       "cust-1",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return acc
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	acc, err := f.store.AccountStore.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return acc.Balance
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

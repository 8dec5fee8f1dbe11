package service_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/memstore"
	"github.com/boddenberg/account-ms/internal/infra/observability"
	"github.com/boddenberg/account-ms/internal/service"

	"go.uber.org/zap"
)

func TestAllocate_FirstCandidateFree(t *testing.T) {
	f := newFixture(t)

	number, err := f.allocator.Allocate(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if number != "123456" {
		t.Errorf("expected 123456, got %s", number)
	}
}

func TestAllocate_RegeneratesOnCollision(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "100001", domain.AccountTypeSavings, "10")
	f.seed(t, "100002", domain.AccountTypeSavings, "10")

	src := &scriptedRand{values: []int{1, 2, 3}}
	f.wire(nil, src, service.DefaultMaxAttempts)

	number, err := f.allocator.Allocate(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if number != "100003" {
		t.Errorf("expected 100003, got %s", number)
	}
	if src.Calls() != 3 {
		t.Errorf("expected 3 draws, got %d", src.Calls())
	}
}

func TestAllocate_Exhausted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "100000", domain.AccountTypeSavings, "10")

	src := &scriptedRand{values: []int{0}}
	f.wire(nil, src, 5)

	_, err := f.allocator.Allocate(context.Background())
	var exhausted *domain.ErrAllocationExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ErrAllocationExhausted, got %v", err)
	}
	if exhausted.Attempts != 5 || src.Calls() != 5 {
		t.Errorf("expected 5 attempts, got %d (draws %d)", exhausted.Attempts, src.Calls())
	}
}

func TestAllocate_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.existsErr = errors.New("connection reset")

	_, err := f.allocator.Allocate(context.Background())
	var unavailable *domain.ErrStoreUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestAllocate_DefaultSourceStaysInRange(t *testing.T) {
	a := service.NewAllocator(memstore.New(), nil, 0, observability.NewMetrics(), zap.NewNop())
	if a.MaxAttempts() != service.DefaultMaxAttempts {
		t.Errorf("expected default cap %d, got %d", service.DefaultMaxAttempts, a.MaxAttempts())
	}

	for i := 0; i < 1000; i++ {
		number, err := a.Allocate(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		n, err := strconv.Atoi(number)
		if err != nil || len(number) != 6 || n < 100000 || n > 999999 {
			t.Fatalf("number out of range: %q", number)
		}
	}
}

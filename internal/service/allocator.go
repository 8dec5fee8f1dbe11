package service

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/observability"
	"github.com/boddenberg/account-ms/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var allocTracer = otel.Tracer("service/allocator")

const (
	minAccountNumber = 100000
	maxAccountNumber = 999999

	// DefaultMaxAttempts bounds how many candidates one allocation may draw.
	DefaultMaxAttempts = 50
)

// RandSource yields pseudo-random integers in [0, n).
// Implementations must be safe for concurrent use.
type RandSource interface {
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.IntN(n) }

// DefaultRandSource draws from the process-wide math/rand/v2 generator.
func DefaultRandSource() RandSource { return globalRand{} }

// Allocator hands out 6-digit account numbers that are free in the store.
type Allocator struct {
	store       port.AccountStore
	rand        RandSource
	maxAttempts int
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewAllocator creates an Allocator. A nil source uses DefaultRandSource and
// a non-positive maxAttempts uses DefaultMaxAttempts.
func NewAllocator(store port.AccountStore, src RandSource, maxAttempts int, metrics *observability.Metrics, logger *zap.Logger) *Allocator {
	if src == nil {
		src = DefaultRandSource()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{
		store:       store,
		rand:        src,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger,
	}
}

// MaxAttempts returns the attempt cap.
func (a *Allocator) MaxAttempts() int { return a.maxAttempts }

// Allocate returns a number in [100000, 999999] that no stored account uses.
// The number is not reserved; the store's uniqueness constraint settles races.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	number, _, err := a.allocate(ctx, a.maxAttempts)
	return number, err
}

// allocate draws at most budget candidates and reports how many it used.
func (a *Allocator) allocate(ctx context.Context, budget int) (string, int, error) {
	ctx, span := allocTracer.Start(ctx, "Allocator.Allocate")
	defer span.End()

	for attempt := 1; attempt <= budget; attempt++ {
		candidate := strconv.Itoa(minAccountNumber + a.rand.Intn(maxAccountNumber-minAccountNumber+1))

		taken, err := a.store.ExistsByNumber(ctx, candidate)
		if err != nil {
			return "", attempt, storeError("exists_by_number", err)
		}
		if !taken {
			a.metrics.RecordAllocationAttempts(attempt)
			span.SetAttributes(attribute.Int("allocation.attempts", attempt))
			return candidate, attempt, nil
		}
		a.logger.Debug("allocator: number collision", zap.String("candidate", candidate), zap.Int("attempt", attempt))
	}

	a.metrics.RecordAllocationAttempts(budget)
	a.logger.Error("allocator: no free account number", zap.Int("attempts", budget))
	return "", budget, &domain.ErrAllocationExhausted{Attempts: a.maxAttempts}
}

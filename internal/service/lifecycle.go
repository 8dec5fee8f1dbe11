package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/observability"
	"github.com/boddenberg/account-ms/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var lifecycleTracer = otel.Tracer("service/lifecycle")

const (
	opCreate = "create"
	opDelete = "delete"
)

// Lifecycle creates, deletes and looks up accounts.
type Lifecycle struct {
	store     port.AccountStore
	owners    port.OwnerDirectory
	allocator *Allocator
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(store port.AccountStore, owners port.OwnerDirectory, allocator *Allocator, metrics *observability.Metrics, logger *zap.Logger) *Lifecycle {
	return &Lifecycle{
		store:     store,
		owners:    owners,
		allocator: allocator,
		metrics:   metrics,
		logger:    logger,
	}
}

// Create opens an account for an existing owner with a positive opening
// balance. The owner is checked first, so a rejected owner never consumes an
// account number.
func (l *Lifecycle) Create(ctx context.Context, ownerID string, initialBalance decimal.Decimal, accountType string) (*domain.Account, error) {
	ctx, span := lifecycleTracer.Start(ctx, "Lifecycle.Create")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", ownerID), attribute.String("account.type", accountType))

	start := time.Now()
	acc, err := l.create(ctx, ownerID, initialBalance, accountType)
	finish(l.metrics, span, opCreate, start, err)
	return acc, err
}

func (l *Lifecycle) create(ctx context.Context, ownerID string, initialBalance decimal.Decimal, accountType string) (*domain.Account, error) {
	exists, err := l.owners.Exists(ctx, ownerID)
	if err != nil {
		var open *domain.ErrCircuitOpen
		var ext *domain.ErrExternalService
		if errors.As(err, &open) || errors.As(err, &ext) {
			return nil, err
		}
		return nil, &domain.ErrExternalService{Service: "customer-directory", Err: err}
	}
	if !exists {
		l.logger.Warn("lifecycle: unknown owner", zap.String("customer_id", ownerID))
		return nil, &domain.ErrOwnerNotFound{OwnerID: ownerID}
	}

	if !initialBalance.IsPositive() || !domain.InCents(initialBalance) {
		return nil, &domain.ErrInvalidBalance{Balance: initialBalance}
	}

	typ, ok := domain.ParseAccountType(accountType)
	if !ok {
		return nil, &domain.ErrValidation{Field: "typeAccount", Message: "must be savings or checking"}
	}

	// The allocator only checks; a concurrent creator can still take the
	// number first, in which case the insert reports a duplicate. Draws and
	// retries share one attempt budget.
	remaining := l.allocator.MaxAttempts()
	for remaining > 0 {
		number, used, err := l.allocator.allocate(ctx, remaining)
		remaining -= used
		if err != nil {
			return nil, err
		}

		saved, err := l.store.Save(ctx, &domain.Account{
			AccountNumber: number,
			Balance:       initialBalance,
			Type:          typ,
			OwnerID:       ownerID,
		})
		var dup *domain.ErrDuplicate
		if errors.As(err, &dup) {
			l.logger.Debug("lifecycle: account number taken concurrently, reallocating",
				zap.String("account_number", number),
				zap.Int("attempts_left", remaining),
			)
			continue
		}
		if err != nil {
			return nil, storeError("insert", err)
		}

		l.logger.Info("lifecycle: account created",
			zap.String("account_id", saved.ID),
			zap.String("account_number", saved.AccountNumber),
			zap.String("customer_id", ownerID),
			zap.String("type", string(saved.Type)),
		)
		return saved, nil
	}

	l.logger.Error("lifecycle: gave up after repeated number conflicts", zap.Int("attempts", l.allocator.MaxAttempts()))
	return nil, &domain.ErrAllocationExhausted{Attempts: l.allocator.MaxAttempts()}
}

// Delete removes an account. Accounts with a non-zero balance are removed too.
func (l *Lifecycle) Delete(ctx context.Context, id string) (*domain.Confirmation, error) {
	ctx, span := lifecycleTracer.Start(ctx, "Lifecycle.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", id))

	start := time.Now()
	conf, err := l.delete(ctx, id)
	finish(l.metrics, span, opDelete, start, err)
	return conf, err
}

func (l *Lifecycle) delete(ctx context.Context, id string) (*domain.Confirmation, error) {
	acc, err := l.store.GetByID(ctx, id)
	if err != nil {
		return nil, storeError("get_by_id", err)
	}
	if !acc.Balance.IsZero() {
		l.logger.Warn("lifecycle: deleting account with non-zero balance",
			zap.String("account_id", id),
			zap.String("balance", acc.Balance.String()),
		)
	}

	if err := l.store.DeleteByID(ctx, id); err != nil {
		return nil, storeError("delete", err)
	}

	l.logger.Info("lifecycle: account deleted", zap.String("account_id", id))
	return &domain.Confirmation{Message: "account deleted", ID: id}, nil
}

// ============================================================
// Lookups
// ============================================================

// List returns every account.
func (l *Lifecycle) List(ctx context.Context) ([]domain.Account, error) {
	ctx, span := lifecycleTracer.Start(ctx, "Lifecycle.List")
	defer span.End()

	accounts, err := l.store.ListAll(ctx)
	return accounts, storeError("list_all", err)
}

// Get returns the account with the given id, or *domain.ErrNotFound.
func (l *Lifecycle) Get(ctx context.Context, id string) (*domain.Account, error) {
	ctx, span := lifecycleTracer.Start(ctx, "Lifecycle.Get")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", id))

	acc, err := l.store.GetByID(ctx, id)
	return acc, storeError("get_by_id", err)
}

// GetByNumber looks an account up by its public account number.
func (l *Lifecycle) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	ctx, span := lifecycleTracer.Start(ctx, "Lifecycle.GetByNumber")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", number))

	acc, err := l.store.GetByNumber(ctx, number)
	return acc, storeError("get_by_number", err)
}

// ListByOwner returns the owner's accounts, empty when there are none.
func (l *Lifecycle) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	ctx, span := lifecycleTracer.Start(ctx, "Lifecycle.ListByOwner")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", ownerID))

	accounts, err := l.store.ListByOwner(ctx, ownerID)
	return accounts, storeError("list_by_owner", err)
}

package service

import (
	"context"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/observability"
	"github.com/boddenberg/account-ms/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var engineTracer = otel.Tracer("service/engine")

const (
	opDeposit  = "deposit"
	opWithdraw = "withdraw"
)

// Engine applies deposits and withdrawals. Each mutation is a single
// read-validate-write performed while the account's lock is held, so
// concurrent operations on one account are serialized and a balance never
// crosses its type's floor.
type Engine struct {
	store   port.AccountStore
	locker  port.Locker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(store port.AccountStore, locker port.Locker, metrics *observability.Metrics, logger *zap.Logger) *Engine {
	return &Engine{store: store, locker: locker, metrics: metrics, logger: logger}
}

// Deposit adds a positive amount to the account balance.
func (e *Engine) Deposit(ctx context.Context, id string, amount decimal.Decimal) (*domain.Account, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Deposit")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", id), attribute.String("amount", amount.String()))

	start := time.Now()
	acc, err := e.mutate(ctx, opDeposit, id, amount, func(acc *domain.Account) error {
		acc.Balance = acc.Balance.Add(amount)
		return nil
	})
	finish(e.metrics, span, opDeposit, start, err)
	return acc, err
}

// Withdraw subtracts a positive amount. Savings accounts may not go below
// zero; checking accounts may not go below CheckingOverdraftFloor.
func (e *Engine) Withdraw(ctx context.Context, id string, amount decimal.Decimal) (*domain.Account, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Withdraw")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", id), attribute.String("amount", amount.String()))

	start := time.Now()
	acc, err := e.mutate(ctx, opWithdraw, id, amount, func(acc *domain.Account) error {
		next := acc.Balance.Sub(amount)
		floor := acc.Type.Floor()
		if next.LessThan(floor) {
			return &domain.ErrInsufficientFunds{
				Variant:   acc.Type,
				Available: acc.Balance,
				Required:  amount,
				Floor:     floor,
			}
		}
		acc.Balance = next
		return nil
	})
	finish(e.metrics, span, opWithdraw, start, err)
	return acc, err
}

// mutate validates amount, then loads, applies and saves under the lock.
// A rejected apply leaves the stored account untouched.
func (e *Engine) mutate(ctx context.Context, op, id string, amount decimal.Decimal, apply func(*domain.Account) error) (*domain.Account, error) {
	if !amount.IsPositive() || !domain.InCents(amount) {
		return nil, &domain.ErrInvalidAmount{Operation: op, Amount: amount}
	}

	var (
		updated *domain.Account
		ranFn   bool
	)
	err := e.locker.WithLock(ctx, id, func(ctx context.Context) error {
		ranFn = true

		acc, err := e.store.GetByID(ctx, id)
		if err != nil {
			return storeError("get_by_id", err)
		}
		if err := apply(acc); err != nil {
			e.logger.Debug("engine: mutation rejected",
				zap.String("operation", op),
				zap.String("account_id", id),
				zap.Error(err),
			)
			return err
		}

		if err := port.CheckLease(ctx); err != nil {
			e.logger.Error("engine: lock lost before save",
				zap.String("operation", op),
				zap.String("account_id", id),
				zap.Error(err),
			)
			return &domain.ErrStoreUnavailable{Operation: "lock", Err: err}
		}

		saved, err := e.store.Save(ctx, acc)
		if err != nil {
			return storeError("save", err)
		}
		updated = saved
		return nil
	})
	if err != nil {
		if !ranFn {
			e.logger.Error("engine: lock not acquired", zap.String("account_id", id), zap.Error(err))
			return nil, &domain.ErrStoreUnavailable{Operation: "lock", Err: err}
		}
		return nil, err
	}

	e.logger.Info("engine: balance updated",
		zap.String("operation", op),
		zap.String("account_id", id),
		zap.String("amount", amount.String()),
		zap.String("balance", updated.Balance.String()),
	)
	return updated, nil
}

package service

import (
	"context"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var adapterTracer = otel.Tracer("service/number_adapter")

// NumberAdapter serves the transaction service, which addresses accounts by
// their public number. Results and errors from the engine pass through as is.
type NumberAdapter struct {
	store  port.AccountStore
	engine *Engine
}

// NewNumberAdapter creates a NumberAdapter.
func NewNumberAdapter(store port.AccountStore, engine *Engine) *NumberAdapter {
	return &NumberAdapter{store: store, engine: engine}
}

func (a *NumberAdapter) DepositByNumber(ctx context.Context, number string, amount decimal.Decimal) (*domain.Account, error) {
	ctx, span := adapterTracer.Start(ctx, "NumberAdapter.DepositByNumber")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", number))

	id, err := a.resolve(ctx, number)
	if err != nil {
		return nil, err
	}
	return a.engine.Deposit(ctx, id, amount)
}

func (a *NumberAdapter) WithdrawByNumber(ctx context.Context, number string, amount decimal.Decimal) (*domain.Account, error) {
	ctx, span := adapterTracer.Start(ctx, "NumberAdapter.WithdrawByNumber")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", number))

	id, err := a.resolve(ctx, number)
	if err != nil {
		return nil, err
	}
	return a.engine.Withdraw(ctx, id, amount)
}

func (a *NumberAdapter) resolve(ctx context.Context, number string) (string, error) {
	acc, err := a.store.GetByNumber(ctx, number)
	if err != nil {
		return "", storeError("get_by_number", err)
	}
	return acc.ID, nil
}

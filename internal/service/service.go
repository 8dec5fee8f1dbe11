// Package service provides the business logic layer (use cases).
// Engine owns the balance rules, Lifecycle creates and removes accounts,
// and NumberAdapter serves callers that only know an account number.
package service

import (
	"errors"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/observability"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// isBusinessError reports whether err is a rule rejection rather than an
// infrastructure failure.
func isBusinessError(err error) bool {
	var (
		notFound *domain.ErrNotFound
		owner    *domain.ErrOwnerNotFound
		balance  *domain.ErrInvalidBalance
		amount   *domain.ErrInvalidAmount
		funds    *domain.ErrInsufficientFunds
		invalid  *domain.ErrValidation
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &owner) ||
		errors.As(err, &balance) ||
		errors.As(err, &amount) ||
		errors.As(err, &funds) ||
		errors.As(err, &invalid)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeSuccess
	case isBusinessError(err):
		return observability.OutcomeRejected
	default:
		return observability.OutcomeError
	}
}

// finish records the operation metric and marks the span on infrastructure
// failures.
func finish(m *observability.Metrics, span trace.Span, operation string, start time.Time, err error) {
	outcome := outcomeOf(err)
	m.RecordOperation(operation, outcome, time.Since(start))
	if outcome == observability.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, operation+" failed")
	}
}

// storeError wraps infrastructure failures that are not already typed.
func storeError(op string, err error) error {
	if err == nil || isBusinessError(err) {
		return err
	}
	var (
		unavailable *domain.ErrStoreUnavailable
		dup         *domain.ErrDuplicate
		exhausted   *domain.ErrAllocationExhausted
		external    *domain.ErrExternalService
		open        *domain.ErrCircuitOpen
	)
	if errors.As(err, &unavailable) || errors.As(err, &dup) || errors.As(err, &exhausted) ||
		errors.As(err, &external) || errors.As(err, &open) {
		return err
	}
	return &domain.ErrStoreUnavailable{Operation: op, Err: err}
}

package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Error types for consistent error handling across the service.
// Business failures are returned as values of these types and matched with
// errors.As; infrastructure failures are wrapped in ErrStoreUnavailable or
// ErrExternalService.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrOwnerNotFound indicates the customer directory does not know the owner.
type ErrOwnerNotFound struct {
	OwnerID string
}

func (e *ErrOwnerNotFound) Error() string {
	return fmt.Sprintf("the customer with ID %s does not exist", e.OwnerID)
}

// ErrInvalidBalance indicates an initial balance that is not positive or
// has fractions of a cent.
type ErrInvalidBalance struct {
	Balance decimal.Decimal
}

func (e *ErrInvalidBalance) Error() string {
	return fmt.Sprintf("balance must be a positive amount in cents: %s", e.Balance.String())
}

// ErrInvalidAmount indicates a deposit or withdrawal amount that is not
// positive or has fractions of a cent.
type ErrInvalidAmount struct {
	Operation string
	Amount    decimal.Decimal
}

func (e *ErrInvalidAmount) Error() string {
	return fmt.Sprintf("invalid %s amount %s: amount must be positive and in cents", e.Operation, e.Amount.String())
}

// ErrInsufficientFunds indicates a withdrawal would cross the account's floor.
// Variant is the account type whose rule rejected it.
type ErrInsufficientFunds struct {
	Variant   AccountType
	Available decimal.Decimal
	Required  decimal.Decimal
	Floor     decimal.Decimal
}

func (e *ErrInsufficientFunds) Error() string {
	if e.Variant == AccountTypeChecking {
		return fmt.Sprintf("insufficient funds: checking overdraft floor %s reached (available=%s required=%s)",
			e.Floor.String(), e.Available.String(), e.Required.String())
	}
	return fmt.Sprintf("insufficient funds: savings balance cannot go negative (available=%s required=%s)",
		e.Available.String(), e.Required.String())
}

// ErrAllocationExhausted indicates no free account number was found within the attempt cap.
type ErrAllocationExhausted struct {
	Attempts int
}

func (e *ErrAllocationExhausted) Error() string {
	return fmt.Sprintf("account number allocation exhausted after %d attempts", e.Attempts)
}

// ErrStoreUnavailable indicates the persistence layer failed.
type ErrStoreUnavailable struct {
	Operation string
	Err       error
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("store unavailable [%s]: %v", e.Operation, e.Err)
}

func (e *ErrStoreUnavailable) Unwrap() error {
	return e.Err
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrDuplicate indicates a uniqueness constraint rejected a write.
type ErrDuplicate struct {
	Key string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("duplicate value: %s", e.Key)
}

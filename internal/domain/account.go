package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Accounts
// ============================================================

// AccountType is the product kind of an account. It is fixed at creation.
type AccountType string

const (
	AccountTypeSavings  AccountType = "savings"
	AccountTypeChecking AccountType = "checking"
)

func init() {
	// Balances and amounts are JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true
}

// CheckingOverdraftFloor is the most negative balance a checking account may reach.
var CheckingOverdraftFloor = decimal.NewFromInt(-500)

// MoneyScale is the number of decimal places a stored balance keeps.
const MoneyScale = 2

// InCents reports whether d has no digits below MoneyScale, so every store
// keeps it without rounding.
func InCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// ParseAccountType accepts the canonical names and the legacy
// "ahorros"/"corriente" aliases still sent by older clients.
func ParseAccountType(s string) (AccountType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "savings", "ahorros":
		return AccountTypeSavings, true
	case "checking", "corriente":
		return AccountTypeChecking, true
	}
	return "", false
}

// Floor returns the lowest balance allowed for the account type.
func (t AccountType) Floor() decimal.Decimal {
	if t == AccountTypeChecking {
		return CheckingOverdraftFloor
	}
	return decimal.Zero
}

// Account is a customer bank account.
type Account struct {
	ID            string          `json:"id"`
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
	Type          AccountType     `json:"typeAccount"`
	OwnerID       string          `json:"customerId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Clone returns a copy safe to hand out of a store.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// Confirmation is returned by destructive operations that have no entity to show.
type Confirmation struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// ============================================================
// Requests
// ============================================================

// CreateAccountRequest is the body of POST /accounts.
type CreateAccountRequest struct {
	OwnerID     string          `json:"customerId"`
	Balance     decimal.Decimal `json:"balance"`
	TypeAccount string          `json:"typeAccount"`
}

// NumberTransactionRequest is sent by the transaction service, which only
// knows the public account number.
type NumberTransactionRequest struct {
	AccountNumber string          `json:"accountNumber"`
	Amount        decimal.Decimal `json:"amount"`
}

package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Accounts: CRUD via PostgREST
// ============================================================

const accountColumns = "select=id,account_number,balance,account_type,owner_id,created_at,updated_at"

// accountRow maps the accounts table columns.
type accountRow struct {
	ID            string          `json:"id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	AccountType   string          `json:"account_type"`
	OwnerID       string          `json:"owner_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (r accountRow) toDomain() domain.Account {
	return domain.Account{
		ID:            r.ID,
		AccountNumber: r.AccountNumber,
		Balance:       r.Balance,
		Type:          domain.AccountType(r.AccountType),
		OwnerID:       r.OwnerID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// AccountStore implements port.AccountStore on top of PostgREST.
type AccountStore struct {
	client *Client
}

// NewAccountStore creates an AccountStore.
func NewAccountStore(client *Client) *AccountStore {
	return &AccountStore{client: client}
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", id))

	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return s.getOne(ctx, "get_by_id", id, fmt.Sprintf("accounts?%s&%s&limit=1", accountColumns, eq("id", id)))
}

func (s *AccountStore) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAccountByNumber")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", number))

	return s.getOne(ctx, "get_by_number", number, fmt.Sprintf("accounts?%s&%s&limit=1", accountColumns, eq("account_number", number)))
}

func (s *AccountStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAccountsByOwner")
	defer span.End()

	return s.list(ctx, "list_by_owner", fmt.Sprintf("accounts?%s&%s&order=created_at.asc,account_number.asc", accountColumns, eq("owner_id", ownerID)))
}

func (s *AccountStore) ListAll(ctx context.Context) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAccounts")
	defer span.End()

	return s.list(ctx, "list_all", fmt.Sprintf("accounts?%s&order=created_at.asc,account_number.asc", accountColumns))
}

func (s *AccountStore) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AccountNumberExists")
	defer span.End()

	var rows []struct {
		ID string `json:"id"`
	}
	err := s.client.execute(ctx, func() error {
		body, err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("accounts?select=id&%s&limit=1", eq("account_number", number)), nil, "")
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return false, s.unavailable("exists_by_number", err)
	}
	return len(rows) > 0, nil
}

// Save inserts accounts without an ID and updates the balance of the rest.
func (s *AccountStore) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SaveAccount")
	defer span.End()

	if account.ID == "" {
		id := uuid.NewString()
		span.SetAttributes(attribute.String("account.id", id), attribute.Bool("insert", true))

		payload := map[string]any{
			"id":             id,
			"account_number": account.AccountNumber,
			"balance":        account.Balance,
			"account_type":   string(account.Type),
			"owner_id":       account.OwnerID,
		}
		saved, err := s.write(ctx, http.MethodPost, "accounts", payload)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && se.conflict() {
				return s.resolveConflict(ctx, id, account.AccountNumber)
			}
			return nil, s.unavailable("insert", err)
		}
		if saved == nil {
			return nil, s.unavailable("insert", errors.New("insert returned no row"))
		}
		return saved, nil
	}

	span.SetAttributes(attribute.String("account.id", account.ID), attribute.Bool("insert", false))
	payload := map[string]any{
		"balance":    account.Balance,
		"updated_at": time.Now().UTC(),
	}
	saved, err := s.write(ctx, http.MethodPatch, "accounts?"+eq("id", account.ID), payload)
	if err != nil {
		return nil, s.unavailable("update", err)
	}
	if saved == nil {
		return nil, &domain.ErrNotFound{Resource: "account", ID: account.ID}
	}
	return saved, nil
}

// resolveConflict settles a rejected insert. A retried POST whose earlier
// attempt committed collides with its own row; that row is the result. Any
// other conflict is a taken account number.
func (s *AccountStore) resolveConflict(ctx context.Context, id, number string) (*domain.Account, error) {
	existing, err := s.getOne(ctx, "insert_readback", id, fmt.Sprintf("accounts?%s&%s&limit=1", accountColumns, eq("id", id)))
	var nf *domain.ErrNotFound
	switch {
	case err == nil:
		s.client.logger.Warn("supabase: insert already committed by an earlier attempt",
			zap.String("account_id", id),
			zap.String("account_number", number),
		)
		return existing, nil
	case errors.As(err, &nf):
		return nil, &domain.ErrDuplicate{Key: "account_number=" + number}
	default:
		return nil, err
	}
}

func (s *AccountStore) DeleteByID(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteAccount")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return &domain.ErrNotFound{Resource: "account", ID: id}
	}

	deleted, err := s.write(ctx, http.MethodDelete, "accounts?"+eq("id", id), nil)
	if err != nil {
		return s.unavailable("delete", err)
	}
	if deleted == nil {
		return &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return nil
}

func (s *AccountStore) Ping(ctx context.Context) error {
	err := s.client.execute(ctx, func() error {
		_, err := s.client.do(ctx, http.MethodGet, "accounts?select=id&limit=1", nil, preferMinimal)
		return err
	})
	if err != nil {
		return s.unavailable("ping", err)
	}
	return nil
}

// ============================================================
// helpers
// ============================================================

func (s *AccountStore) getOne(ctx context.Context, op, key, path string) (*domain.Account, error) {
	rows, err := s.fetch(ctx, path)
	if err != nil {
		return nil, s.unavailable(op, err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "account", ID: key}
	}
	a := rows[0].toDomain()
	return &a, nil
}

func (s *AccountStore) list(ctx context.Context, op, path string) ([]domain.Account, error) {
	rows, err := s.fetch(ctx, path)
	if err != nil {
		return nil, s.unavailable(op, err)
	}
	out := make([]domain.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *AccountStore) fetch(ctx context.Context, path string) ([]accountRow, error) {
	var rows []accountRow
	err := s.client.execute(ctx, func() error {
		body, err := s.client.do(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return err
		}
		rows = nil
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode accounts: %w", err)
		}
		return nil
	})
	return rows, err
}

// write sends a mutating request and returns the first affected row, or nil
// when nothing matched.
func (s *AccountStore) write(ctx context.Context, method, path string, payload any) (*domain.Account, error) {
	var rows []accountRow
	err := s.client.execute(ctx, func() error {
		body, err := s.client.do(ctx, method, path, payload, preferRepresentation)
		if err != nil {
			return err
		}
		rows = nil
		if len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode accounts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	a := rows[0].toDomain()
	return &a, nil
}

func (s *AccountStore) unavailable(op string, err error) error {
	s.client.logger.Error("supabase: accounts request failed", zap.String("operation", op), zap.Error(err))
	return &domain.ErrStoreUnavailable{Operation: op, Err: err}
}

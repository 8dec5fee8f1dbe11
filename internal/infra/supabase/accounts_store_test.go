package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/resilience"
	"github.com/boddenberg/account-ms/internal/infra/supabase"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const existingID = "1d3c51b4-4f0c-4c4b-9a32-8f9a2c7f0a11"

func newStore(t *testing.T, h http.HandlerFunc) *supabase.AccountStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	c := supabase.NewClient(srv.Client(), srv.URL, "anon", "service", cfg, zap.NewNop())
	return supabase.NewAccountStore(c)
}

func TestAccountStore_GetByNumber(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer service" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		if r.URL.Path != "/rest/v1/accounts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("account_number"); got != "eq.123456" {
			t.Errorf("unexpected filter %q", got)
		}
		w.Write([]byte(`[{"id":"` + existingID + `","account_number":"123456","balance":250.75,"account_type":"checking","owner_id":"7","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}]`))
	})

	a, err := s.GetByNumber(context.Background(), "123456")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a.ID != existingID || a.Type != domain.AccountTypeChecking || a.OwnerID != "7" {
		t.Errorf("unexpected account %+v", a)
	}
	if !a.Balance.Equal(decimal.RequireFromString("250.75")) {
		t.Errorf("expected 250.75, got %s", a.Balance)
	}
}

func TestAccountStore_EmptyResultIsNotFound(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	var nf *domain.ErrNotFound
	if _, err := s.GetByID(context.Background(), existingID); !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetByID(context.Background(), "not-a-uuid"); !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound for malformed id, got %v", err)
	}
	if err := s.DeleteByID(context.Background(), existingID); !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestAccountStore_InsertConflictIsDuplicate(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint"}`))
		case http.MethodGet:
			// No row carries the inserted id, so the number was taken.
			w.Write([]byte(`[]`))
		default:
			t.Errorf("unexpected %s", r.Method)
		}
	})

	_, err := s.Save(context.Background(), &domain.Account{
		AccountNumber: "111111",
		Balance:       decimal.NewFromInt(10),
		Type:          domain.AccountTypeSavings,
		OwnerID:       "1",
	})
	var dup *domain.ErrDuplicate
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestAccountStore_RetriedInsertReturnsCommittedRow(t *testing.T) {
	var posts int
	var committedID string
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			posts++
			raw, _ := io.ReadAll(r.Body)
			var row map[string]any
			if err := json.Unmarshal(raw, &row); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if posts == 1 {
				// The row commits but the answer is lost.
				committedID = row["id"].(string)
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			if row["id"] != committedID {
				t.Errorf("expected the retry to reuse id %s, got %v", committedID, row["id"])
			}
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"code":"23505","message":"duplicate key value violates unique constraint \"accounts_pkey\""}`))
		case http.MethodGet:
			if got := r.URL.Query().Get("id"); got != "eq."+committedID {
				t.Errorf("unexpected read-back filter %q", got)
			}
			w.Write([]byte(`[{"id":"` + committedID + `","account_number":"555555","balance":"10","account_type":"savings","owner_id":"9","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}]`))
		}
	})

	saved, err := s.Save(context.Background(), &domain.Account{
		AccountNumber: "555555",
		Balance:       decimal.NewFromInt(10),
		Type:          domain.AccountTypeSavings,
		OwnerID:       "9",
	})
	if err != nil {
		t.Fatalf("expected the committed row, got %v", err)
	}
	if saved.ID != committedID || saved.AccountNumber != "555555" {
		t.Errorf("unexpected account %+v", saved)
	}
	if posts != 2 {
		t.Errorf("expected 2 inserts, got %d", posts)
	}
}

func TestAccountStore_InsertSendsRow(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("expected representation, got %q", r.Header.Get("Prefer"))
		}
		raw, _ := io.ReadAll(r.Body)
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if row["account_number"] != "222222" || row["owner_id"] != "9" || row["account_type"] != "savings" {
			t.Errorf("unexpected row %v", row)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"` + row["id"].(string) + `","account_number":"222222","balance":"10","account_type":"savings","owner_id":"9","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}]`))
	})

	saved, err := s.Save(context.Background(), &domain.Account{
		AccountNumber: "222222",
		Balance:       decimal.NewFromInt(10),
		Type:          domain.AccountTypeSavings,
		OwnerID:       "9",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if saved.ID == "" || !saved.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected saved account %+v", saved)
	}
}

func TestAccountStore_ServerErrorIsUnavailable(t *testing.T) {
	calls := 0
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := s.ListAll(context.Background())
	var su *domain.ErrStoreUnavailable
	if !errors.As(err, &su) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 1 call + 1 retry, got %d", calls)
	}
}

func TestAccountStore_ExistsByNumber(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("account_number") == "eq.333333" {
			w.Write([]byte(`[{"id":"` + existingID + `"}]`))
			return
		}
		w.Write([]byte(`[]`))
	})

	if ok, err := s.ExistsByNumber(context.Background(), "333333"); err != nil || !ok {
		t.Errorf("expected taken, ok=%v err=%v", ok, err)
	}
	if ok, err := s.ExistsByNumber(context.Background(), "444444"); err != nil || ok {
		t.Errorf("expected free, ok=%v err=%v", ok, err)
	}
}

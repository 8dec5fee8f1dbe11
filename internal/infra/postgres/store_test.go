package postgres_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"
	"github.com/boddenberg/account-ms/internal/infra/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*postgres.Store, *pgxpool.Pool) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("ACCOUNTS_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("missing ACCOUNTS_TEST_DATABASE_URL env var")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: dsn, MaxConns: 10})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.Migrate(pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE accounts`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return postgres.New(pool, zap.NewNop()), pool
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, &domain.Account{
		AccountNumber: "654321",
		Balance:       decimal.RequireFromString("1000.50"),
		Type:          domain.AccountTypeSavings,
		OwnerID:       "42",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected id")
	}

	byID, err := s.GetByID(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	byNumber, err := s.GetByNumber(ctx, "654321")
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if byID.ID != byNumber.ID || !byID.Balance.Equal(decimal.RequireFromString("1000.5")) {
		t.Fatalf("unexpected round trip: %+v / %+v", byID, byNumber)
	}

	byID.Balance = decimal.RequireFromString("10.25")
	updated, err := s.Save(ctx, byID)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Balance.Equal(decimal.RequireFromString("10.25")) {
		t.Errorf("expected 10.25, got %s", updated.Balance)
	}
}

func TestStore_UniqueNumber(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	acc := &domain.Account{AccountNumber: "111111", Balance: decimal.NewFromInt(1), Type: domain.AccountTypeChecking, OwnerID: "1"}
	if _, err := s.Save(ctx, acc); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err := s.Save(ctx, acc)

	var dup *domain.ErrDuplicate
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestStore_BalanceFloorConstraint(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, &domain.Account{AccountNumber: "222222", Balance: decimal.NewFromInt(1), Type: domain.AccountTypeSavings, OwnerID: "1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	saved.Balance = decimal.NewFromInt(-1)
	if _, err := s.Save(ctx, saved); err == nil {
		t.Fatal("expected the database to reject a negative savings balance")
	}
}

func TestStore_DeleteAndNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, _ := s.Save(ctx, &domain.Account{AccountNumber: "333333", Balance: decimal.NewFromInt(5), Type: domain.AccountTypeSavings, OwnerID: "9"})
	if err := s.DeleteByID(ctx, saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var nf *domain.ErrNotFound
	if _, err := s.GetByID(ctx, saved.ID); !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteByID(ctx, "not-a-uuid"); !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound for malformed id, got %v", err)
	}
	exists, err := s.ExistsByNumber(ctx, "333333")
	if err != nil || exists {
		t.Errorf("expected number freed, exists=%v err=%v", exists, err)
	}
}

func TestStore_ListByOwner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"444444", "555555"} {
		if _, err := s.Save(ctx, &domain.Account{AccountNumber: n, Balance: decimal.NewFromInt(5), Type: domain.AccountTypeSavings, OwnerID: "owner-a"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	owned, err := s.ListByOwner(ctx, "owner-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("expected 2, got %d", len(owned))
	}
	all, _ := s.ListAll(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 total, got %d", len(all))
	}
}

// Package postgres is the PostgreSQL AccountStore backed by a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/account-ms/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

const uniqueViolation = "23505"

// balance travels as text so NUMERIC keeps its exact value through decimal.Decimal.
const selectAccount = `SELECT id::text, account_number, balance::text, account_type, owner_id, created_at, updated_at FROM accounts`

// PoolConfig holds pool sizing options.
type PoolConfig struct {
	DSN      string
	MaxConns int32
}

// NewPool opens and pings a pgx pool.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = 1
	pc.HealthCheckPeriod = 10 * time.Second
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Store implements port.AccountStore over PostgreSQL.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Store on an open pool.
func New(db *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetByID")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", id))

	if _, err := uuid.Parse(id); err != nil {
		return nil, &domain.ErrNotFound{Resource: "account", ID: id}
	}

	row := s.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, id)
	return s.scanOne(row, "get_by_id", id)
}

func (s *Store) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetByNumber")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", number))

	row := s.db.QueryRow(ctx, selectAccount+` WHERE account_number = $1`, number)
	return s.scanOne(row, "get_by_number", number)
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListByOwner")
	defer span.End()

	rows, err := s.db.Query(ctx, selectAccount+` WHERE owner_id = $1 ORDER BY created_at, account_number`, ownerID)
	if err != nil {
		return nil, s.unavailable("list_by_owner", err)
	}
	return s.scanAll(rows, "list_by_owner")
}

func (s *Store) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ExistsByNumber")
	defer span.End()

	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, s.unavailable("exists_by_number", err)
	}
	return exists, nil
}

// Save inserts accounts without an ID and updates the balance of the rest.
func (s *Store) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.Save")
	defer span.End()

	if account.ID == "" {
		id := uuid.New()
		span.SetAttributes(attribute.String("account.id", id.String()), attribute.Bool("insert", true))

		row := s.db.QueryRow(ctx, `
			INSERT INTO accounts (id, account_number, balance, account_type, owner_id)
			VALUES ($1, $2, $3::numeric, $4, $5)
			RETURNING id::text, account_number, balance::text, account_type, owner_id, created_at, updated_at`,
			id, account.AccountNumber, account.Balance.String(), string(account.Type), account.OwnerID,
		)
		saved, err := scanAccount(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return nil, &domain.ErrDuplicate{Key: "account_number=" + account.AccountNumber}
			}
			return nil, s.unavailable("insert", err)
		}
		return saved, nil
	}

	span.SetAttributes(attribute.String("account.id", account.ID), attribute.Bool("insert", false))
	row := s.db.QueryRow(ctx, `
		UPDATE accounts SET balance = $2::numeric, updated_at = now()
		WHERE id = $1
		RETURNING id::text, account_number, balance::text, account_type, owner_id, created_at, updated_at`,
		account.ID, account.Balance.String(),
	)
	return s.scanOne(row, "update", account.ID)
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteByID")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return &domain.ErrNotFound{Resource: "account", ID: id}
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return s.unavailable("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "account", ID: id}
	}
	return nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAll")
	defer span.End()

	rows, err := s.db.Query(ctx, selectAccount+` ORDER BY created_at, account_number`)
	if err != nil {
		return nil, s.unavailable("list_all", err)
	}
	return s.scanAll(rows, "list_all")
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return s.unavailable("ping", err)
	}
	return nil
}

// ============================================================
// scanning helpers
// ============================================================

func (s *Store) scanOne(row pgx.Row, op, key string) (*domain.Account, error) {
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "account", ID: key}
	}
	if err != nil {
		return nil, s.unavailable(op, err)
	}
	return a, nil
}

func (s *Store) scanAll(rows pgx.Rows, op string) ([]domain.Account, error) {
	defer rows.Close()

	out := make([]domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, s.unavailable(op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable(op, err)
	}
	return out, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a       domain.Account
		balance string
		typ     string
	)
	if err := row.Scan(&a.ID, &a.AccountNumber, &balance, &typ, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("decode balance %q: %w", balance, err)
	}
	a.Balance = b
	a.Type = domain.AccountType(typ)
	return &a, nil
}

func (s *Store) unavailable(op string, err error) error {
	s.logger.Error("postgres: query failed", zap.String("operation", op), zap.Error(err))
	return &domain.ErrStoreUnavailable{Operation: op, Err: err}
}

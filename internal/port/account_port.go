package port

import (
	"context"

	"github.com/boddenberg/account-ms/internal/domain"
)

// AccountStore handles account persistence.
//
// Lookups return *domain.ErrNotFound when nothing matches. Save inserts when
// the account has no ID (assigning one) and updates otherwise; it returns
// *domain.ErrDuplicate when the account number is already taken.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	Save(ctx context.Context, account *domain.Account) (*domain.Account, error)
	DeleteByID(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]domain.Account, error)
	Ping(ctx context.Context) error
}

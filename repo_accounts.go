package accounts

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the tenant repository.
type Accounts interface {
	repository.Repository[*Account]

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	Rename(ctx context.Context, id uuid.UUID, name string) error
	RenameTx(ctx context.Context, tx bun.IDB, id uuid.UUID, name string) error

	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type accountsRepo struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accountsRepo)(nil)
	_ repository.Repository[*Account] = (*accountsRepo)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	return &accountsRepo{
		Repository: repo,
		db:         db,
	}
}

func (a *accountsRepo) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

// CreateTx assigns a fresh storage locator when the record carries none. The
// locator addresses the account's isolated storage unit and never changes.
func (a *accountsRepo) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record != nil && record.StorageLocator == "" {
		record.StorageLocator = NewStorageLocator()
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accountsRepo) Rename(ctx context.Context, id uuid.UUID, name string) error {
	return a.RenameTx(ctx, a.db, id, name)
}

func (a *accountsRepo) RenameTx(ctx context.Context, tx bun.IDB, id uuid.UUID, name string) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("name = ?", name).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}

func (a *accountsRepo) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Account)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}

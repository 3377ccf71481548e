package accounts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Memberships is the user-to-account relationship repository. The admin
// counting helpers exist so last admin checks can run read-then-write inside
// the same transaction as the mutation they guard.
type Memberships interface {
	repository.Repository[*Membership]

	Create(ctx context.Context, record *Membership, criteria ...repository.InsertCriteria) (*Membership, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Membership, criteria ...repository.InsertCriteria) (*Membership, error)

	GetByUserAndAccount(ctx context.Context, userID, accountID uuid.UUID) (*Membership, error)
	GetByUserAndAccountTx(ctx context.Context, tx bun.IDB, userID, accountID uuid.UUID) (*Membership, error)

	RoleOf(ctx context.Context, userID, accountID uuid.UUID) (Role, bool, error)

	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*Membership, error)
	ListForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*Membership, error)

	CountForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error)
	CountAdminsTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int, error)

	UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) error
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
	DeleteForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error
}

type memberships struct {
	repository.Repository[*Membership]
	db *bun.DB
}

var (
	_ Memberships                        = (*memberships)(nil)
	_ repository.Repository[*Membership] = (*memberships)(nil)
)

func NewMembershipsRepository(db *bun.DB) Memberships {
	repo := repository.NewRepository[*Membership](db, repository.ModelHandlers[*Membership]{
		NewRecord: func() *Membership { return &Membership{} },
		GetID: func(m *Membership) uuid.UUID {
			if m == nil {
				return uuid.Nil
			}
			return m.ID
		},
		SetID: func(m *Membership, id uuid.UUID) {
			if m != nil {
				m.ID = id
			}
		},
	})

	return &memberships{
		Repository: repo,
		db:         db,
	}
}

func (a *memberships) Create(ctx context.Context, record *Membership, criteria ...repository.InsertCriteria) (*Membership, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *memberships) CreateTx(ctx context.Context, tx bun.IDB, record *Membership, criteria ...repository.InsertCriteria) (*Membership, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record != nil && record.Role == "" {
		record.Role = RoleMember
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *memberships) GetByUserAndAccount(ctx context.Context, userID, accountID uuid.UUID) (*Membership, error) {
	return a.GetByUserAndAccountTx(ctx, a.db, userID, accountID)
}

func (a *memberships) GetByUserAndAccountTx(ctx context.Context, tx bun.IDB, userID, accountID uuid.UUID) (*Membership, error) {
	record := &Membership{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.account_id = ?", accountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return record, nil
}

// RoleOf returns the user's role in the account, or false if the user is not
// a member.
func (a *memberships) RoleOf(ctx context.Context, userID, accountID uuid.UUID) (Role, bool, error) {
	record, err := a.GetByUserAndAccount(ctx, userID, accountID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return record.Role, true, nil
}

func (a *memberships) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error) {
	var records []*Membership
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *memberships) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*Membership, error) {
	return a.ListForAccountTx(ctx, a.db, accountID)
}

func (a *memberships) ListForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*Membership, error) {
	var records []*Membership
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *memberships) CountForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error) {
	return tx.NewSelect().
		Model((*Membership)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Count(ctx)
}

func (a *memberships) CountAdminsTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (int, error) {
	return tx.NewSelect().
		Model((*Membership)(nil)).
		Where("?TableAlias.account_id = ?", accountID).
		Where("?TableAlias.role = ?", RoleAdmin).
		Count(ctx)
}

func (a *memberships) UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role Role) error {
	_, err := tx.NewUpdate().
		Model((*Membership)(nil)).
		Set("role = ?", role).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}

func (a *memberships) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Membership)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}

func (a *memberships) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Membership)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	return err
}

func (a *memberships) DeleteForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Membership)(nil)).
		Where("?TableAlias.account_id = ?", accountID).
		Exec(ctx)
	return err
}

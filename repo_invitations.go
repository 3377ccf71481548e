package accounts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Invitations is the invitation repository. Status flips go through
// UpdateStatusTx, which only moves rows out of pending so a lost race shows
// up as zero affected rows instead of a double resolution.
type Invitations interface {
	repository.Repository[*Invitation]

	Create(ctx context.Context, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error)

	GetBySecret(ctx context.Context, secret string) (*Invitation, error)
	GetBySecretTx(ctx context.Context, tx bun.IDB, secret string) (*Invitation, error)

	ListPendingForAccount(ctx context.Context, accountID uuid.UUID) ([]*Invitation, error)
	ListForEmail(ctx context.Context, email string) ([]*Invitation, error)

	ResolvePendingTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status InvitationStatus) (bool, error)

	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	DeletePendingForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error
}

type invitations struct {
	repository.Repository[*Invitation]
	db *bun.DB
}

var (
	_ Invitations                        = (*invitations)(nil)
	_ repository.Repository[*Invitation] = (*invitations)(nil)
)

func NewInvitationsRepository(db *bun.DB) Invitations {
	repo := repository.NewRepository[*Invitation](db, repository.ModelHandlers[*Invitation]{
		NewRecord: func() *Invitation { return &Invitation{} },
		GetID: func(i *Invitation) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Invitation, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "secret"
		},
	})

	return &invitations{
		Repository: repo,
		db:         db,
	}
}

func (a *invitations) Create(ctx context.Context, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *invitations) CreateTx(ctx context.Context, tx bun.IDB, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record != nil && record.Secret == "" {
		record.Secret = NewSecret(secretEntropy)
	}
	if record != nil && record.Status == "" {
		record.Status = InvitationPending
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *invitations) GetBySecret(ctx context.Context, secret string) (*Invitation, error) {
	return a.GetBySecretTx(ctx, a.db, secret)
}

func (a *invitations) GetBySecretTx(ctx context.Context, tx bun.IDB, secret string) (*Invitation, error) {
	record := &Invitation{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.secret = ?", secret).
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

func (a *invitations) ListPendingForAccount(ctx context.Context, accountID uuid.UUID) ([]*Invitation, error) {
	var records []*Invitation
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		Where("?TableAlias.status = ?", InvitationPending).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (a *invitations) ListForEmail(ctx context.Context, email string) ([]*Invitation, error) {
	var records []*Invitation
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.email = ?", email).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ResolvePendingTx flips a pending invitation into a terminal status. The
// returned bool reports whether this call performed the flip; false means
// the invitation was already resolved (or never existed).
func (a *invitations) ResolvePendingTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status InvitationStatus) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*Invitation)(nil)).
		Set("status = ?", status).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.status = ?", InvitationPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (a *invitations) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Invitation)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	return err
}

func (a *invitations) DeletePendingForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Invitation)(nil)).
		Where("?TableAlias.account_id = ?", accountID).
		Where("?TableAlias.status = ?", InvitationPending).
		Exec(ctx)
	return err
}

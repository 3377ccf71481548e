package accounts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions is the session repository. Secrets are opaque server side tokens:
// lookups are silent on absent or expired secrets, revocation is always per
// user rather than per device.
type Sessions interface {
	repository.Repository[*Session]

	Create(ctx context.Context, record *Session, criteria ...repository.InsertCriteria) (*Session, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Session, criteria ...repository.InsertCriteria) (*Session, error)

	CreateForUser(ctx context.Context, userID uuid.UUID, duration time.Duration) (*Session, error)
	CreateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, duration time.Duration) (*Session, error)

	GetUnexpired(ctx context.Context, secret string) (*Session, error)
	GetUnexpiredTx(ctx context.Context, tx bun.IDB, secret string) (*Session, error)

	GetBySecret(ctx context.Context, secret string) (*Session, error)
	GetBySecretTx(ctx context.Context, tx bun.IDB, secret string) (*Session, error)

	InvalidateAllForUser(ctx context.Context, userID uuid.UUID) error
	InvalidateAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error

	Rebind(ctx context.Context, session *Session, newUserID uuid.UUID) error
	RebindTx(ctx context.Context, tx bun.IDB, session *Session, newUserID uuid.UUID) error

	CountLiveForUser(ctx context.Context, userID uuid.UUID) (int, error)

	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error
}

// ErrSessionNotLive is returned when rebinding a session that already expired.
var ErrSessionNotLive = errors.New("session is not live")

type sessions struct {
	repository.Repository[*Session]
	db *bun.DB
}

var (
	_ Sessions                        = (*sessions)(nil)
	_ repository.Repository[*Session] = (*sessions)(nil)
)

func NewSessionsRepository(db *bun.DB) Sessions {
	repo := repository.NewRepository[*Session](db, repository.ModelHandlers[*Session]{
		NewRecord: func() *Session { return &Session{} },
		GetID: func(s *Session) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Session, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "secret"
		},
	})

	return &sessions{
		Repository: repo,
		db:         db,
	}
}

func (a *sessions) Create(ctx context.Context, record *Session, criteria ...repository.InsertCriteria) (*Session, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *sessions) CreateTx(ctx context.Context, tx bun.IDB, record *Session, criteria ...repository.InsertCriteria) (*Session, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record != nil && record.Secret == "" {
		record.Secret = NewSecret(secretEntropy)
	}
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *sessions) CreateForUser(ctx context.Context, userID uuid.UUID, duration time.Duration) (*Session, error) {
	return a.CreateForUserTx(ctx, a.db, userID, duration)
}

func (a *sessions) CreateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, duration time.Duration) (*Session, error) {
	// Only a zero duration falls back to the default. A negative duration
	// produces an already-expired row, which callers use to seed dead sessions.
	if duration == 0 {
		duration = DefaultSessionDuration
	}
	record := &Session{
		UserID:    userID,
		ExpiresAt: time.Now().Add(duration),
	}
	return a.CreateTx(ctx, tx, record)
}

func (a *sessions) GetUnexpired(ctx context.Context, secret string) (*Session, error) {
	return a.GetUnexpiredTx(ctx, a.db, secret)
}

// GetUnexpiredTx returns (nil, nil) for absent or expired secrets. An
// unresolvable secret is an expected outcome, not a fault: the middleware
// falls back to provisioning a guest.
func (a *sessions) GetUnexpiredTx(ctx context.Context, tx bun.IDB, secret string) (*Session, error) {
	if secret == "" {
		return nil, nil
	}

	record := &Session{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.secret = ?", secret).
		Where("?TableAlias.expires_at > ?", time.Now()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (a *sessions) GetBySecret(ctx context.Context, secret string) (*Session, error) {
	return a.GetBySecretTx(ctx, a.db, secret)
}

func (a *sessions) GetBySecretTx(ctx context.Context, tx bun.IDB, secret string) (*Session, error) {
	record := &Session{}
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

func (a *sessions) InvalidateAllForUser(ctx context.Context, userID uuid.UUID) error {
	return a.InvalidateAllForUserTx(ctx, a.db, userID)
}

// InvalidateAllForUserTx expires every live session of the user. Already
// expired rows are left untouched, which makes the call idempotent.
func (a *sessions) InvalidateAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	now := time.Now()
	_, err := tx.NewUpdate().
		Model((*Session)(nil)).
		Set("expires_at = ?", now).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.expires_at > ?", now).
		Exec(ctx)
	return err
}

func (a *sessions) Rebind(ctx context.Context, session *Session, newUserID uuid.UUID) error {
	return a.RebindTx(ctx, a.db, session, newUserID)
}

// RebindTx points a live session at a different user, keeping the row and
// secret intact. Used when a guest held session is promoted by login.
func (a *sessions) RebindTx(ctx context.Context, tx bun.IDB, session *Session, newUserID uuid.UUID) error {
	if !session.IsLive() {
		return ErrSessionNotLive
	}

	_, err := tx.NewUpdate().
		Model((*Session)(nil)).
		Set("user_id = ?", newUserID).
		Where("?TableAlias.id = ?", session.ID).
		Where("?TableAlias.expires_at > ?", time.Now()).
		Exec(ctx)
	if err == nil {
		session.UserID = newUserID
	}
	return err
}

func (a *sessions) CountLiveForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return a.db.NewSelect().
		Model((*Session)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.expires_at > ?", time.Now()).
		Count(ctx)
}

func (a *sessions) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Session)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	return err
}

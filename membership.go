package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MembershipManager owns accounts and the memberships binding users to them.
// Every mutation that could strand an account without an admin runs its
// checks and writes inside a single transaction.
type MembershipManager interface {
	CreateAccount(ctx context.Context, name string, creator *User) (*Account, error)
	UpdateAccount(ctx context.Context, accountID uuid.UUID, name string, actor *User) (*Account, error)
	DeleteAccount(ctx context.Context, accountID uuid.UUID, actor *User) error

	UpdateMembershipRole(ctx context.Context, membershipID uuid.UUID, role Role, actor *User) (*Membership, error)
	DeleteMembership(ctx context.Context, membershipID uuid.UUID, actor *User) error

	RoleOf(ctx context.Context, userID, accountID uuid.UUID) (Role, bool, error)
	ListMemberships(ctx context.Context, userID uuid.UUID) ([]*Membership, error)
	ListMembers(ctx context.Context, accountID uuid.UUID) ([]*Membership, error)
}

type membershipManager struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
}

// NewMembershipManager wires a MembershipManager around the given repositories.
func NewMembershipManager(repo RepositoryManager) *membershipManager {
	return &membershipManager{
		repo:         repo,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (m *membershipManager) WithLogger(logger Logger) *membershipManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *membershipManager) WithActivitySink(sink ActivitySink) *membershipManager {
	m.activitySink = normalizeActivitySink(sink)
	return m
}

// CreateAccount provisions a new account with the creator as its first admin.
func (m *membershipManager) CreateAccount(ctx context.Context, name string, creator *User) (*Account, error) {
	if creator == nil {
		return nil, ErrPermissionDenied
	}

	if err := validation.Validate(name, validation.Required, validation.Length(1, 120)); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account name")
	}

	var account *Account

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, err = m.repo.Accounts().CreateTx(ctx, tx, &Account{Name: name})
		if err != nil {
			return err
		}

		_, err = m.repo.Memberships().CreateTx(ctx, tx, &Membership{
			UserID:    creator.ID,
			AccountID: account.ID,
			Role:      RoleAdmin,
		})
		return err
	})

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountCreated,
		Actor:     actorFromUser(creator),
		UserID:    creator.ID.String(),
		AccountID: account.ID.String(),
	})

	return account, nil
}

// UpdateAccount renames an account. Only admins of that account may do it.
func (m *membershipManager) UpdateAccount(ctx context.Context, accountID uuid.UUID, name string, actor *User) (*Account, error) {
	if err := validation.Validate(name, validation.Required, validation.Length(1, 120)); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account name")
	}

	if err := m.requireAdmin(ctx, actor, accountID); err != nil {
		return nil, err
	}

	if err := m.repo.Accounts().Rename(ctx, accountID, name); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to rename account")
	}

	return m.repo.Accounts().GetByID(ctx, accountID.String())
}

// DeleteAccount removes the account and everything hanging off it. Beyond the
// admin requirement, every member must keep at least one other account, so
// nobody is left with no account at all.
func (m *membershipManager) DeleteAccount(ctx context.Context, accountID uuid.UUID, actor *User) error {
	if err := m.requireAdmin(ctx, actor, accountID); err != nil {
		return err
	}

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		members, err := m.repo.Memberships().ListForAccountTx(ctx, tx, accountID)
		if err != nil {
			return err
		}

		for _, member := range members {
			count, err := m.repo.Memberships().CountForUserTx(ctx, tx, member.UserID)
			if err != nil {
				return err
			}
			if count < 2 {
				return ErrOrphanUser
			}
		}

		if err := m.repo.Invitations().DeletePendingForAccountTx(ctx, tx, accountID); err != nil {
			return err
		}
		if err := m.repo.Memberships().DeleteForAccountTx(ctx, tx, accountID); err != nil {
			return err
		}
		return m.repo.Accounts().DeleteByIDTx(ctx, tx, accountID)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete account")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountDeleted,
		Actor:     actorFromUser(actor),
		AccountID: accountID.String(),
	})

	return nil
}

// UpdateMembershipRole changes a member's role. Demoting the only admin is
// rejected: actors demoting themselves get the "only admin" error, actors
// demoting someone else get the "last admin" one.
func (m *membershipManager) UpdateMembershipRole(ctx context.Context, membershipID uuid.UUID, role Role, actor *User) (*Membership, error) {
	if !IsValidRole(role) {
		return nil, goerrors.New("unknown role", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": role})
	}

	var membership *Membership

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		membership, err = m.repo.Memberships().GetByIDTx(ctx, tx, membershipID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrMembershipNotFound
			}
			return err
		}

		if err := m.requireAdminTx(ctx, tx, actor, membership.AccountID); err != nil {
			return err
		}

		if membership.Role == RoleAdmin && role != RoleAdmin {
			admins, err := m.repo.Memberships().CountAdminsTx(ctx, tx, membership.AccountID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				if actor != nil && actor.ID == membership.UserID {
					return ErrOnlyAdmin
				}
				return ErrLastAdmin
			}
		}

		if membership.Role == role {
			return nil
		}

		if err = m.repo.Memberships().UpdateRoleTx(ctx, tx, membership.ID, role); err != nil {
			return err
		}

		membership.Role = role
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update membership role")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventRoleChanged,
		Actor:     actorFromUser(actor),
		UserID:    membership.UserID.String(),
		AccountID: membership.AccountID.String(),
		Metadata:  map[string]any{"role": membership.Role},
	})

	return membership, nil
}

// DeleteMembership removes a user from an account, with the same last-admin
// protection as role demotion.
func (m *membershipManager) DeleteMembership(ctx context.Context, membershipID uuid.UUID, actor *User) error {
	var membership *Membership

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		membership, err = m.repo.Memberships().GetByIDTx(ctx, tx, membershipID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrMembershipNotFound
			}
			return err
		}

		if err := m.requireAdminTx(ctx, tx, actor, membership.AccountID); err != nil {
			return err
		}

		if membership.Role == RoleAdmin {
			admins, err := m.repo.Memberships().CountAdminsTx(ctx, tx, membership.AccountID)
			if err != nil {
				return err
			}
			if admins <= 1 {
				if actor != nil && actor.ID == membership.UserID {
					return ErrOnlyAdmin
				}
				return ErrLastAdmin
			}
		}

		return m.repo.Memberships().DeleteByIDTx(ctx, tx, membership.ID)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete membership")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventMembershipRemoved,
		Actor:     actorFromUser(actor),
		UserID:    membership.UserID.String(),
		AccountID: membership.AccountID.String(),
	})

	return nil
}

// RoleOf reports the role userID holds on accountID, if any.
func (m *membershipManager) RoleOf(ctx context.Context, userID, accountID uuid.UUID) (Role, bool, error) {
	return m.repo.Memberships().RoleOf(ctx, userID, accountID)
}

// ListMemberships returns every membership the user holds.
func (m *membershipManager) ListMemberships(ctx context.Context, userID uuid.UUID) ([]*Membership, error) {
	return m.repo.Memberships().ListForUser(ctx, userID)
}

// ListMembers returns every membership of the account.
func (m *membershipManager) ListMembers(ctx context.Context, accountID uuid.UUID) ([]*Membership, error) {
	return m.repo.Memberships().ListForAccount(ctx, accountID)
}

func (m *membershipManager) requireAdmin(ctx context.Context, actor *User, accountID uuid.UUID) error {
	if actor == nil {
		return ErrPermissionDenied
	}

	role, ok, err := m.repo.Memberships().RoleOf(ctx, actor.ID, accountID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve actor role")
	}
	if !ok || !RoleCanManage(role) {
		return ErrPermissionDenied
	}
	return nil
}

func (m *membershipManager) requireAdminTx(ctx context.Context, tx bun.IDB, actor *User, accountID uuid.UUID) error {
	if actor == nil {
		return ErrPermissionDenied
	}

	membership, err := m.repo.Memberships().GetByUserAndAccountTx(ctx, tx, actor.ID, accountID)
	if err != nil {
		return ErrPermissionDenied
	}
	if !RoleCanManage(membership.Role) {
		return ErrPermissionDenied
	}
	return nil
}

func (m *membershipManager) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := m.activitySink.Record(ctx, event); err != nil {
		m.logger.Error("activity sink record failed: %v", err)
	}
}

var _ MembershipManager = (*membershipManager)(nil)

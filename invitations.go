package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Disposition tells callers how to route a visitor who followed an
// invitation link, based on who currently holds the session.
type Disposition int

const (
	// AcceptDirectly means the current user owns the invited email and can
	// accept right away.
	AcceptDirectly Disposition = iota
	// RedirectToSignup means a guest holds the session; the invited email
	// should prefill the signup form.
	RedirectToSignup
	// LogoutThenLogin means a different credentialed identity holds the
	// session and must switch identities first.
	LogoutThenLogin
)

// InviteMessage carries the fields needed to invite an email to an account.
type InviteMessage struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
}

func (m InviteMessage) Type() string { return "invitation.send" }

func (m InviteMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Role, validation.Required, validation.By(func(value any) error {
			role, _ := value.(string)
			if !IsValidRole(role) {
				return goerrors.New("unknown role", goerrors.CategoryBadInput)
			}
			return nil
		})),
	)
}

// InvitationManager owns the invitation workflow: sending, resolving how a
// visitor should proceed, and flipping invitations to their terminal status
// exactly once.
type InvitationManager interface {
	Invite(ctx context.Context, msg InviteMessage, actor *User) (*Invitation, error)
	Accept(ctx context.Context, invitation *Invitation, user *User) (*Membership, error)
	Decline(ctx context.Context, invitation *Invitation, user *User) error
	DeleteInvitation(ctx context.Context, invitationID uuid.UUID, actor *User) error

	GetBySecret(ctx context.Context, secret string) (*Invitation, error)
	ListPending(ctx context.Context, accountID uuid.UUID) ([]*Invitation, error)
	Resolve(invitation *Invitation, current *User) Disposition
}

type invitationManager struct {
	repo         RepositoryManager
	config       Config
	logger       Logger
	activitySink ActivitySink
	mailer       Mailer
	machine      InvitationStateMachine
}

// NewInvitationManager wires an InvitationManager around the given
// repositories.
func NewInvitationManager(repo RepositoryManager, config Config) *invitationManager {
	if config == nil {
		config = ConfigDefaults{}
	}

	m := &invitationManager{
		repo:         repo,
		config:       config,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		mailer:       LogMailer{Logger: defLogger{}},
	}
	m.machine = NewInvitationStateMachine(repo.Invitations())

	return m
}

func (m *invitationManager) WithLogger(logger Logger) *invitationManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *invitationManager) WithActivitySink(sink ActivitySink) *invitationManager {
	m.activitySink = normalizeActivitySink(sink)
	m.machine = NewInvitationStateMachine(
		m.repo.Invitations(),
		WithStateMachineActivitySink(m.activitySink),
		WithStateMachineLogger(m.logger),
	)
	return m
}

func (m *invitationManager) WithMailer(mailer Mailer) *invitationManager {
	if mailer != nil {
		m.mailer = mailer
	}
	return m
}

// Invite creates a pending invitation and mails the accept link. The row is
// committed before the mail goes out: a delivery failure comes back as a
// retryable error while the invitation stays valid.
func (m *invitationManager) Invite(ctx context.Context, msg InviteMessage, actor *User) (*Invitation, error) {
	if err := msg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid invitation payload")
	}

	if err := m.requireAdmin(ctx, actor, msg.AccountID); err != nil {
		return nil, err
	}

	account, err := m.repo.Accounts().GetByID(ctx, msg.AccountID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrAccountGone
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load account")
	}

	email := NormalizeEmail(msg.Email)

	invitation, err := m.repo.Invitations().Create(ctx, &Invitation{
		Email:     email,
		AccountID: msg.AccountID,
		CreatedBy: actor.ID,
		Role:      msg.Role,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create invitation")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventInvitationSent,
		Actor:     actorFromUser(actor),
		AccountID: msg.AccountID.String(),
		Metadata:  map[string]any{"role": msg.Role},
	})

	subject := invitationSubject(m.config.GetAppName())
	body := invitationBody(m.config.GetBaseURL(), invitation.Secret, account.Name, actor.Name)

	if err := m.mailer.Send(ctx, email, subject, body); err != nil {
		return invitation, WrapMailError(err)
	}

	return invitation, nil
}

// Accept turns a pending invitation into a membership. The status flip and
// the membership insert share one transaction, and the flip is guarded so
// two concurrent accepts cannot both succeed.
func (m *invitationManager) Accept(ctx context.Context, invitation *Invitation, user *User) (*Membership, error) {
	if invitation == nil {
		return nil, ErrInvitationNotFound
	}
	if user == nil || user.IsGuest() {
		return nil, ErrPermissionDenied
	}

	if !invitation.IsPending() {
		return nil, ErrAlreadyResolved
	}

	if NormalizeEmail(invitation.Email) != user.EmailString() {
		return nil, ErrEmailMismatch
	}

	var membership *Membership

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := m.repo.Accounts().GetByIDTx(ctx, tx, invitation.AccountID.String()); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountGone
			}
			return err
		}

		if _, err := m.repo.Memberships().GetByUserAndAccountTx(ctx, tx, user.ID, invitation.AccountID); err == nil {
			return ErrAlreadyMember
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		if err := m.machine.Transition(ctx, tx, actorFromUser(user), invitation, InvitationAccepted); err != nil {
			return err
		}

		var err error
		membership, err = m.repo.Memberships().CreateTx(ctx, tx, &Membership{
			UserID:    user.ID,
			AccountID: invitation.AccountID,
			Role:      invitation.Role,
		})
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to accept invitation")
	}

	return membership, nil
}

// Decline flips a pending invitation to declined. Resolved invitations fail
// with ErrAlreadyResolved.
func (m *invitationManager) Decline(ctx context.Context, invitation *Invitation, user *User) error {
	if invitation == nil {
		return ErrInvitationNotFound
	}

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return m.machine.Transition(ctx, tx, actorFromUser(user), invitation, InvitationDeclined)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decline invitation")
	}

	return nil
}

// DeleteInvitation withdraws a pending invitation. Only admins of the target
// account may withdraw, and resolved invitations stay on record.
func (m *invitationManager) DeleteInvitation(ctx context.Context, invitationID uuid.UUID, actor *User) error {
	invitation, err := m.repo.Invitations().GetByID(ctx, invitationID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvitationNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load invitation")
	}

	if err := m.requireAdmin(ctx, actor, invitation.AccountID); err != nil {
		return err
	}

	if !invitation.IsPending() {
		return ErrAlreadyResolved
	}

	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return m.repo.Invitations().DeleteByIDTx(ctx, tx, invitation.ID)
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete invitation")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventInvitationDeleted,
		Actor:     actorFromUser(actor),
		AccountID: invitation.AccountID.String(),
	})

	return nil
}

// GetBySecret loads the invitation behind a mailed link.
func (m *invitationManager) GetBySecret(ctx context.Context, secret string) (*Invitation, error) {
	invitation, err := m.repo.Invitations().GetBySecret(ctx, secret)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvitationNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load invitation")
	}
	return invitation, nil
}

// ListPending returns the open invitations of an account.
func (m *invitationManager) ListPending(ctx context.Context, accountID uuid.UUID) ([]*Invitation, error) {
	return m.repo.Invitations().ListPendingForAccount(ctx, accountID)
}

// Resolve decides how the visitor holding the session should proceed with
// the invitation: accept in place, sign up first, or switch identities.
func (m *invitationManager) Resolve(invitation *Invitation, current *User) Disposition {
	if current == nil || current.IsGuest() {
		return RedirectToSignup
	}
	if invitation != nil && NormalizeEmail(invitation.Email) == current.EmailString() {
		return AcceptDirectly
	}
	return LogoutThenLogin
}

func (m *invitationManager) requireAdmin(ctx context.Context, actor *User, accountID uuid.UUID) error {
	if actor == nil || actor.IsGuest() {
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

func (m *invitationManager) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := m.activitySink.Record(ctx, event); err != nil {
		m.logger.Error("activity sink record failed: %v", err)
	}
}

var _ InvitationManager = (*invitationManager)(nil)

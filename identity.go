package accounts

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// PasswordResetDuration bounds how long a mailed reset link stays usable.
const PasswordResetDuration = time.Hour

// SignupMessage carries the fields needed to turn a visitor into a
// credentialed user, plus the session the caller is currently holding.
type SignupMessage struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	UseHashid       bool   `json:"-"`
	Session         *Session
}

func (m SignupMessage) Type() string { return "user.signup" }

// Validate implements the validation contract used by the HTTP layer.
func (m SignupMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&m.ConfirmPassword, validation.Required, validation.In(m.Password).Error("passwords do not match")),
	)
}

// LoginMessage carries login credentials plus the session the caller is
// currently holding, if any.
type LoginMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Session  *Session
}

func (m LoginMessage) Type() string { return "user.login" }

func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// IdentityManager owns the user lifecycle: guest provisioning, signup with
// in-place promotion, login/logout against stored sessions, and password
// maintenance.
type IdentityManager interface {
	CreateGuest(ctx context.Context) (*User, *Session, error)
	Signup(ctx context.Context, msg SignupMessage, current *User) (*User, *Session, error)
	Login(ctx context.Context, msg LoginMessage) (*User, *Session, error)
	Logout(ctx context.Context, user *User) error
	Delete(ctx context.Context, user *User) error

	UpdateProfile(ctx context.Context, user *User, name, email string) (*User, error)
	ChangePassword(ctx context.Context, user *User, oldPassword, newPassword, confirm string) error
	ForgottenPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, secret, newPassword, confirm string) error
}

type identityManager struct {
	repo         RepositoryManager
	config       Config
	logger       Logger
	activitySink ActivitySink
	mailer       Mailer
}

// NewIdentityManager wires an IdentityManager around the given repositories.
func NewIdentityManager(repo RepositoryManager, config Config) *identityManager {
	if config == nil {
		config = ConfigDefaults{}
	}

	return &identityManager{
		repo:         repo,
		config:       config,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		mailer:       LogMailer{Logger: defLogger{}},
	}
}

func (m *identityManager) WithLogger(logger Logger) *identityManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *identityManager) WithActivitySink(sink ActivitySink) *identityManager {
	m.activitySink = normalizeActivitySink(sink)
	return m
}

func (m *identityManager) WithMailer(mailer Mailer) *identityManager {
	if mailer != nil {
		m.mailer = mailer
	}
	return m
}

// CreateGuest provisions a fresh anonymous user together with its first
// session. The pair is created in one transaction so a guest never exists
// without a way to come back.
func (m *identityManager) CreateGuest(ctx context.Context) (*User, *Session, error) {
	var user *User
	var session *Session

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if user, err = m.repo.Users().CreateGuestTx(ctx, tx); err != nil {
			return err
		}

		session, err = m.repo.Sessions().CreateForUserTx(ctx, tx, user.ID, m.config.GetSessionDuration())
		return err
	})

	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to provision guest user")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventGuestCreated,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	return user, session, nil
}

// Signup registers the credentials in msg. When current is a guest the guest
// row is promoted in place, keeping its id so live sessions stay bound to it.
// Otherwise a brand new user is created. Either way the user ends up owning a
// personal account with an admin membership, and the session in msg is bound
// to the new identity the same way Login binds sessions.
func (m *identityManager) Signup(ctx context.Context, msg SignupMessage, current *User) (*User, *Session, error) {
	if err := msg.Validate(); err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid signup payload")
	}

	email := NormalizeEmail(msg.Email)

	var user *User
	var session *Session

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := m.repo.Users().EmailTakenTx(ctx, tx, email)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateEmail
		}

		hash, err := HashPassword(msg.Password)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		if current != nil && current.IsGuest() {
			user, err = m.repo.Users().PromoteTx(ctx, tx, current.ID, msg.Name, email, hash)
			if err != nil {
				return err
			}
		} else {
			record := &User{
				Name:         msg.Name,
				Email:        &email,
				PasswordHash: &hash,
			}
			if msg.UseHashid {
				if id, err := hashid.NewUUID(email); err == nil {
					record.ID = id
				}
			}

			user, err = m.repo.Users().CreateTx(ctx, tx, record)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
			}
		}

		account, err := m.repo.Accounts().CreateTx(ctx, tx, &Account{
			Name: PersonalAccountName,
		})
		if err != nil {
			return err
		}

		if _, err = m.repo.Memberships().CreateTx(ctx, tx, &Membership{
			UserID:    user.ID,
			AccountID: account.ID,
			Role:      RoleAdmin,
		}); err != nil {
			return err
		}

		user.CurrentAccountID = &account.ID
		if _, err = m.repo.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String())); err != nil {
			return err
		}

		session, err = m.bindSession(ctx, tx, user, msg.Session)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, nil, richErr
		}
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "signup transaction failed")
	}

	eventType := ActivityEventUserSignedUp
	if current != nil && current.IsGuest() {
		eventType = ActivityEventUserPromoted
	}

	m.record(ctx, ActivityEvent{
		EventType: eventType,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	return user, session, nil
}

// Login authenticates the credentials in msg. Unknown emails and wrong
// passwords fail with distinct errors so callers can report them apart. When
// msg.Session is a live guest session it is rebound to the authenticated user
// so the visitor keeps their browser state.
func (m *identityManager) Login(ctx context.Context, msg LoginMessage) (*User, *Session, error) {
	if err := msg.Validate(); err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload")
	}

	email := NormalizeEmail(msg.Email)

	user, err := m.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}

	if user.PasswordHash == nil || ComparePasswordAndHash(msg.Password, *user.PasswordHash) != nil {
		m.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     actorFromUser(user),
			UserID:    user.ID.String(),
		})
		return nil, nil, ErrIncorrectPassword
	}

	var session *Session

	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		session, err = m.bindSession(ctx, tx, user, msg.Session)
		if err != nil {
			return err
		}
		return m.repo.Users().TrackSuccessfulLoginTx(ctx, tx, user)
	})

	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "login transaction failed")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	return user, session, nil
}

// bindSession decides what to do with the session the caller presented:
// reuse it if it already belongs to the user, rebind it when a guest held it,
// and mint a fresh one otherwise. A live session owned by a different
// credentialed user is evidence of a shared browser, so that identity gets
// all its sessions invalidated before the new one is issued.
func (m *identityManager) bindSession(ctx context.Context, tx bun.Tx, user *User, current *Session) (*Session, error) {
	if current == nil || !current.IsLive() {
		return m.repo.Sessions().CreateForUserTx(ctx, tx, user.ID, m.config.GetSessionDuration())
	}

	if current.UserID == user.ID {
		return current, nil
	}

	holder, err := m.repo.Users().GetByIDTx(ctx, tx, current.UserID.String())
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}

	if holder != nil && holder.IsGuest() {
		if err := m.repo.Sessions().RebindTx(ctx, tx, current, user.ID); err != nil {
			return nil, err
		}
		return current, nil
	}

	if holder != nil {
		if err := m.repo.Sessions().InvalidateAllForUserTx(ctx, tx, holder.ID); err != nil {
			return nil, err
		}
	}

	return m.repo.Sessions().CreateForUserTx(ctx, tx, user.ID, m.config.GetSessionDuration())
}

// Logout expires every live session the user holds, on every device. The
// request middleware provisions a fresh guest on the next request.
func (m *identityManager) Logout(ctx context.Context, user *User) error {
	if user == nil {
		return nil
	}

	if err := m.repo.Sessions().InvalidateAllForUser(ctx, user.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invalidate sessions")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	return nil
}

// Delete removes the user row together with its sessions and memberships.
// Callers are expected to have cleared last-admin constraints first; the
// account layer enforces them.
func (m *identityManager) Delete(ctx context.Context, user *User) error {
	if user == nil {
		return nil
	}

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := m.repo.Sessions().DeleteForUserTx(ctx, tx, user.ID); err != nil {
			return err
		}
		if err := m.repo.Memberships().DeleteForUserTx(ctx, tx, user.ID); err != nil {
			return err
		}
		return m.repo.Users().DeleteByIDTx(ctx, tx, user.ID)
	})

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	return nil
}

// UpdateProfile changes the user's display name and email address. Email
// changes go through the same duplicate check as signup.
func (m *identityManager) UpdateProfile(ctx context.Context, user *User, name, email string) (*User, error) {
	if user == nil || user.IsGuest() {
		return nil, ErrPermissionDenied
	}

	email = NormalizeEmail(email)

	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email")
	}

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if email != user.EmailString() {
			taken, err := m.repo.Users().EmailTakenTx(ctx, tx, email)
			if err != nil {
				return err
			}
			if taken {
				return ErrDuplicateEmail
			}
		}

		if name != "" {
			user.Name = name
		}
		user.Email = &email

		_, err := m.repo.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String()))
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
	}

	return user, nil
}

// ChangePassword verifies the old password before storing a hash of the new
// one. All other sessions stay valid; only the credential changes.
func (m *identityManager) ChangePassword(ctx context.Context, user *User, oldPassword, newPassword, confirm string) error {
	if user == nil || user.IsGuest() || user.PasswordHash == nil {
		return ErrPermissionDenied
	}

	if err := ComparePasswordAndHash(oldPassword, *user.PasswordHash); err != nil {
		return ErrIncorrectPassword
	}

	if err := validation.Validate(newPassword, validation.Required, validation.Length(8, 128)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password")
	}

	if newPassword != confirm {
		return goerrors.New("passwords do not match", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	user.PasswordHash = &hash
	if _, err := m.repo.Users().Update(ctx, user, repository.UpdateByID(user.ID.String())); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store password")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	return nil
}

// ForgottenPassword mails a reset link backed by a short lived session row.
// Unknown emails return nil so the endpoint can't be used to probe which
// addresses exist.
func (m *identityManager) ForgottenPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := m.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			m.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
	}

	if user.IsGuest() {
		return nil
	}

	session, err := m.repo.Sessions().CreateForUser(ctx, user.ID, PasswordResetDuration)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create reset token")
	}

	subject := passwordResetSubject()
	body := passwordResetBody(m.config.GetBaseURL(), session.Secret)

	if err := m.mailer.Send(ctx, email, subject, body); err != nil {
		return WrapMailError(err)
	}

	return nil
}

// ResetPassword consumes a mailed reset secret. On success every live
// session of the user is invalidated, the reset token included.
func (m *identityManager) ResetPassword(ctx context.Context, secret, newPassword, confirm string) error {
	if err := validation.Validate(newPassword, validation.Required, validation.Length(8, 128)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password")
	}

	if newPassword != confirm {
		return goerrors.New("passwords do not match", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	session, err := m.repo.Sessions().GetUnexpired(ctx, secret)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up reset token")
	}
	if session == nil {
		return goerrors.New("invalid or expired reset link", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	var user *User

	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err = m.repo.Users().GetByIDTx(ctx, tx, session.UserID.String())
		if err != nil {
			return err
		}

		hash, err := HashPassword(newPassword)
		if err != nil {
			return err
		}

		user.PasswordHash = &hash
		if _, err := m.repo.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String())); err != nil {
			return err
		}

		return m.repo.Sessions().InvalidateAllForUserTx(ctx, tx, user.ID)
	})

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset password")
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
	})

	return nil
}

func (m *identityManager) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := m.activitySink.Record(ctx, event); err != nil {
		m.logger.Error("activity sink record failed: %v", err)
	}
}

// NormalizeEmail lowercases and trims an address so lookups and uniqueness
// checks agree on a single canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ IdentityManager = (*identityManager)(nil)

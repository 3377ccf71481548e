package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity model. A user with no email is a guest: guests are
// provisioned automatically for every unauthenticated session and carry no
// credentials until they sign up.
type User struct {
	bun.BaseModel    `bun:"table:users,alias:usr"`
	ID               uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name             string     `bun:"name,notnull" json:"name,omitempty"`
	Email            *string    `bun:"email,unique,nullzero" json:"email,omitempty"`
	PasswordHash     *string    `bun:"password_hash,nullzero" json:"-"`
	CurrentAccountID *uuid.UUID `bun:"current_account_id,nullzero,type:uuid" json:"current_account_id,omitempty"`
	LastLogin        *time.Time `bun:"last_login,nullzero" json:"last_login,omitempty"`
	CreatedAt        *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt        *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsGuest reports whether the user has not yet signed up with credentials.
func (u *User) IsGuest() bool {
	return u == nil || u.Email == nil
}

// EmailString returns the email or an empty string for guests.
func (u *User) EmailString() string {
	if u == nil || u.Email == nil {
		return ""
	}
	return *u.Email
}

// GuestName is the display name given to auto provisioned users.
const GuestName = "Guest"

// Session binds an opaque secret to a user. Multiple live sessions per user
// are allowed (multi device); logout expires all of them at once.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Secret        string     `bun:"secret,notnull,unique" json:"-"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsLive reports whether the session has not expired yet.
func (s *Session) IsLive() bool {
	return s != nil && s.ExpiresAt.After(time.Now())
}

// Account is a tenant. Account scoped data lives in an isolated storage unit
// addressed by StorageLocator; the locator is opaque to this package.
type Account struct {
	bun.BaseModel  `bun:"table:accounts,alias:acc"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name           string     `bun:"name,notnull" json:"name,omitempty"`
	StorageLocator string     `bun:"storage_locator,notnull,unique" json:"storage_locator,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// PersonalAccountName is the name given to the account provisioned on signup.
const PersonalAccountName = "Personal"

// Membership is the role bearing relationship between a user and an account.
// The pair (user_id, account_id) is unique and every account keeps at least
// one admin membership at all times.
type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:mem"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Role          Role       `bun:"role,notnull" json:"role,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Account       *Account   `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// InvitationStatus tracks the invitation lifecycle. Transitions go from
// pending to accepted or pending to declined, each exactly once.
type InvitationStatus = string

const (
	// InvitationPending is the initial status
	InvitationPending InvitationStatus = "pending"
	// InvitationAccepted means the invited party joined the account
	InvitationAccepted InvitationStatus = "accepted"
	// InvitationDeclined means the invited party turned the invitation down
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation invites an email address to join an account with a given role.
// It references but does not own the account or the inviting user.
type Invitation struct {
	bun.BaseModel `bun:"table:invitations,alias:inv"`
	ID            uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Secret        string           `bun:"secret,notnull,unique" json:"-"`
	Email         string           `bun:"email,notnull" json:"email,omitempty"`
	CreatedBy     uuid.UUID        `bun:"created_by,notnull,type:uuid" json:"created_by,omitempty"`
	AccountID     uuid.UUID        `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Role          Role             `bun:"role,notnull" json:"role,omitempty"`
	Status        InvitationStatus `bun:"status,notnull,default:'pending'" json:"status,omitempty"`
	Inviter       *User            `bun:"rel:belongs-to,join:created_by=id" json:"inviter,omitempty"`
	Account       *Account         `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	CreatedAt     *time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsPending reports whether the invitation can still be resolved.
func (i *Invitation) IsPending() bool {
	return i != nil && i.Status == InvitationPending
}

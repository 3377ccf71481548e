package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeDuplicateEmail  = "DUPLICATE_EMAIL"
	textCodeOnlyAdmin       = "ONLY_ADMIN"
	textCodeLastAdmin       = "LAST_ADMIN"
	textCodeOrphanUser      = "ORPHAN_USER"
	textCodeAlreadyResolved = "INVITATION_ALREADY_RESOLVED"
	textCodeEmailMismatch   = "INVITATION_EMAIL_MISMATCH"
	textCodeAlreadyMember   = "ALREADY_MEMBER"
	textCodeAccountGone     = "ACCOUNT_GONE"
	textCodeMailDelivery    = "MAIL_DELIVERY_FAILED"
)

// ErrPermissionDenied is returned when the acting user lacks the required
// role on the target account.
var ErrPermissionDenied = goerrors.New("you don't have permission to manage this account", goerrors.CategoryAuth).
	WithCode(goerrors.CodeForbidden)

// ErrDuplicateEmail is returned when a signup email is already taken. The
// storage unique constraint remains the source of truth; this pre check is a
// fast path for user feedback.
var ErrDuplicateEmail = goerrors.New("a user with that email already exists", goerrors.CategoryConflict).
	WithTextCode(textCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrOnlyAdmin is returned when users try to drop their own admin role while
// being the sole admin of the account.
var ErrOnlyAdmin = goerrors.New("you can't remove your admin rights because you are the only admin", goerrors.CategoryConflict).
	WithTextCode(textCodeOnlyAdmin).
	WithCode(goerrors.CodeConflict)

// ErrLastAdmin is returned when an operation would leave the account with no
// admin member.
var ErrLastAdmin = goerrors.New("you can't remove this user's admin rights because it is the last admin", goerrors.CategoryConflict).
	WithTextCode(textCodeLastAdmin).
	WithCode(goerrors.CodeConflict)

// ErrOrphanUser is returned when deleting an account would leave a member
// with no accounts at all.
var ErrOrphanUser = goerrors.New("deleting this account would leave a member with no accounts", goerrors.CategoryConflict).
	WithTextCode(textCodeOrphanUser).
	WithCode(goerrors.CodeConflict)

// ErrAlreadyResolved is returned when accepting or declining an invitation
// that is no longer pending.
var ErrAlreadyResolved = goerrors.New("this invitation has already been resolved", goerrors.CategoryConflict).
	WithTextCode(textCodeAlreadyResolved).
	WithCode(goerrors.CodeConflict)

// ErrEmailMismatch is returned when the accepting identity does not own the
// invited email address.
var ErrEmailMismatch = goerrors.New("the invitation email doesn't match the email you signed up with", goerrors.CategoryValidation).
	WithTextCode(textCodeEmailMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrAlreadyMember is returned when the accepting user already belongs to
// the invited account.
var ErrAlreadyMember = goerrors.New("you're already a member of this account", goerrors.CategoryConflict).
	WithTextCode(textCodeAlreadyMember).
	WithCode(goerrors.CodeConflict)

// ErrAccountGone is returned when the invited account no longer exists.
var ErrAccountGone = goerrors.New("the account you've been invited to join doesn't exist anymore", goerrors.CategoryNotFound).
	WithTextCode(textCodeAccountGone).
	WithCode(goerrors.CodeNotFound)

// ErrUserNotFound signals login against an unknown email. Callers must be
// able to tell it apart from a wrong password.
var ErrUserNotFound = goerrors.New("no such user", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrIncorrectPassword signals a known user with a failed password check.
var ErrIncorrectPassword = goerrors.New("incorrect password", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrMembershipNotFound is returned when a membership id resolves to nothing.
var ErrMembershipNotFound = goerrors.New("membership not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvitationNotFound is returned for unknown invitation ids or secrets.
var ErrInvitationNotFound = goerrors.New("invitation not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// WrapMailError marks a delivery failure as retryable. The invitation or
// reset row it refers to stays committed; only the notification needs a retry.
func WrapMailError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver email").
		WithTextCode(textCodeMailDelivery)
}

// IsRetryableMailError reports whether the error came from the mail
// collaborator and the failed send can simply be retried.
func IsRetryableMailError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCodeMailDelivery
}

// IsConflict reports whether the error belongs to the conflict family
// (duplicate email, last admin, resolved invitation).
func IsConflict(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryConflict
}

// IsPermissionDenied reports whether the acting user was rejected for
// missing account privileges.
func IsPermissionDenied(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth && richErr.Code == goerrors.CodeForbidden
}

// IsNotFound reports whether the error maps to a user facing "not found"
// rather than a server fault.
func IsNotFound(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryNotFound
}

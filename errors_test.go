package accounts_test

import (
	"errors"
	"testing"

	"github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorFamilies(t *testing.T) {
	assert.True(t, accounts.IsConflict(accounts.ErrDuplicateEmail))
	assert.True(t, accounts.IsConflict(accounts.ErrOnlyAdmin))
	assert.True(t, accounts.IsConflict(accounts.ErrLastAdmin))
	assert.True(t, accounts.IsConflict(accounts.ErrAlreadyResolved))
	assert.False(t, accounts.IsConflict(accounts.ErrPermissionDenied))

	assert.True(t, accounts.IsPermissionDenied(accounts.ErrPermissionDenied))
	assert.False(t, accounts.IsPermissionDenied(accounts.ErrDuplicateEmail))

	assert.True(t, accounts.IsNotFound(accounts.ErrUserNotFound))
	assert.True(t, accounts.IsNotFound(accounts.ErrAccountGone))
	assert.False(t, accounts.IsNotFound(accounts.ErrIncorrectPassword))
}

func TestOnlyAdminAndLastAdminReadDifferently(t *testing.T) {
	assert.NotEqual(t, accounts.ErrOnlyAdmin.Error(), accounts.ErrLastAdmin.Error())
	assert.Contains(t, accounts.ErrOnlyAdmin.Error(), "only admin")
	assert.Contains(t, accounts.ErrLastAdmin.Error(), "last admin")
}

func TestWrapMailErrorIsRetryable(t *testing.T) {
	wrapped := accounts.WrapMailError(errors.New("relay down"))

	assert.True(t, accounts.IsRetryableMailError(wrapped))
	assert.False(t, accounts.IsRetryableMailError(errors.New("relay down")))

	var richErr *goerrors.Error
	assert.True(t, goerrors.As(wrapped, &richErr))
	assert.Equal(t, goerrors.CategoryOperation, richErr.Category)
}

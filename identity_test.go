package accounts_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGuestProvisionsUserAndSession(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	sink := &recordingSink{}
	identity := accounts.NewIdentityManager(repo, nil).WithActivitySink(sink)

	user, session, err := identity.CreateGuest(context.Background())
	require.NoError(t, err)

	assert.True(t, user.IsGuest())
	assert.Equal(t, accounts.GuestName, user.Name)
	assert.Nil(t, user.Email)

	require.NotNil(t, session)
	assert.Equal(t, user.ID, session.UserID)
	assert.True(t, session.IsLive())
	assert.NotEmpty(t, session.Secret)

	assert.True(t, sink.has(accounts.ActivityEventGuestCreated))
}

func TestSignupPromotesGuestInPlace(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	guest, session, err := identity.CreateGuest(ctx)
	require.NoError(t, err)

	user, bound, err := identity.Signup(ctx, accounts.SignupMessage{
		Name:            "Ada",
		Email:           "Ada@Example.com",
		Password:        "super-secret-pw",
		ConfirmPassword: "super-secret-pw",
		Session:         session,
	}, guest)
	require.NoError(t, err)

	// The guest keeps their session across promotion, same secret and all.
	require.NotNil(t, bound)
	assert.Equal(t, session.Secret, bound.Secret)

	// Promotion keeps the row, so the guest's sessions keep working.
	assert.Equal(t, guest.ID, user.ID)
	assert.Equal(t, "ada@example.com", user.EmailString())
	assert.False(t, user.IsGuest())

	found, err := repo.Sessions().GetUnexpired(ctx, session.Secret)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.UserID)

	// Signup also provisions the personal account with an admin membership.
	memberships, err := repo.Memberships().ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, accounts.RoleAdmin, memberships[0].Role)

	account, err := repo.Accounts().GetByID(ctx, memberships[0].AccountID.String())
	require.NoError(t, err)
	assert.Equal(t, accounts.PersonalAccountName, account.Name)
	assert.NotEmpty(t, account.StorageLocator)
}

func TestSignupWithoutGuestCreatesUser(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	user := signupUser(t, repo, "solo@example.com")
	assert.False(t, user.IsGuest())
	require.NotNil(t, user.CurrentAccountID)
}

func TestSignupDetachesForeignCredentialedSession(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	// Alice is already credentialed and has a live session on this browser.
	alice := signupUser(t, repo, "alice-shared@example.com")
	stale, err := repo.Sessions().CreateForUser(ctx, alice.ID, 0)
	require.NoError(t, err)

	// Bob signs up on the same browser, presenting Alice's session.
	bob, fresh, err := identity.Signup(ctx, accounts.SignupMessage{
		Name:            "Bob",
		Email:           "bob-shared@example.com",
		Password:        "super-secret-pw",
		ConfirmPassword: "super-secret-pw",
		Session:         stale,
	}, alice)
	require.NoError(t, err)

	// Bob gets his own session rather than inheriting Alice's.
	require.NotNil(t, fresh)
	assert.Equal(t, bob.ID, fresh.UserID)
	assert.NotEqual(t, stale.Secret, fresh.Secret)

	// Alice's identity is fully signed out of the shared browser.
	live, err := repo.Sessions().CountLiveForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, live)
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	signupUser(t, repo, "taken@example.com")

	identity := accounts.NewIdentityManager(repo, nil)
	_, _, err := identity.Signup(context.Background(), accounts.SignupMessage{
		Name:            "Second",
		Email:           "taken@example.com",
		Password:        "super-secret-pw",
		ConfirmPassword: "super-secret-pw",
	}, nil)

	assert.ErrorIs(t, err, accounts.ErrDuplicateEmail)
	assert.True(t, accounts.IsConflict(err))
}

func TestSignupValidatesPayload(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	identity := accounts.NewIdentityManager(repo, nil)

	_, _, err := identity.Signup(context.Background(), accounts.SignupMessage{
		Name:            "No Match",
		Email:           "nomatch@example.com",
		Password:        "super-secret-pw",
		ConfirmPassword: "different-thing",
	}, nil)
	assert.Error(t, err)

	_, _, err = identity.Signup(context.Background(), accounts.SignupMessage{
		Name:            "Bad Email",
		Email:           "not-an-email",
		Password:        "super-secret-pw",
		ConfirmPassword: "super-secret-pw",
	}, nil)
	assert.Error(t, err)
}

func TestLoginDistinguishesUnknownUserFromBadPassword(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	signupUser(t, repo, "known@example.com")

	identity := accounts.NewIdentityManager(repo, nil)

	_, _, err := identity.Login(context.Background(), accounts.LoginMessage{
		Email:    "unknown@example.com",
		Password: "super-secret-pw",
	})
	assert.ErrorIs(t, err, accounts.ErrUserNotFound)

	_, _, err = identity.Login(context.Background(), accounts.LoginMessage{
		Email:    "known@example.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, accounts.ErrIncorrectPassword)
}

func TestLoginRebindsGuestSession(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	user := signupUser(t, repo, "returning@example.com")

	// A different browser visit produced a guest holding a session.
	_, guestSession, err := identity.CreateGuest(ctx)
	require.NoError(t, err)

	logged, session, err := identity.Login(ctx, accounts.LoginMessage{
		Email:    "returning@example.com",
		Password: "super-secret-pw",
		Session:  guestSession,
	})
	require.NoError(t, err)

	assert.Equal(t, user.ID, logged.ID)
	assert.Equal(t, guestSession.Secret, session.Secret)
	assert.Equal(t, user.ID, session.UserID)
	assert.NotNil(t, logged.LastLogin)
}

func TestLoginReusesOwnLiveSession(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	user := signupUser(t, repo, "same@example.com")

	first, err := repo.Sessions().CreateForUser(ctx, user.ID, 0)
	require.NoError(t, err)

	_, session, err := identity.Login(ctx, accounts.LoginMessage{
		Email:    "same@example.com",
		Password: "super-secret-pw",
		Session:  first,
	})
	require.NoError(t, err)
	assert.Equal(t, first.Secret, session.Secret)
}

func TestLoginEvictsOtherCredentialedIdentity(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	alice := signupUser(t, repo, "alice@example.com")
	signupUser(t, repo, "bob@example.com")

	aliceSession, err := repo.Sessions().CreateForUser(ctx, alice.ID, 0)
	require.NoError(t, err)

	_, session, err := identity.Login(ctx, accounts.LoginMessage{
		Email:    "bob@example.com",
		Password: "super-secret-pw",
		Session:  aliceSession,
	})
	require.NoError(t, err)

	assert.NotEqual(t, aliceSession.Secret, session.Secret)

	// Alice's sessions were all expired before Bob got his.
	live, err := repo.Sessions().CountLiveForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, live)
}

func TestLogoutInvalidatesEverySession(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	user := signupUser(t, repo, "multi@example.com")

	first, err := repo.Sessions().CreateForUser(ctx, user.ID, 0)
	require.NoError(t, err)
	second, err := repo.Sessions().CreateForUser(ctx, user.ID, 0)
	require.NoError(t, err)

	require.NoError(t, identity.Logout(ctx, user))

	for _, secret := range []string{first.Secret, second.Secret} {
		found, err := repo.Sessions().GetUnexpired(ctx, secret)
		require.NoError(t, err)
		assert.Nil(t, found)
	}
}

func TestDeleteRemovesUserSessionsAndMemberships(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	user := signupUser(t, repo, "gone@example.com")
	_, err := repo.Sessions().CreateForUser(ctx, user.ID, 0)
	require.NoError(t, err)

	require.NoError(t, identity.Delete(ctx, user))

	_, err = repo.Users().GetByID(ctx, user.ID.String())
	assert.Error(t, err)

	memberships, err := repo.Memberships().ListForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, memberships)
}

func TestChangePasswordChecksOldPassword(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	user := signupUser(t, repo, "changer@example.com")

	err := identity.ChangePassword(ctx, user, "wrong-old", "new-password-1", "new-password-1")
	assert.ErrorIs(t, err, accounts.ErrIncorrectPassword)

	err = identity.ChangePassword(ctx, user, "super-secret-pw", "new-password-1", "new-password-1")
	require.NoError(t, err)

	_, _, err = identity.Login(ctx, accounts.LoginMessage{
		Email:    "changer@example.com",
		Password: "new-password-1",
	})
	assert.NoError(t, err)
}

func TestForgottenPasswordMailsResetLink(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	mailer := &capturingMailer{}
	identity := accounts.NewIdentityManager(repo, nil).WithMailer(mailer)

	signupUser(t, repo, "forgetful@example.com")

	require.NoError(t, identity.ForgottenPassword(ctx, "forgetful@example.com"))
	assert.Equal(t, "forgetful@example.com", mailer.to)
	assert.Contains(t, mailer.body, "/reset_password/")

	// Unknown addresses get the same silence.
	mailer.to = ""
	require.NoError(t, identity.ForgottenPassword(ctx, "nobody@example.com"))
	assert.Empty(t, mailer.to)
}

func TestResetPasswordConsumesTokenAndLogsOutEverywhere(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	identity := accounts.NewIdentityManager(repo, nil)

	user := signupUser(t, repo, "resetme@example.com")

	token, err := repo.Sessions().CreateForUser(ctx, user.ID, accounts.PasswordResetDuration)
	require.NoError(t, err)

	require.NoError(t, identity.ResetPassword(ctx, token.Secret, "brand-new-pw-1", "brand-new-pw-1"))

	// The reset token is spent along with every other session.
	err = identity.ResetPassword(ctx, token.Secret, "another-pw-123", "another-pw-123")
	assert.Error(t, err)

	_, _, err = identity.Login(ctx, accounts.LoginMessage{
		Email:    "resetme@example.com",
		Password: "brand-new-pw-1",
	})
	assert.NoError(t, err)
}

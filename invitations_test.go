package accounts_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inviteFixture(t *testing.T, repo accounts.RepositoryManager) (*accounts.User, *accounts.Account, *accounts.Invitation) {
	t.Helper()

	ctx := context.Background()

	admin := signupUser(t, repo, "inviter@example.com")

	account, err := accounts.NewMembershipManager(repo).CreateAccount(ctx, "Invite Target", admin)
	require.NoError(t, err)

	invitation, err := accounts.NewInvitationManager(repo, nil).Invite(ctx, accounts.InviteMessage{
		AccountID: account.ID,
		Email:     "invitee@example.com",
		Role:      accounts.RoleMember,
	}, admin)
	require.NoError(t, err)

	return admin, account, invitation
}

func TestInviteCreatesPendingInvitationAndSendsMail(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	mailer := &capturingMailer{}
	sink := &recordingSink{}

	admin := signupUser(t, repo, "sender@example.com")
	account, err := accounts.NewMembershipManager(repo).CreateAccount(ctx, "Mailing", admin)
	require.NoError(t, err)

	manager := accounts.NewInvitationManager(repo, nil).WithMailer(mailer).WithActivitySink(sink)

	invitation, err := manager.Invite(ctx, accounts.InviteMessage{
		AccountID: account.ID,
		Email:     "Friend@Example.com",
		Role:      accounts.RoleMember,
	}, admin)
	require.NoError(t, err)

	assert.True(t, invitation.IsPending())
	assert.Equal(t, "friend@example.com", invitation.Email)
	assert.NotEmpty(t, invitation.Secret)

	assert.Equal(t, "friend@example.com", mailer.to)
	assert.Contains(t, mailer.body, invitation.Secret)

	assert.True(t, sink.has(accounts.ActivityEventInvitationSent))
}

func TestInviteRequiresAccountAdmin(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()

	admin := signupUser(t, repo, "theadmin@example.com")
	stranger := signupUser(t, repo, "stranger@example.com")

	account, err := accounts.NewMembershipManager(repo).CreateAccount(ctx, "Private", admin)
	require.NoError(t, err)

	_, err = accounts.NewInvitationManager(repo, nil).Invite(ctx, accounts.InviteMessage{
		AccountID: account.ID,
		Email:     "anyone@example.com",
		Role:      accounts.RoleMember,
	}, stranger)
	assert.ErrorIs(t, err, accounts.ErrPermissionDenied)
}

func TestInviteMailFailureKeepsInvitation(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()

	admin := signupUser(t, repo, "flaky@example.com")
	account, err := accounts.NewMembershipManager(repo).CreateAccount(ctx, "Flaky Mail", admin)
	require.NoError(t, err)

	manager := accounts.NewInvitationManager(repo, nil).WithMailer(failingMailer{})

	invitation, err := manager.Invite(ctx, accounts.InviteMessage{
		AccountID: account.ID,
		Email:     "later@example.com",
		Role:      accounts.RoleMember,
	}, admin)

	require.Error(t, err)
	assert.True(t, accounts.IsRetryableMailError(err))

	// The row is committed; the mail can simply be resent.
	require.NotNil(t, invitation)
	found, err := manager.GetBySecret(ctx, invitation.Secret)
	require.NoError(t, err)
	assert.True(t, found.IsPending())
}

func TestAcceptCreatesMembershipExactlyOnce(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, account, invitation := inviteFixture(t, repo)

	invitee := signupUser(t, repo, "invitee@example.com")

	manager := accounts.NewInvitationManager(repo, nil)

	membership, err := manager.Accept(ctx, invitation, invitee)
	require.NoError(t, err)
	assert.Equal(t, account.ID, membership.AccountID)
	assert.Equal(t, accounts.RoleMember, membership.Role)

	// A second accept of the same invitation fails.
	stale, err := manager.GetBySecret(ctx, invitation.Secret)
	require.NoError(t, err)
	_, err = manager.Accept(ctx, stale, invitee)
	assert.ErrorIs(t, err, accounts.ErrAlreadyResolved)
}

func TestAcceptChecksEmailOwnership(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, _, invitation := inviteFixture(t, repo)

	other := signupUser(t, repo, "somebody-else@example.com")

	_, err := accounts.NewInvitationManager(repo, nil).Accept(ctx, invitation, other)
	assert.ErrorIs(t, err, accounts.ErrEmailMismatch)
}

func TestAcceptRejectsGuests(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, _, invitation := inviteFixture(t, repo)

	guest, _, err := accounts.NewIdentityManager(repo, nil).CreateGuest(ctx)
	require.NoError(t, err)

	_, err = accounts.NewInvitationManager(repo, nil).Accept(ctx, invitation, guest)
	assert.ErrorIs(t, err, accounts.ErrPermissionDenied)
}

func TestAcceptRejectsExistingMembers(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, account, invitation := inviteFixture(t, repo)

	invitee := signupUser(t, repo, "invitee@example.com")

	_, err := repo.Memberships().Create(ctx, &accounts.Membership{
		UserID:    invitee.ID,
		AccountID: account.ID,
		Role:      accounts.RoleMember,
	})
	require.NoError(t, err)

	_, err = accounts.NewInvitationManager(repo, nil).Accept(ctx, invitation, invitee)
	assert.ErrorIs(t, err, accounts.ErrAlreadyMember)
}

func TestAcceptChecksAccountStillExists(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()

	admin := signupUser(t, repo, "deleter@example.com")
	account, err := accounts.NewMembershipManager(repo).CreateAccount(ctx, "Ephemeral", admin)
	require.NoError(t, err)

	// Drop the account, then plant an invitation pointing at it the way a
	// resolved-then-reused link would.
	require.NoError(t, accounts.NewMembershipManager(repo).DeleteAccount(ctx, account.ID, admin))

	orphan, err := repo.Invitations().Create(ctx, &accounts.Invitation{
		Email:     "invitee@example.com",
		AccountID: account.ID,
		CreatedBy: admin.ID,
		Role:      accounts.RoleMember,
	})
	require.NoError(t, err)

	invitee := signupUser(t, repo, "invitee@example.com")

	_, err = accounts.NewInvitationManager(repo, nil).Accept(ctx, orphan, invitee)
	assert.ErrorIs(t, err, accounts.ErrAccountGone)
}

func TestDeclineFlipsPendingOnly(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, _, invitation := inviteFixture(t, repo)

	manager := accounts.NewInvitationManager(repo, nil)

	require.NoError(t, manager.Decline(ctx, invitation, nil))
	assert.Equal(t, accounts.InvitationDeclined, invitation.Status)

	err := manager.Decline(ctx, invitation, nil)
	assert.ErrorIs(t, err, accounts.ErrAlreadyResolved)
}

func TestDeleteInvitationPendingOnly(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	admin, _, invitation := inviteFixture(t, repo)

	manager := accounts.NewInvitationManager(repo, nil)

	require.NoError(t, manager.DeleteInvitation(ctx, invitation.ID, admin))

	_, err := manager.GetBySecret(ctx, invitation.Secret)
	assert.ErrorIs(t, err, accounts.ErrInvitationNotFound)
}

func TestDeleteInvitationResolvedStaysOnRecord(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	admin, _, invitation := inviteFixture(t, repo)

	manager := accounts.NewInvitationManager(repo, nil)
	require.NoError(t, manager.Decline(ctx, invitation, nil))

	err := manager.DeleteInvitation(ctx, invitation.ID, admin)
	assert.ErrorIs(t, err, accounts.ErrAlreadyResolved)
}

func TestResolveDispositions(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	manager := accounts.NewInvitationManager(repo, nil)

	invitation := &accounts.Invitation{Email: "target@example.com"}

	// Guests and anonymous visitors sign up first.
	assert.Equal(t, accounts.RedirectToSignup, manager.Resolve(invitation, nil))

	guest := &accounts.User{Name: accounts.GuestName}
	assert.Equal(t, accounts.RedirectToSignup, manager.Resolve(invitation, guest))

	// The invited identity accepts in place.
	email := "target@example.com"
	owner := &accounts.User{Email: &email}
	assert.Equal(t, accounts.AcceptDirectly, manager.Resolve(invitation, owner))

	// Anyone else has to switch identities.
	otherEmail := "other@example.com"
	other := &accounts.User{Email: &otherEmail}
	assert.Equal(t, accounts.LogoutThenLogin, manager.Resolve(invitation, other))
}

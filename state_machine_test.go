package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestStateMachineCanTransition(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	sm := accounts.NewInvitationStateMachine(repo.Invitations())

	assert.True(t, sm.CanTransition(accounts.InvitationPending, accounts.InvitationAccepted))
	assert.True(t, sm.CanTransition(accounts.InvitationPending, accounts.InvitationDeclined))

	assert.False(t, sm.CanTransition(accounts.InvitationAccepted, accounts.InvitationPending))
	assert.False(t, sm.CanTransition(accounts.InvitationAccepted, accounts.InvitationDeclined))
	assert.False(t, sm.CanTransition(accounts.InvitationDeclined, accounts.InvitationAccepted))
}

func TestStateMachineTransitionPersistsAndEmits(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, _, invitation := inviteFixture(t, repo)

	sink := &recordingSink{}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sm := accounts.NewInvitationStateMachine(
		repo.Invitations(),
		accounts.WithStateMachineActivitySink(sink),
		accounts.WithStateMachineClock(func() time.Time { return fixed }),
	)

	var hookRan bool

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return sm.Transition(ctx, tx, accounts.ActorRef{ID: "tester", Type: "user"}, invitation, accounts.InvitationAccepted,
			accounts.WithTransitionReason("joined the team"),
			accounts.WithAfterTransitionHook(func(context.Context, accounts.TransitionContext) error {
				hookRan = true
				return nil
			}),
		)
	})
	require.NoError(t, err)

	assert.True(t, hookRan)
	assert.Equal(t, accounts.InvitationAccepted, invitation.Status)

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, accounts.ActivityEventInvitationAccepted, event.EventType)
	assert.Equal(t, accounts.InvitationPending, event.FromStatus)
	assert.Equal(t, accounts.InvitationAccepted, event.ToStatus)
	assert.Equal(t, fixed, event.OccurredAt)
	assert.Equal(t, "joined the team", event.Metadata["reason"])

	// The flip is stored.
	stored, err := repo.Invitations().GetBySecret(ctx, invitation.Secret)
	require.NoError(t, err)
	assert.Equal(t, accounts.InvitationAccepted, stored.Status)
}

func TestStateMachineTerminalReentry(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, _, invitation := inviteFixture(t, repo)

	sm := accounts.NewInvitationStateMachine(repo.Invitations())

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return sm.Transition(ctx, tx, accounts.ActorRef{}, invitation, accounts.InvitationDeclined)
	})
	require.NoError(t, err)

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return sm.Transition(ctx, tx, accounts.ActorRef{}, invitation, accounts.InvitationAccepted)
	})
	assert.ErrorIs(t, err, accounts.ErrAlreadyResolved)
}

func TestStateMachineStaleInMemoryStatus(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, _, invitation := inviteFixture(t, repo)

	sm := accounts.NewInvitationStateMachine(repo.Invitations())

	// Another process resolved the invitation; our copy still says pending.
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		flipped, err := repo.Invitations().ResolvePendingTx(ctx, tx, invitation.ID, accounts.InvitationAccepted)
		require.NoError(t, err)
		require.True(t, flipped)
		return nil
	})
	require.NoError(t, err)

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return sm.Transition(ctx, tx, accounts.ActorRef{}, invitation, accounts.InvitationDeclined)
	})
	assert.ErrorIs(t, err, accounts.ErrAlreadyResolved)
}

func TestStateMachineBeforeHookAborts(t *testing.T) {
	repo, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	_, _, invitation := inviteFixture(t, repo)

	sm := accounts.NewInvitationStateMachine(repo.Invitations())

	boom := assert.AnError

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return sm.Transition(ctx, tx, accounts.ActorRef{}, invitation, accounts.InvitationAccepted,
			accounts.WithBeforeTransitionHook(func(context.Context, accounts.TransitionContext) error {
				return boom
			}),
		)
	})
	assert.ErrorIs(t, err, boom)

	// Nothing was flipped.
	stored, err := repo.Invitations().GetBySecret(ctx, invitation.Secret)
	require.NoError(t, err)
	assert.True(t, stored.IsPending())
}

package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventGuestCreated       ActivityEventType = "user.guest.created"
	ActivityEventUserSignedUp       ActivityEventType = "user.signup"
	ActivityEventUserPromoted       ActivityEventType = "user.promoted"
	ActivityEventUserDeleted        ActivityEventType = "user.deleted"
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventLogout             ActivityEventType = "auth.logout"
	ActivityEventPasswordChanged    ActivityEventType = "auth.password.changed"
	ActivityEventPasswordReset      ActivityEventType = "auth.password.reset"
	ActivityEventAccountCreated     ActivityEventType = "account.created"
	ActivityEventAccountDeleted     ActivityEventType = "account.deleted"
	ActivityEventRoleChanged        ActivityEventType = "membership.role.changed"
	ActivityEventMembershipRemoved  ActivityEventType = "membership.removed"
	ActivityEventInvitationSent     ActivityEventType = "invitation.sent"
	ActivityEventInvitationAccepted ActivityEventType = "invitation.accepted"
	ActivityEventInvitationDeclined ActivityEventType = "invitation.declined"
	ActivityEventInvitationDeleted  ActivityEventType = "invitation.deleted"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	AccountID  string
	FromStatus InvitationStatus
	ToStatus   InvitationStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks run best effort: failures are logged, never propagated, so auditing
// can't block an operation that already committed.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func actorFromUser(u *User) ActorRef {
	if u == nil {
		return ActorRef{Type: "unknown"}
	}
	kind := "user"
	if u.IsGuest() {
		kind = "guest"
	}
	return ActorRef{ID: u.ID.String(), Type: kind}
}

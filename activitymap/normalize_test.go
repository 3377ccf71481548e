package activitymap_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType:  accounts.ActivityEventInvitationAccepted,
		Actor:      accounts.ActorRef{ID: "user-42", Type: "user"},
		UserID:     "user-100",
		AccountID:  "acct-7",
		FromStatus: accounts.InvitationPending,
		ToStatus:   accounts.InvitationAccepted,
		Metadata: map[string]any{
			"ticket": "SEC-204",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-42" {
		t.Fatalf("expected actor_id user-42, got %q", out.ActorID)
	}
	if out.Verb != string(accounts.ActivityEventInvitationAccepted) {
		t.Fatalf("expected verb %q, got %q", accounts.ActivityEventInvitationAccepted, out.Verb)
	}
	if out.ObjectType != "user" {
		t.Fatalf("expected object_type user, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "accounts" {
		t.Fatalf("expected channel accounts, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["ticket"] != "SEC-204" {
		t.Fatalf("expected metadata ticket SEC-204, got %#v", out.Metadata["ticket"])
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "user" {
		t.Fatalf("expected metadata actor_type user, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
	if out.Metadata[activitymap.MetadataKeyFromStatus] != string(accounts.InvitationPending) {
		t.Fatalf("expected metadata from_status pending, got %#v", out.Metadata[activitymap.MetadataKeyFromStatus])
	}
	if out.Metadata[activitymap.MetadataKeyToStatus] != string(accounts.InvitationAccepted) {
		t.Fatalf("expected metadata to_status accepted, got %#v", out.Metadata[activitymap.MetadataKeyToStatus])
	}
	if out.Metadata[activitymap.MetadataKeyAccountID] != "acct-7" {
		t.Fatalf("expected metadata account_id acct-7, got %#v", out.Metadata[activitymap.MetadataKeyAccountID])
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	t.Parallel()

	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventAccountDeleted,
		AccountID: "acct-9",
	}

	out := activitymap.Normalize(event,
		activitymap.WithDefaultObjectType("account"),
		activitymap.WithActorFallback("cron"),
	)

	if out.ActorID != "cron" {
		t.Fatalf("expected actor fallback cron, got %q", out.ActorID)
	}
	if out.ObjectID != "acct-9" {
		t.Fatalf("expected object_id acct-9, got %q", out.ObjectID)
	}
	if out.ObjectType != "account" {
		t.Fatalf("expected object_type account, got %q", out.ObjectType)
	}
	if out.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be filled")
	}
}

func TestNormalizeObjectIDResolver(t *testing.T) {
	t.Parallel()

	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventRoleChanged,
		UserID:    "user-1",
		AccountID: "acct-2",
	}

	out := activitymap.Normalize(event, activitymap.WithObjectIDResolver(func(e accounts.ActivityEvent) string {
		return e.AccountID
	}))

	if out.ObjectID != "acct-2" {
		t.Fatalf("expected resolver to pick acct-2, got %q", out.ObjectID)
	}
}

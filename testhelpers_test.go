package accounts_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupDB(t *testing.T) (accounts.RepositoryManager, func()) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// Foreign keys stay off: resolved invitations outlive their account on
	// purpose, the Accept path reports those as ErrAccountGone.
	applyMigrations(t, db)

	cleanup := func() {
		_ = db.Close()
		_ = sqldb.Close()
	}

	return accounts.NewRepositoryManager(db), cleanup
}

func applyMigrations(t *testing.T, db *bun.DB) {
	t.Helper()

	data, err := accounts.GetMigrationsFS().ReadFile("data/sql/migrations/001_create_core_tables.up.sql")
	require.NoError(t, err)

	for _, stmt := range strings.Split(string(data), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		_, err := db.Exec(stmt + ";")
		require.NoError(t, err)
	}
}

func signupUser(t *testing.T, repo accounts.RepositoryManager, email string) *accounts.User {
	t.Helper()

	identity := accounts.NewIdentityManager(repo, nil)
	user, _, err := identity.Signup(context.Background(), accounts.SignupMessage{
		Name:            "Test User",
		Email:           email,
		Password:        "super-secret-pw",
		ConfirmPassword: "super-secret-pw",
	}, nil)
	require.NoError(t, err)

	return user
}

// recordingSink captures activity events for assertions.
type recordingSink struct {
	events []accounts.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) has(eventType accounts.ActivityEventType) bool {
	for _, e := range s.events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

// failingMailer simulates an unreachable mail relay.
type failingMailer struct{}

func (failingMailer) Send(context.Context, string, string, string) error {
	return sql.ErrConnDone
}

// capturingMailer remembers the last message it was asked to deliver.
type capturingMailer struct {
	to      string
	subject string
	body    string
}

func (m *capturingMailer) Send(_ context.Context, to, subject, body string) error {
	m.to = to
	m.subject = subject
	m.body = body
	return nil
}

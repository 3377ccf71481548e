package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// LocalsUserKey is where the request identity middleware stores the resolved
// user in the router context.
const LocalsUserKey = "current_user"

// LocalsSessionKey is where the request identity middleware stores the
// resolved session in the router context.
const LocalsSessionKey = "current_session"

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithSessionContext sets the Session in the given context
func WithSessionContext(r context.Context, session *Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session)
}

// SessionFromContext finds the session from the context.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok
}

// UserFromRouterContext extracts the resolved user from the router context.
func UserFromRouterContext(ctx router.Context) (*User, bool) {
	raw := ctx.Locals(LocalsUserKey)
	if raw == nil {
		return nil, false
	}
	user, ok := raw.(*User)
	return user, ok
}

// SessionFromRouterContext extracts the resolved session from the router context.
func SessionFromRouterContext(ctx router.Context) (*Session, bool) {
	raw := ctx.Locals(LocalsSessionKey)
	if raw == nil {
		return nil, false
	}
	session, ok := raw.(*Session)
	return session, ok
}

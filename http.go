package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// IdentityOutcome describes how the middleware resolved the request identity.
type IdentityOutcome int

const (
	// IdentityActive means the presented cookie matched a live session.
	IdentityActive IdentityOutcome = iota
	// IdentityFirstContact means no cookie was presented; a fresh guest was
	// provisioned.
	IdentityFirstContact
	// IdentityExpired means a cookie was presented but its session had
	// expired; a fresh guest was provisioned and the visitor should be told.
	IdentityExpired
)

// LocalsIdentityOutcomeKey exposes the IdentityOutcome to handlers via Locals.
const LocalsIdentityOutcomeKey = "identity_outcome"

// RouteIdentity attaches a user to every request. A valid session cookie
// resolves to its owner; anything else gets a guest provisioned on the spot,
// so downstream handlers always see a non-nil user.
type RouteIdentity struct {
	identity     IdentityManager
	repo         RepositoryManager
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewRouteIdentity builds the middleware host around the identity manager.
func NewRouteIdentity(identity IdentityManager, repo RepositoryManager, cfg Config) (*RouteIdentity, error) {
	if identity == nil || repo == nil {
		return nil, goerrors.New("identity manager and repository manager are required", goerrors.CategoryBadInput)
	}
	if cfg == nil {
		cfg = ConfigDefaults{}
	}

	r := &RouteIdentity{
		identity: identity,
		repo:     repo,
		cfg:      cfg,
		Logger:   defLogger{},
	}
	r.ErrorHandler = r.defaultErrHandler

	return r, nil
}

// ResolveIdentity maps a cookie secret to the user and session that should
// own the request. An empty or stale secret provisions a guest pair. The
// outcome tells callers whether the visitor is new or lost a session.
func (a *RouteIdentity) ResolveIdentity(ctx context.Context, secret string) (*User, *Session, IdentityOutcome, error) {
	if secret == "" {
		user, session, err := a.identity.CreateGuest(ctx)
		return user, session, IdentityFirstContact, err
	}

	session, err := a.repo.Sessions().GetUnexpired(ctx, secret)
	if err != nil {
		return nil, nil, IdentityFirstContact, err
	}

	if session == nil {
		user, fresh, err := a.identity.CreateGuest(ctx)
		return user, fresh, IdentityExpired, err
	}

	user, err := a.repo.Users().GetByID(ctx, session.UserID.String())
	if err != nil {
		// Session without an owner, likely a deleted user. Start over.
		user, fresh, gerr := a.identity.CreateGuest(ctx)
		if gerr != nil {
			return nil, nil, IdentityExpired, gerr
		}
		return user, fresh, IdentityExpired, nil
	}

	return user, session, IdentityActive, nil
}

// RequestIdentity is the middleware: resolve the cookie, stash user and
// session in Locals and the request context, and write the cookie back when
// a new session was minted.
func (a *RouteIdentity) RequestIdentity() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			secret := c.Cookies(a.cfg.GetSessionCookieName())

			user, session, outcome, err := a.ResolveIdentity(c.Context(), secret)
			if err != nil {
				return a.ErrorHandler(c, err)
			}

			if session.Secret != secret {
				a.setSessionCookie(c, session)
			}

			c.Locals(LocalsUserKey, user)
			c.Locals(LocalsSessionKey, session)
			c.Locals(LocalsIdentityOutcomeKey, outcome)

			c.SetContext(WithSessionContext(WithContext(c.Context(), user), session))

			return hf(c)
		}
	}
}

func (a *RouteIdentity) setSessionCookie(c router.Context, session *Session) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetSessionCookieName(),
		Value:    session.Secret,
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// ClearSessionCookie drops the cookie, used after logout or user deletion.
func (a *RouteIdentity) ClearSessionCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetSessionCookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteIdentity) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	a.Logger.Error(
		"Identity middleware error: %s category=%s details=%s",
		richErr.Message,
		richErr.Category,
		print.MaybePrettyJSON(richErr.Metadata),
	)

	return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
		"error": richErr,
	})
}

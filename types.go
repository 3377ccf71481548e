package accounts

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds accounts options
type Config interface {
	GetAppName() string
	GetBaseURL() string
	GetSessionDuration() time.Duration
	GetSessionCookieName() string
	GetFromEmail() string
}

// Mailer delivers notification emails for invitations and password resets.
// Implementations wrap the actual transport (SMTP, SendGrid, ...); failures
// must be returned, never swallowed, so callers can retry delivery.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// DefaultSessionDuration is how long a session lives unless configured.
const DefaultSessionDuration = 31 * 24 * time.Hour

// DefaultSessionCookieName carries the session secret between requests.
const DefaultSessionCookieName = "session_secret"

// ConfigDefaults implements Config with sane development values.
type ConfigDefaults struct {
	AppName         string
	BaseURL         string
	SessionDuration time.Duration
	CookieName      string
	FromEmail       string
}

func (c ConfigDefaults) GetAppName() string {
	if c.AppName == "" {
		return "Your App"
	}
	return c.AppName
}

func (c ConfigDefaults) GetBaseURL() string {
	if c.BaseURL == "" {
		return "http://localhost:5000"
	}
	return c.BaseURL
}

func (c ConfigDefaults) GetSessionDuration() time.Duration {
	if c.SessionDuration <= 0 {
		return DefaultSessionDuration
	}
	return c.SessionDuration
}

func (c ConfigDefaults) GetSessionCookieName() string {
	if c.CookieName == "" {
		return DefaultSessionCookieName
	}
	return c.CookieName
}

func (c ConfigDefaults) GetFromEmail() string {
	if c.FromEmail == "" {
		return "no-reply@localhost"
	}
	return c.FromEmail
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

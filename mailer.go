package accounts

import (
	"context"
	"fmt"
)

// LogMailer prints emails instead of delivering them. It stands in for the
// real transport during development and tests.
type LogMailer struct {
	Logger Logger
}

// Send implements Mailer.
func (m LogMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("sending email to=%s subject=%q", to, subject)
	logger.Debug("email body: %s", htmlBody)
	return nil
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, to, subject, htmlBody string) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, to, subject, htmlBody string) error {
	if f == nil {
		return nil
	}
	return f(ctx, to, subject, htmlBody)
}

func invitationSubject(appName string) string {
	return fmt.Sprintf("You have been invited to join an account on %s", appName)
}

func invitationBody(baseURL, secret, accountName, inviterName string) string {
	link := fmt.Sprintf("%s/invitations/%s", baseURL, secret)
	return fmt.Sprintf(
		`<p>%s invited you to join <strong>%s</strong>.</p>
<p><a href="%s">Review the invitation</a> to accept or decline.</p>`,
		inviterName, accountName, link,
	)
}

func passwordResetSubject() string {
	return "Reset your password"
}

func passwordResetBody(baseURL, secret string) string {
	link := fmt.Sprintf("%s/reset_password/%s", baseURL, secret)
	return fmt.Sprintf(`<p><a href="%s">Click here to reset your password.</a></p>`, link)
}

// ABOUTME: Outbound email gateway for password reset notifications
// ABOUTME: SMTP via wneessen/go-mail with a log-only fallback when unconfigured

package mail

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
)

// Config holds the SMTP connection parameters. An empty Host disables SMTP
// entirely; the log mailer is used instead.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends password reset email.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, token string) error
}

// New returns the SMTP mailer when a host is configured, otherwise a mailer
// that only logs the request.
func New(cfg Config, logger *slog.Logger) Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mail")
	if cfg.Host == "" {
		logger.Warn("no SMTP host configured, reset emails will be logged only")
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{cfg: cfg, logger: logger}
}

// SMTPMailer delivers mail over SMTP.
type SMTPMailer struct {
	cfg    Config
	logger *slog.Logger
}

// SendPasswordReset sends the reset token to the user. The caller bounds the
// context, so a slow SMTP server cannot hold the request goroutine.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("setting from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}
	msg.Subject("Password reset request")
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"A password reset was requested for your account.\n\n"+
			"Reset token: %s\n\n"+
			"The token expires in 30 minutes. If you did not request this, ignore this message.\n",
		token))

	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.Username),
		gomail.WithPassword(m.cfg.Password),
	}
	client, err := gomail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending reset email: %w", err)
	}

	m.logger.Debug("reset email sent", "to", to)
	return nil
}

// LogMailer logs reset requests instead of sending them. Used in development
// and when no SMTP host is configured.
type LogMailer struct {
	logger *slog.Logger
}

// SendPasswordReset logs the request. The token itself is not logged.
func (m *LogMailer) SendPasswordReset(ctx context.Context, to, token string) error {
	m.logger.Info("password reset requested (SMTP disabled)", "to", to)
	return nil
}

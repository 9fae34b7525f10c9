// Package notify delivers best-effort email notifications. Delivery is
// decoupled from the transactions that trigger it: failures are logged and
// never propagate to the caller's request.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/blr-market/marketplace/internal/config"
	"github.com/blr-market/marketplace/pkg/logger"
)

// Relay sends a single message to a recipient.
type Relay interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewFromConfig builds an SMTP relay from mail configuration. Missing host or
// sender settings disable delivery entirely: the returned relay silently
// skips every message.
func NewFromConfig(cfg config.MailConfig, log *logger.Logger) Relay {
	if log == nil {
		log = logger.NewDefault("notify")
	}
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.Sender) == "" {
		log.Warn("mail relay not configured; notifications disabled")
		return Noop{}
	}
	return &SMTPRelay{cfg: cfg, log: log, send: smtp.SendMail}
}

// Noop is a relay that drops every message.
type Noop struct{}

func (Noop) Send(context.Context, string, string, string) error { return nil }

// SMTPRelay delivers messages over SMTP.
type SMTPRelay struct {
	cfg config.MailConfig
	log *logger.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ Relay = (*SMTPRelay)(nil)

func (r *SMTPRelay) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
	var auth smtp.Auth
	if r.cfg.Username != "" {
		auth = smtp.PlainAuth("", r.cfg.Username, r.cfg.Password, r.cfg.Host)
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		r.cfg.Sender, to, subject, body))

	if err := r.send(addr, auth, r.cfg.Sender, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	r.log.WithField("to", to).Debug("notification delivered")
	return nil
}

package auth

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteselect/internal/config"
)

// ErrMailerDisabled is returned when SMTP credentials are not configured.
var ErrMailerDisabled = eris.New("auth: smtp not configured")

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends plain-text mail through an authenticated SMTP relay.
// smtp.SendMail upgrades to STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send sendFunc
}

// NewSMTPMailer creates a mailer from the smtp config section.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	if cfg.FromEmail == "" {
		cfg.FromEmail = "noreply@siteselect.local"
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// Configured reports whether credentials are present.
func (m *SMTPMailer) Configured() bool {
	return m.cfg.Host != "" && m.cfg.Username != "" && m.cfg.Password != ""
}

// SendPasswordReset emails the reset link.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	if !m.Configured() {
		return ErrMailerDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	a := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.send(addr, a, m.cfg.FromEmail, []string{to}, resetMessage(m.cfg.FromEmail, to, resetURL)); err != nil {
		return eris.Wrapf(err, "auth: send reset email to %s", to)
	}
	return nil
}

func resetMessage(from, to, resetURL string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Password Reset - SiteSelect\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString("Hi there,\r\n\r\n")
	b.WriteString("You requested a password reset for your SiteSelect account.\r\n\r\n")
	b.WriteString("Open the link below to choose a new password:\r\n")
	b.WriteString(resetURL + "\r\n\r\n")
	b.WriteString("This link expires in 1 hour. If you didn't request a reset, ignore this email.\r\n")
	return []byte(b.String())
}

// Package mailer dispatches transactional mail over SMTP.
package mailer

import (
	"fmt"
	"net"
	"net/smtp"
	"time"

	"go.uber.org/zap"
)

// Mailer sends one HTML message. A delivery failure is returned as an error
// and surfaced by the caller as a service-level failure.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type smtpMailer struct {
	cfg     SMTPConfig
	timeout time.Duration
	lg      *zap.SugaredLogger
}

// NewSMTP returns a Mailer talking to a plain SMTP server. Every send is
// bounded by the given timeout so an unreachable relay cannot hang a request.
func NewSMTP(cfg SMTPConfig, timeout time.Duration, lg *zap.SugaredLogger) Mailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &smtpMailer{cfg: cfg, timeout: timeout, lg: lg}
}

func (m *smtpMailer) Send(to, subject, htmlBody string) error {
	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, m.timeout)
	if err != nil {
		m.lg.Errorw("smtp dial failed", "addr", addr, "error", err)
		return fmt.Errorf("mailer: dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(m.timeout))

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mailer: handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(nil); err != nil {
			return fmt.Errorf("mailer: starttls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("mailer: auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mailer: mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("mailer: rcpt: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mailer: data: %w", err)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		m.cfg.From, to, subject, htmlBody)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("mailer: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mailer: close body: %w", err)
	}
	if err := c.Quit(); err != nil {
		return fmt.Errorf("mailer: quit: %w", err)
	}
	m.lg.Infow("email sent", "to", to, "subject", subject)
	return nil
}

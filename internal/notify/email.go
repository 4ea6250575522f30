package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"installbot/internal/config"
)

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string, html bool) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends email through an SMTP relay, authenticating when a username is set.
type SMTPSender struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = strings.TrimSpace(cfg.Username)
	}

	s := &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", host, cfg.Port),
		from:     from,
		sendMail: smtp.SendMail,
	}
	if host != "" && cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	if host == "" {
		s.addr = ""
	}
	return s
}

func (s *SMTPSender) Configured() bool {
	return s != nil && s.addr != "" && s.from != ""
}

// Send runs the blocking SMTP exchange and gives up waiting when ctx ends.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string, html bool) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("email recipient is required")
	}

	msg := buildMessage(s.from, to, subject, body, html)
	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from, to, subject, body string, html bool) string {
	contentType := "text/plain"
	if html {
		contentType = "text/html"
	}
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: %s; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		contentType,
		body,
	)
}

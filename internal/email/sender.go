package email

import (
	"bytes"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type Sender interface {
	Send(to, subject, htmlBody string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth // nil for local dev (MailHog)
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	s := &SMTPSender{
		addr: fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		from: cfg.From,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return s
}

func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	msg := buildRFC822(s.from, to, subject, htmlBody)
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func buildRFC822(from, to, subject, html string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&buf, "\r\n%s\r\n", html)
	return buf.Bytes()
}

// LogSender writes emails to the logger instead of sending them.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(to, subject, htmlBody string) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("email_logged", zap.String("to", to), zap.String("subject", subject), zap.Int("body_bytes", len(htmlBody)))
	return nil
}

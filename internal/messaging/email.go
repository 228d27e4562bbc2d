// Package messaging отправляет письма по SMTP и сообщения WhatsApp.
package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/crm-backend/internal/logger"
)

// ErrNoRecipient возвращается, когда у сообщения нет адресата.
var ErrNoRecipient = errors.New("messaging: не указан получатель")

// Email описывает исходящее письмо.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// SMTPConfig параметры SMTP сервера.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Configured сообщает, что SMTP настроен.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender отправляет письма через SMTP.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
	now      func() time.Time
}

// NewSMTPSender создаёт отправителя писем.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

// SendEmail отправляет письмо. smtp.SendMail не принимает контекст,
// поэтому отменённый контекст проверяется до подключения.
func (s *SMTPSender) SendEmail(ctx context.Context, m Email) error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := buildMessage(s.cfg, m, s.now())
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{m.To}, msg); err != nil {
		return fmt.Errorf("messaging: smtp %s: %w", addr, err)
	}
	return nil
}

// buildMessage собирает MIME письмо: text/plain и, если задан, text/html.
func buildMessage(cfg SMTPConfig, m Email, now time.Time) []byte {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", cfg.FromName), cfg.From)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if m.HTML == "" {
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(m.Text)
		buf.WriteString("\r\n")
		return buf.Bytes()
	}

	boundary := "crm-" + uuid.NewString()
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, m.Text)
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, m.HTML)
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}

// LogEmailSender пишет письма в лог вместо отправки. Используется без SMTP_HOST.
type LogEmailSender struct{}

// SendEmail логирует письмо.
func (LogEmailSender) SendEmail(_ context.Context, m Email) error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	logger.Log.WithFields(logrus.Fields{
		"to":      m.To,
		"subject": m.Subject,
	}).Info("messaging: SMTP не настроен, письмо не отправлено")
	return nil
}

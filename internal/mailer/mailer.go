// Package mailer renders and delivers account and sharing emails.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"sync"

	"github.com/go-faster/errors"
	"github.com/tgdrive/filebox/internal/config"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

type SMTPTransport struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPTransport(cfg *config.MailConfig) *SMTPTransport {
	return &SMTPTransport{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPTransport) Send(_ context.Context, msg *Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return s.dialer.DialAndSend(m)
}

// LogTransport writes messages to the log instead of delivering them.
type LogTransport struct {
	lg *zap.Logger
}

func NewLogTransport(lg *zap.Logger) *LogTransport {
	return &LogTransport{lg: lg}
}

func (l *LogTransport) Send(_ context.Context, msg *Message) error {
	l.lg.Info("mail", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.String("body", msg.HTML))
	return nil
}

// MemoryTransport keeps every message it is given.
type MemoryTransport struct {
	mu   sync.Mutex
	sent []Message
}

func (m *MemoryTransport) Send(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *msg)
	return nil
}

func (m *MemoryTransport) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// Last returns the most recent message sent to addr.
func (m *MemoryTransport) Last(addr string) (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == addr {
			return m.sent[i], true
		}
	}
	return Message{}, false
}

// NewTransport picks SMTP when a host is configured.
func NewTransport(cfg *config.MailConfig, lg *zap.Logger) Transport {
	if cfg.Host == "" {
		return NewLogTransport(lg)
	}
	return NewSMTPTransport(cfg)
}

type Mailer struct {
	transport Transport
}

func New(t Transport) *Mailer {
	return &Mailer{transport: t}
}

func (m *Mailer) send(ctx context.Context, to, subject, tmpl string, data any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tmpl, data); err != nil {
		return errors.Wrapf(err, "render %s", tmpl)
	}
	if err := m.transport.Send(ctx, &Message{To: to, Subject: subject, HTML: buf.String()}); err != nil {
		return errors.Wrapf(err, "send %s", tmpl)
	}
	return nil
}

type Purpose string

const (
	PurposeRegistration Purpose = "registration"
	PurposeReset        Purpose = "reset"
)

func (m *Mailer) SendOTP(ctx context.Context, to, name, otp string, purpose Purpose, validMinutes int) error {
	subject := "Confirm your filebox account"
	if purpose == PurposeReset {
		subject = "Reset your filebox password"
	}
	return m.send(ctx, to, subject, "otp.html", map[string]any{
		"Name":    name,
		"OTP":     otp,
		"Reset":   purpose == PurposeReset,
		"Minutes": validMinutes,
	})
}

func (m *Mailer) SendRegistrationConfirmed(ctx context.Context, to, name string) error {
	return m.send(ctx, to, "Welcome to filebox", "confirmed.html", map[string]any{"Name": name})
}

func (m *Mailer) SendPasswordChanged(ctx context.Context, to, name string) error {
	return m.send(ctx, to, "Your filebox password was changed", "password_changed.html", map[string]any{"Name": name})
}

func (m *Mailer) SendShareNotice(ctx context.Context, to, ownerName, entryName string) error {
	return m.send(ctx, to, ownerName+" shared \""+entryName+"\" with you", "shared.html", map[string]any{
		"Owner": ownerName,
		"Entry": entryName,
	})
}

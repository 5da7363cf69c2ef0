// Package mail sends transactional email over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

// Attachment is a file sent with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is one outgoing email. HTML and Text are alternatives of the same
// body.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Tags        []string
	Attachments []Attachment
}

// SendResult reports the outcome of Send. Transport problems are reported
// here rather than as an error so callers can treat them as non-fatal.
type SendResult struct {
	Success   bool
	MessageID string
	Error     error
}

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// dialer is the part of *gomail.Client the sender needs.
type dialer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPSender delivers messages through one configured SMTP relay. It is
// built once at startup and shared.
type SMTPSender struct {
	client dialer
	from   string
	name   string
	log    *slog.Logger
}

// NewSMTPSender builds a sender from cfg.
func NewSMTPSender(cfg Config, log *slog.Logger) (*SMTPSender, error) {
	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.TLS {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSOpportunistic))
	}
	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &SMTPSender{client: c, from: cfg.From, name: cfg.FromName, log: log}, nil
}

// Build converts m into a go-mail message.
func (s *SMTPSender) Build(m Message) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	var err error
	if s.name != "" {
		err = msg.FromFormat(s.name, s.from)
	} else {
		err = msg.From(s.from)
	}
	if err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetMessageID()
	if len(m.Tags) > 0 {
		msg.SetGenHeader(gomail.Header("X-Tags"), strings.Join(m.Tags, ","))
	}
	switch {
	case m.Text != "" && m.HTML != "":
		msg.SetBodyString(gomail.TypeTextPlain, m.Text)
		msg.AddAlternativeString(gomail.TypeTextHTML, m.HTML)
	case m.HTML != "":
		msg.SetBodyString(gomail.TypeTextHTML, m.HTML)
	default:
		msg.SetBodyString(gomail.TypeTextPlain, m.Text)
	}
	for _, a := range m.Attachments {
		if err := msg.AttachReader(a.Name, bytes.NewReader(a.Data),
			gomail.WithFileContentType(gomail.ContentType(a.ContentType))); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Name, err)
		}
	}
	return msg, nil
}

// Send delivers m.
func (s *SMTPSender) Send(ctx context.Context, m Message) SendResult {
	msg, err := s.Build(m)
	if err != nil {
		s.log.Error("compose email", "to", m.To, "subject", m.Subject, "error", err)
		return SendResult{Error: err}
	}
	id := ""
	if ids := msg.GetGenHeader(gomail.HeaderMessageID); len(ids) > 0 {
		id = ids[0]
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.log.Error("send email", "to", m.To, "subject", m.Subject, "error", err)
		return SendResult{MessageID: id, Error: err}
	}
	s.log.Info("email sent", "to", m.To, "subject", m.Subject, "message_id", id)
	return SendResult{Success: true, MessageID: id}
}

package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	gomail "github.com/wneessen/go-mail"
)

type fakeDialer struct {
	err  error
	sent []*gomail.Msg
}

func (d *fakeDialer) DialAndSendWithContext(_ context.Context, msgs ...*gomail.Msg) error {
	d.sent = append(d.sent, msgs...)
	return d.err
}

func newTestSender(d dialer) *SMTPSender {
	return &SMTPSender{
		client: d,
		from:   "tickets@studio.example",
		name:   "Studio Box Office",
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSendBuildsMultipartMessage(t *testing.T) {
	d := &fakeDialer{}
	s := newTestSender(d)

	res := s.Send(context.Background(), Message{
		To:      "parent@example.com",
		Subject: "Your tickets",
		HTML:    "<p>See you there</p>",
		Text:    "See you there",
		Tags:    []string{"order-confirmation"},
		Attachments: []Attachment{
			{Name: "ticket.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")},
		},
	})
	if !res.Success || res.Error != nil {
		t.Fatalf("Send = %+v", res)
	}
	if res.MessageID == "" {
		t.Fatalf("missing message id")
	}
	if len(d.sent) != 1 {
		t.Fatalf("sent %d messages", len(d.sent))
	}
	var buf bytes.Buffer
	if _, err := d.sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"parent@example.com", "Your tickets", "X-Tags: order-confirmation", "text/html", "ticket.pdf"} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q", want)
		}
	}
}

func TestSendReportsTransportFailure(t *testing.T) {
	s := newTestSender(&fakeDialer{err: errors.New("connection refused")})
	res := s.Send(context.Background(), Message{To: "parent@example.com", Subject: "x", Text: "y"})
	if res.Success || res.Error == nil {
		t.Fatalf("Send = %+v, want failure", res)
	}
}

func TestSendRejectsBadRecipient(t *testing.T) {
	d := &fakeDialer{}
	s := newTestSender(d)
	res := s.Send(context.Background(), Message{To: "not an address", Subject: "x", Text: "y"})
	if res.Success || res.Error == nil {
		t.Fatalf("Send = %+v, want failure", res)
	}
	if len(d.sent) != 0 {
		t.Fatalf("message dialed despite bad recipient")
	}
}

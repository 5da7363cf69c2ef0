package artifact_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/studio-box-office/internal/artifact"
	"github.com/iliyamo/studio-box-office/internal/clock"
	"github.com/iliyamo/studio-box-office/internal/mail"
	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/service"
	"github.com/iliyamo/studio-box-office/internal/service/servicetest"
)

var ctx = context.Background()

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
	fail    error
}

func (m *memStorage) Upload(_ context.Context, bucket, path string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[bucket+"/"+path] = append([]byte(nil), data...)
	m.uploads++
	return "https://cdn.example.com/" + bucket + "/" + path, nil
}

func (m *memStorage) Download(_ context.Context, bucket, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+path]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
	fail error
}

func (o *outbox) Send(_ context.Context, m mail.Message) mail.SendResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return mail.SendResult{Error: o.fail}
	}
	o.sent = append(o.sent, m)
	return mail.SendResult{Success: true, MessageID: "<test@studio>"}
}

type fixture struct {
	store    *servicetest.Store
	payments *servicetest.Payments
	clock    *clock.Fake
	svc      *service.Service
	storage  *memStorage
	mailer   *outbox
	pipe     *artifact.Pipeline
	seats    []uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    servicetest.NewStore(),
		payments: servicetest.NewPayments(),
		clock:    clock.NewFake(time.Date(2026, 5, 30, 17, 0, 0, 0, time.UTC)),
		storage:  &memStorage{},
		mailer:   &outbox{},
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.seats = f.store.AddShow(model.Show{
		ID:        1,
		Title:     "Spring Recital",
		VenueName: "Main Stage",
		StartsAt:  time.Date(2026, 6, 6, 19, 0, 0, 0, time.UTC),
	}, 6, 2500)
	f.svc = service.New(f.store.Ports(), f.payments,
		service.WithClock(f.clock), service.WithLogger(quiet))
	f.pipe = artifact.New(artifact.Deps{
		Orders:  f.store.Orders(),
		Tickets: f.store.Tickets(),
		Shows:   f.store.Shows(),
		Seats:   f.store.Seats(),
		Storage: f.storage,
		Mailer:  f.mailer,
	}, artifact.Config{
		Bucket: "box-office",
		Branding: artifact.Branding{
			StudioName:   "Pointe & Flex Studio",
			StudioURL:    "https://studio.example",
			SupportEmail: "help@studio.example",
		},
	}, artifact.WithClock(f.clock), artifact.WithLogger(quiet))
	return f
}

func (f *fixture) buy(t *testing.T, ref string, seatIDs ...uint64) *service.OrderDetails {
	t.Helper()
	res, err := f.svc.CreateReservation(ctx, service.CreateReservationInput{
		ShowID:       1,
		SeatIDs:      seatIDs,
		ContactEmail: "parent@example.com",
		SessionID:    "anon:aaaa",
	})
	if err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	f.payments.Succeed(ref, res.TotalAmountInCents)
	od, err := f.svc.CreateOrder(ctx, service.CreateOrderInput{
		ReservationToken: res.Token,
		PaymentReference: ref,
		CustomerName:     "Jordan Rivera",
		CustomerEmail:    "jordan@example.com",
		SessionID:        "anon:aaaa",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return od
}

func TestGetOrGenerateTicketPDFCachesWithinTTL(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])
	tk := od.Tickets[0]

	url, err := f.pipe.GetOrGenerateTicketPDF(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetOrGenerateTicketPDF: %v", err)
	}
	want := "https://cdn.example.com/box-office/" + artifact.ObjectPath(od.Order.OrderNumber, tk.TicketCode)
	if url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}

	f.clock.Advance(23 * time.Hour)
	again, err := f.pipe.GetOrGenerateTicketPDF(ctx, tk.ID)
	if err != nil || again != url {
		t.Fatalf("cached call = %q, %v", again, err)
	}
	if f.storage.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", f.storage.uploads)
	}

	f.clock.Advance(2 * time.Hour)
	if _, err := f.pipe.GetOrGenerateTicketPDF(ctx, tk.ID); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if f.storage.uploads != 2 {
		t.Fatalf("uploads after ttl = %d, want 2", f.storage.uploads)
	}
}

func TestGetOrGenerateTicketPDFUnknownTicket(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pipe.GetOrGenerateTicketPDF(ctx, 424242); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetOrGenerateTicketPDFUploadFailure(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])
	f.storage.fail = errors.New("bucket offline")
	if _, err := f.pipe.GetOrGenerateTicketPDF(ctx, od.Tickets[0].ID); !errors.Is(err, service.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestGeneratePDFByCode(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])

	if _, err := f.pipe.GeneratePDFByCode(ctx, "not-a-code"); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("malformed code err = %v", err)
	}
	if _, err := f.pipe.GeneratePDFByCode(ctx, "TKT-ABCDEFGHIJKL-1780160400000"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown code err = %v", err)
	}
	url, err := f.pipe.GeneratePDFByCode(ctx, od.Tickets[0].TicketCode)
	if err != nil || url == "" {
		t.Fatalf("GeneratePDFByCode = %q, %v", url, err)
	}
}

func TestDownloadTicketPDF(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])
	tk := od.Tickets[0]

	data, name, err := f.pipe.DownloadTicketPDF(ctx, tk.ID, tk.TicketCode)
	if err != nil {
		t.Fatalf("DownloadTicketPDF: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
	if name != tk.TicketCode+".pdf" {
		t.Fatalf("name = %q", name)
	}

	// second download is served from storage
	again, _, err := f.pipe.DownloadTicketPDF(ctx, tk.ID, tk.TicketCode)
	if err != nil || !bytes.Equal(again, data) {
		t.Fatalf("second download differs: %v", err)
	}
	if f.storage.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", f.storage.uploads)
	}

	other := "TKT-ABCDEFGHIJKL-1780160400000"
	if _, _, err := f.pipe.DownloadTicketPDF(ctx, tk.ID, other); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("wrong code err = %v, want ErrNotFound", err)
	}
}

func TestDownloadTicketPDFServesEvenWhenStorageFails(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])
	f.storage.fail = errors.New("bucket offline")
	data, _, err := f.pipe.DownloadTicketPDF(ctx, od.Tickets[0].ID, od.Tickets[0].TicketCode)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("DownloadTicketPDF = %d bytes, %v", len(data), err)
	}
}

func TestSendConfirmationEmail(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0], f.seats[1])

	if !f.pipe.SendConfirmationEmail(ctx, od.Order.ID, "") {
		t.Fatalf("SendConfirmationEmail = false")
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("sent %d emails", len(f.mailer.sent))
	}
	m := f.mailer.sent[0]
	if m.To != "jordan@example.com" {
		t.Fatalf("to = %q", m.To)
	}
	for _, want := range []string{od.Order.OrderNumber, "Spring Recital", "Main Stage", "$50.00", od.Tickets[0].TicketCode, od.Tickets[1].TicketCode, "Pointe &amp; Flex Studio"} {
		if !strings.Contains(m.HTML, want) {
			t.Fatalf("html missing %q", want)
		}
	}
	if !strings.Contains(m.Text, "Pointe & Flex Studio") || !strings.Contains(m.Text, "Saturday, June 6, 2026") {
		t.Fatalf("text body:\n%s", m.Text)
	}
	if f.storage.uploads != 2 {
		t.Fatalf("uploads = %d, want one pdf per ticket", f.storage.uploads)
	}

	if !f.pipe.SendConfirmationEmail(ctx, od.Order.ID, "grandma@example.com") {
		t.Fatalf("override send = false")
	}
	if got := f.mailer.sent[1].To; got != "grandma@example.com" {
		t.Fatalf("override to = %q", got)
	}
}

func TestSendConfirmationEmailTransportFailure(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])
	f.mailer.fail = errors.New("smtp down")

	if f.pipe.SendConfirmationEmail(ctx, od.Order.ID, "") {
		t.Fatalf("SendConfirmationEmail = true on transport failure")
	}
	if err := f.pipe.DeliverOrder(ctx, od.Order.ID, ""); !errors.Is(err, service.ErrUpstream) {
		t.Fatalf("DeliverOrder err = %v, want ErrUpstream", err)
	}
}

func TestSendConfirmationEmailSurvivesStorageOutage(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])
	f.storage.fail = errors.New("bucket offline")

	if !f.pipe.SendConfirmationEmail(ctx, od.Order.ID, "") {
		t.Fatalf("email should go out without pdf links")
	}
	if strings.Contains(f.mailer.sent[0].HTML, "Download PDF") {
		t.Fatalf("email links a pdf that was never stored")
	}
}

func TestResendByOrderNumber(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])

	sent, err := f.pipe.ResendByOrderNumber(ctx, od.Order.OrderNumber, "  JORDAN@example.com ")
	if err != nil || !sent {
		t.Fatalf("ResendByOrderNumber = %v, %v", sent, err)
	}
	if _, err := f.pipe.ResendByOrderNumber(ctx, od.Order.OrderNumber, "someone@else.com"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("wrong email err = %v", err)
	}
	if _, err := f.pipe.ResendByOrderNumber(ctx, "ORD-20260530-ZZZZZZ", "jordan@example.com"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown order err = %v", err)
	}
}

func TestRefundedOrderLosesArtifacts(t *testing.T) {
	f := newFixture(t)
	od := f.buy(t, "pi_1", f.seats[0])
	if _, err := f.svc.RefundOrder(ctx, od.Order.ID, od.Order.TotalAmountInCents, "sick"); err != nil {
		t.Fatalf("RefundOrder: %v", err)
	}

	if _, err := f.pipe.ResendByOrderNumber(ctx, od.Order.OrderNumber, "jordan@example.com"); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("resend after refund err = %v", err)
	}
	if _, err := f.pipe.GeneratePDFByCode(ctx, od.Tickets[0].TicketCode); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("pdf after refund err = %v", err)
	}
	if !f.pipe.SendRefundEmail(ctx, od.Order.ID, od.Order.TotalAmountInCents) {
		t.Fatalf("SendRefundEmail = false")
	}
	m := f.mailer.sent[len(f.mailer.sent)-1]
	if !strings.Contains(m.Text, "$25.00") || !strings.Contains(m.Text, "no longer valid") {
		t.Fatalf("refund text:\n%s", m.Text)
	}
}

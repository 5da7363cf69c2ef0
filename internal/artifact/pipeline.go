// Package artifact turns sold tickets into the things a customer keeps: a
// QR code, a printable PDF stored in object storage, and the confirmation
// email. Nothing here runs on the purchase path; the queue worker and the
// ticket endpoints drive it.
package artifact

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/studio-box-office/internal/clock"
	"github.com/iliyamo/studio-box-office/internal/mail"
	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/repository"
	"github.com/iliyamo/studio-box-office/internal/service"
	"github.com/iliyamo/studio-box-office/internal/ticketcode"
)

const (
	defaultPDFCacheTTL = 24 * time.Hour
	pdfContentType     = "application/pdf"
)

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Orders  OrderReader
	Tickets TicketStore
	Shows   ShowReader
	Seats   SeatReader
	Storage ObjectStore
	Mailer  Mailer
}

// Config holds pipeline settings.
type Config struct {
	Bucket      string
	PDFCacheTTL time.Duration
	Branding    Branding
}

type Pipeline struct {
	Deps
	bucket   string
	cacheTTL time.Duration
	brand    Branding
	clock    clock.Clock
	log      *slog.Logger
}

type Option func(*Pipeline)

func WithClock(c clock.Clock) Option { return func(p *Pipeline) { p.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

func New(deps Deps, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		Deps:     deps,
		bucket:   cfg.Bucket,
		cacheTTL: cfg.PDFCacheTTL,
		brand:    cfg.Branding,
		clock:    clock.Real(),
		log:      slog.Default(),
	}
	if p.cacheTTL <= 0 {
		p.cacheTTL = defaultPDFCacheTTL
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ObjectPath is where the PDF for one ticket lives in the bucket.
func ObjectPath(orderNumber, code string) string {
	return "tickets/" + orderNumber + "/" + code + ".pdf"
}

// ticketJob is a ticket with everything needed to print it.
type ticketJob struct {
	ticket model.Ticket
	order  *model.Order
	view   TicketView
}

func (p *Pipeline) fresh(t model.Ticket) bool {
	return t.PDFURL != nil && t.PDFGeneratedAt != nil &&
		p.clock.Now().Sub(*t.PDFGeneratedAt) < p.cacheTTL
}

func (p *Pipeline) loadTicket(ctx context.Context, ticketID uint64) (*model.Ticket, error) {
	t, err := p.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	return t, nil
}

func (p *Pipeline) loadOrder(ctx context.Context, orderID uint64) (*model.Order, *model.Show, error) {
	o, err := p.Orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, service.ErrNotFound
		}
		return nil, nil, fmt.Errorf("load order: %w", err)
	}
	sh, err := p.Shows.GetByID(ctx, o.ShowID)
	if err != nil {
		return nil, nil, fmt.Errorf("load show %d: %w", o.ShowID, err)
	}
	return o, sh, nil
}

func view(t model.Ticket, o *model.Order, sh *model.Show, seat model.ShowSeat) TicketView {
	return TicketView{
		Code:         t.TicketCode,
		ShowTitle:    sh.Title,
		VenueName:    sh.VenueName,
		StartsAt:     sh.StartsAt,
		Section:      seat.Section,
		Row:          seat.RowLabel,
		Number:       seat.SeatNumber,
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		IssuedAt:     t.CreatedAt,
	}
}

// jobsForOrder loads every ticket of an order with its seat.
func (p *Pipeline) jobsForOrder(ctx context.Context, o *model.Order, sh *model.Show, tickets []model.Ticket) ([]ticketJob, error) {
	ids := make([]uint64, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ShowSeatID
	}
	seats, err := p.Seats.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load seats: %w", err)
	}
	byID := make(map[uint64]model.ShowSeat, len(seats))
	for _, ss := range seats {
		byID[ss.ID] = ss
	}
	jobs := make([]ticketJob, 0, len(tickets))
	for _, t := range tickets {
		ss, ok := byID[t.ShowSeatID]
		if !ok {
			return nil, fmt.Errorf("ticket %d: show seat %d missing", t.ID, t.ShowSeatID)
		}
		jobs = append(jobs, ticketJob{ticket: t, order: o, view: view(t, o, sh, ss)})
	}
	return jobs, nil
}

func (p *Pipeline) jobForTicket(ctx context.Context, t *model.Ticket) (*ticketJob, error) {
	o, sh, err := p.loadOrder(ctx, t.OrderID)
	if err != nil {
		return nil, err
	}
	jobs, err := p.jobsForOrder(ctx, o, sh, []model.Ticket{*t})
	if err != nil {
		return nil, err
	}
	return &jobs[0], nil
}

// publish renders the job's PDF, uploads it and records the URL.
func (p *Pipeline) publish(ctx context.Context, job *ticketJob) (string, []byte, error) {
	data, err := RenderTicketPDF(p.brand, job.view)
	if err != nil {
		return "", nil, err
	}
	path := ObjectPath(job.order.OrderNumber, job.ticket.TicketCode)
	url, err := p.Storage.Upload(ctx, p.bucket, path, data, pdfContentType)
	if err != nil {
		return "", data, fmt.Errorf("%w: upload %s: %v", service.ErrUpstream, path, err)
	}
	if err := p.Tickets.SetPDF(ctx, job.ticket.ID, url, p.clock.Now()); err != nil {
		return "", data, fmt.Errorf("record pdf url: %w", err)
	}
	p.log.Info("ticket pdf stored", "ticket_id", job.ticket.ID, "path", path)
	return url, data, nil
}

// GetOrGenerateTicketPDF returns the PDF URL of a ticket, rendering and
// uploading it when there is none or the stored one is older than the cache
// TTL.
func (p *Pipeline) GetOrGenerateTicketPDF(ctx context.Context, ticketID uint64) (string, error) {
	t, err := p.loadTicket(ctx, ticketID)
	if err != nil {
		return "", err
	}
	return p.ensurePDF(ctx, t)
}

func (p *Pipeline) ensurePDF(ctx context.Context, t *model.Ticket) (string, error) {
	if p.fresh(*t) {
		return *t.PDFURL, nil
	}
	job, err := p.jobForTicket(ctx, t)
	if err != nil {
		return "", err
	}
	url, _, err := p.publish(ctx, job)
	return url, err
}

// GeneratePDFByCode is GetOrGenerateTicketPDF for callers that only hold
// the printed code.
func (p *Pipeline) GeneratePDFByCode(ctx context.Context, code string) (string, error) {
	t, err := p.ticketByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if !t.IsValid {
		return "", fmt.Errorf("%w: ticket is no longer valid", service.ErrInvalidState)
	}
	return p.ensurePDF(ctx, t)
}

func (p *Pipeline) ticketByCode(ctx context.Context, code string) (*model.Ticket, error) {
	if !ticketcode.Valid(code) {
		return nil, &service.ValidationError{Field: "ticket_code", Message: "malformed ticket code"}
	}
	t, err := p.Tickets.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, service.ErrNotFound
		}
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	return t, nil
}

// DownloadTicketPDF returns the PDF bytes of a ticket. The caller must know
// the ticket code; a wrong code looks the same as a missing ticket.
func (p *Pipeline) DownloadTicketPDF(ctx context.Context, ticketID uint64, code string) ([]byte, string, error) {
	if !ticketcode.Valid(code) {
		return nil, "", &service.ValidationError{Field: "code", Message: "malformed ticket code"}
	}
	t, err := p.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, "", err
	}
	if subtle.ConstantTimeCompare([]byte(t.TicketCode), []byte(code)) != 1 {
		return nil, "", service.ErrNotFound
	}
	if !t.IsValid {
		return nil, "", fmt.Errorf("%w: ticket is no longer valid", service.ErrInvalidState)
	}
	job, err := p.jobForTicket(ctx, t)
	if err != nil {
		return nil, "", err
	}
	name := t.TicketCode + ".pdf"
	if p.fresh(*t) {
		data, err := p.Storage.Download(ctx, p.bucket, ObjectPath(job.order.OrderNumber, t.TicketCode))
		if err == nil {
			return data, name, nil
		}
		p.log.Warn("stored pdf unavailable, rendering", "ticket_id", t.ID, "error", err)
	}
	_, data, err := p.publish(ctx, job)
	if err != nil {
		if data == nil {
			return nil, "", err
		}
		// The customer still gets the document even if storage is down.
		p.log.Error("store ticket pdf", "ticket_id", t.ID, "error", err)
	}
	return data, name, nil
}

// DeliverOrder makes sure every valid ticket of an order has a PDF and sends
// the confirmation email to recipient, or to the order's customer when
// recipient is empty. A missing PDF is logged and the email goes out
// without that link.
func (p *Pipeline) DeliverOrder(ctx context.Context, orderID uint64, recipient string) error {
	o, sh, err := p.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	all, err := p.Tickets.ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	tickets := all[:0:0]
	for _, t := range all {
		if t.IsValid {
			tickets = append(tickets, t)
		}
	}
	if len(tickets) == 0 {
		return fmt.Errorf("%w: order %s has no valid tickets", service.ErrInvalidState, o.OrderNumber)
	}
	jobs, err := p.jobsForOrder(ctx, o, sh, tickets)
	if err != nil {
		return err
	}

	loc := p.brand.location()
	starts := sh.StartsAt.In(loc)
	data := confirmationData{
		Brand:        p.brand,
		CustomerName: o.CustomerName,
		OrderNumber:  o.OrderNumber,
		ShowTitle:    sh.Title,
		VenueName:    sh.VenueName,
		ShowDate:     starts.Format("Monday, January 2, 2006"),
		ShowTime:     starts.Format("3:04 PM MST"),
		Total:        formatCents(o.TotalAmountInCents),
	}
	for i := range jobs {
		job := &jobs[i]
		url := ""
		if p.fresh(job.ticket) {
			url = *job.ticket.PDFURL
		} else if u, _, err := p.publish(ctx, job); err != nil {
			p.log.Error("ticket pdf", "order_id", o.ID, "ticket_id", job.ticket.ID, "error", err)
		} else {
			url = u
		}
		data.Tickets = append(data.Tickets, emailTicket{
			Code:    job.ticket.TicketCode,
			Section: job.view.Section,
			Row:     job.view.Row,
			Number:  job.view.Number,
			PDFURL:  url,
		})
	}

	html, text, err := render(confirmationHTML, confirmationText, data)
	if err != nil {
		return err
	}
	to := strings.TrimSpace(recipient)
	if to == "" {
		to = o.CustomerEmail
	}
	res := p.Mailer.Send(ctx, mail.Message{
		To:      to,
		Subject: fmt.Sprintf("Your tickets for %s (%s)", sh.Title, o.OrderNumber),
		HTML:    html,
		Text:    text,
		Tags:    []string{"order-confirmation"},
	})
	if !res.Success {
		return fmt.Errorf("%w: send confirmation: %v", service.ErrUpstream, res.Error)
	}
	p.log.Info("confirmation email sent", "order_id", o.ID, "message_id", res.MessageID)
	return nil
}

// SendConfirmationEmail is DeliverOrder for callers that only need to know
// whether the email went out.
func (p *Pipeline) SendConfirmationEmail(ctx context.Context, orderID uint64, recipient string) bool {
	if err := p.DeliverOrder(ctx, orderID, recipient); err != nil {
		p.log.Error("confirmation email", "order_id", orderID, "error", err)
		return false
	}
	return true
}

// ResendByOrderNumber re-sends the confirmation for a customer who can name
// both the order number and the email it was bought with.
func (p *Pipeline) ResendByOrderNumber(ctx context.Context, orderNumber, email string) (bool, error) {
	o, err := p.Orders.GetByNumber(ctx, strings.TrimSpace(orderNumber))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, service.ErrNotFound
		}
		return false, fmt.Errorf("load order: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(email), o.CustomerEmail) {
		return false, service.ErrNotFound
	}
	if o.Status == model.OrderRefunded || o.Status == model.OrderCancelled {
		return false, fmt.Errorf("%w: order is %s", service.ErrInvalidState, o.Status)
	}
	return p.SendConfirmationEmail(ctx, o.ID, ""), nil
}

// SendRefundEmail notifies the customer of a refund.
func (p *Pipeline) SendRefundEmail(ctx context.Context, orderID uint64, amountInCents int64) bool {
	o, sh, err := p.loadOrder(ctx, orderID)
	if err != nil {
		p.log.Error("refund email", "order_id", orderID, "error", err)
		return false
	}
	html, text, err := render(refundHTML, refundText, refundData{
		Brand:        p.brand,
		CustomerName: o.CustomerName,
		OrderNumber:  o.OrderNumber,
		ShowTitle:    sh.Title,
		Amount:       formatCents(amountInCents),
		FullRefund:   o.Status == model.OrderRefunded,
	})
	if err != nil {
		p.log.Error("refund email", "order_id", orderID, "error", err)
		return false
	}
	res := p.Mailer.Send(ctx, mail.Message{
		To:      o.CustomerEmail,
		Subject: fmt.Sprintf("Refund for order %s", o.OrderNumber),
		HTML:    html,
		Text:    text,
		Tags:    []string{"order-refund"},
	})
	if !res.Success {
		p.log.Error("refund email", "order_id", orderID, "error", res.Error)
		return false
	}
	return true
}

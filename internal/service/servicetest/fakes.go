package servicetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/payment"
	"github.com/iliyamo/studio-box-office/internal/service"
)

var (
	_ service.SeatInventory    = (*Seats)(nil)
	_ service.ShowCatalog      = (*Shows)(nil)
	_ service.ReservationStore = (*Reservations)(nil)
	_ service.OrderStore       = (*Orders)(nil)
	_ service.TicketStore      = (*Tickets)(nil)
)

// Ports returns the store's views as a service.Stores.
func (s *Store) Ports() service.Stores {
	return service.Stores{
		Seats:        s.Seats(),
		Shows:        s.Shows(),
		Reservations: s.Reservations(),
		Orders:       s.Orders(),
		Tickets:      s.Tickets(),
	}
}

// Payments is a scripted payment provider. BeforeRetrieve and BeforeRefund,
// when set, run at the start of each provider call outside the lock, which
// lets a test act while a request is waiting on the provider.
type Payments struct {
	mu             sync.Mutex
	intents        map[string]model.PaymentIntent
	BeforeRetrieve func(ref string)
	BeforeRefund   func(ref string, cents int64)
	RetrieveErr    error
	RefundErr      error
	RefundStatus   string
	RefundCalls    int
	Refunded       map[string]int64
}

func NewPayments() *Payments {
	return &Payments{
		intents:      make(map[string]model.PaymentIntent),
		RefundStatus: model.RefundSucceeded,
		Refunded:     make(map[string]int64),
	}
}

// Succeed registers a succeeded charge of cents under ref.
func (p *Payments) Succeed(ref string, cents int64) {
	p.Set(model.PaymentIntent{Reference: ref, Status: model.PaymentSucceeded, AmountInCents: cents, Currency: "usd"})
}

func (p *Payments) Set(pi model.PaymentIntent) {
	p.mu.Lock()
	p.intents[pi.Reference] = pi
	p.mu.Unlock()
}

func (p *Payments) RetrievePayment(_ context.Context, ref string) (*model.PaymentIntent, error) {
	if p.BeforeRetrieve != nil {
		p.BeforeRetrieve(ref)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RetrieveErr != nil {
		return nil, p.RetrieveErr
	}
	pi, ok := p.intents[ref]
	if !ok {
		return nil, fmt.Errorf("%w: no such payment_intent: %s", payment.ErrUnknownPayment, ref)
	}
	return &pi, nil
}

func (p *Payments) CreateRefund(_ context.Context, ref string, cents int64, _ string) (*model.ProviderRefund, error) {
	if p.BeforeRefund != nil {
		p.BeforeRefund(ref, cents)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RefundCalls++
	if p.RefundErr != nil {
		return nil, p.RefundErr
	}
	p.Refunded[ref] += cents
	return &model.ProviderRefund{ID: fmt.Sprintf("re_%d", p.RefundCalls), Status: p.RefundStatus}, nil
}

// Calls returns the number of refund calls made.
func (p *Payments) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.RefundCalls
}

// Dispatcher records artifact jobs.
type Dispatcher struct {
	mu     sync.Mutex
	Orders []uint64
	Err    error
}

func (d *Dispatcher) EnqueueOrderArtifacts(_ context.Context, orderID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Orders = append(d.Orders, orderID)
	return d.Err
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	Events []string
}

func (p *Publisher) Publish(_ context.Context, eventType, _ string, _ any) error {
	p.mu.Lock()
	p.Events = append(p.Events, eventType)
	p.mu.Unlock()
	return nil
}

// Notifier records refund emails.
type Notifier struct {
	mu      sync.Mutex
	Refunds []int64
}

func (n *Notifier) SendRefundEmail(_ context.Context, _ uint64, cents int64) bool {
	n.mu.Lock()
	n.Refunds = append(n.Refunds, cents)
	n.mu.Unlock()
	return true
}

// Package service implements the box office core: seat holds, order
// fulfillment, refunds and ticket admission. It talks to storage and to the
// payment provider only through the interfaces in ports.go.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/studio-box-office/internal/clock"
)

const defaultHoldTTL = 30 * time.Minute

// Service is the reservation manager and order fulfillment engine.
type Service struct {
	seats        SeatInventory
	shows        ShowCatalog
	reservations ReservationStore
	orders       OrderStore
	tickets      TicketStore
	payments     PaymentVerifier

	artifacts ArtifactDispatcher
	events    EventPublisher
	notifier  RefundNotifier

	clock    clock.Clock
	log      *slog.Logger
	holdTTL  time.Duration
	validate *validator.Validate
}

type Option func(*Service)

// WithHoldTTL overrides the default 30 minute hold.
func WithHoldTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func WithArtifactDispatcher(d ArtifactDispatcher) Option {
	return func(s *Service) { s.artifacts = d }
}

func WithEventPublisher(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithRefundNotifier(n RefundNotifier) Option { return func(s *Service) { s.notifier = n } }

// New wires a Service. Dispatcher, publisher and notifier default to no-ops.
func New(st Stores, payments PaymentVerifier, opts ...Option) *Service {
	s := &Service{
		seats:        st.Seats,
		shows:        st.Shows,
		reservations: st.Reservations,
		orders:       st.Orders,
		tickets:      st.Tickets,
		payments:     payments,
		artifacts:    nopDispatcher{},
		events:       nopPublisher{},
		notifier:     nopNotifier{},
		clock:        clock.Real(),
		log:          slog.Default(),
		holdTTL:      defaultHoldTTL,
		validate:     validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HoldTTL reports the configured hold duration.
func (s *Service) HoldTTL() time.Duration { return s.holdTTL }

type nopDispatcher struct{}

func (nopDispatcher) EnqueueOrderArtifacts(context.Context, uint64) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }

type nopNotifier struct{}

func (nopNotifier) SendRefundEmail(context.Context, uint64, int64) bool { return true }

package service_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/iliyamo/studio-box-office/internal/clock"
	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/service"
	"github.com/iliyamo/studio-box-office/internal/service/servicetest"
)

const (
	sessionA = "anon:aaaa"
	sessionB = "anon:bbbb"
)

type fixture struct {
	store    *servicetest.Store
	payments *servicetest.Payments
	dispatch *servicetest.Dispatcher
	events   *servicetest.Publisher
	notifier *servicetest.Notifier
	clock    *clock.Fake
	svc      *service.Service
	showID   uint64
	seats    []uint64
}

func newFixture(t *testing.T, seats int, priceCents int64) *fixture {
	t.Helper()
	f := &fixture{
		store:    servicetest.NewStore(),
		payments: servicetest.NewPayments(),
		dispatch: &servicetest.Dispatcher{},
		events:   &servicetest.Publisher{},
		notifier: &servicetest.Notifier{},
		clock:    clock.NewFake(time.Date(2026, 5, 30, 17, 0, 0, 0, time.UTC)),
	}
	f.showID = 1
	f.seats = f.store.AddShow(model.Show{
		ID:        f.showID,
		Title:     "Spring Recital",
		VenueName: "Main Stage",
		StartsAt:  time.Date(2026, 6, 6, 19, 0, 0, 0, time.UTC),
	}, seats, priceCents)
	f.svc = service.New(f.store.Ports(), f.payments,
		service.WithClock(f.clock),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithArtifactDispatcher(f.dispatch),
		service.WithEventPublisher(f.events),
		service.WithRefundNotifier(f.notifier),
	)
	return f
}

func (f *fixture) reserve(t *testing.T, session string, seatIDs ...uint64) *service.Reservation {
	t.Helper()
	res, err := f.svc.CreateReservation(ctx, service.CreateReservationInput{
		ShowID:       f.showID,
		SeatIDs:      seatIDs,
		ContactEmail: "parent@example.com",
		SessionID:    session,
	})
	if err != nil {
		t.Fatalf("CreateReservation(%v): %v", seatIDs, err)
	}
	return res
}

func (f *fixture) orderInput(token, session, paymentRef string) service.CreateOrderInput {
	return service.CreateOrderInput{
		ReservationToken: token,
		PaymentReference: paymentRef,
		CustomerName:     "Jordan Rivera",
		CustomerEmail:    "jordan@example.com",
		SessionID:        session,
	}
}

func (f *fixture) buy(t *testing.T, session, paymentRef string, seatIDs ...uint64) *service.OrderDetails {
	t.Helper()
	res := f.reserve(t, session, seatIDs...)
	f.payments.Succeed(paymentRef, res.TotalAmountInCents)
	od, err := f.svc.CreateOrder(ctx, f.orderInput(res.Token, session, paymentRef))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return od
}

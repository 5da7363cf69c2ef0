package service

import (
	"context"
	"time"

	"github.com/iliyamo/studio-box-office/internal/model"
)

// SeatInventory is the show_seats table. Every mutating method returns the
// number of rows that actually changed state.
type SeatInventory interface {
	ListByShow(ctx context.Context, showID uint64) ([]model.ShowSeat, error)
	GetByIDs(ctx context.Context, ids []uint64) ([]model.ShowSeat, error)
	Reserve(ctx context.Context, showID uint64, ids []uint64, reservationID uint64, until, now time.Time) (int64, error)
	ReleaseReserved(ctx context.Context, ids []uint64, reservationID uint64) (int64, error)
	ReleaseByReservation(ctx context.Context, reservationID uint64) (int64, error)
	MarkSold(ctx context.Context, ids []uint64, reservationID uint64, now time.Time) (int64, error)
	RestoreHold(ctx context.Context, ids []uint64, reservationID uint64, until time.Time) (int64, error)
	ReleaseSold(ctx context.Context, ids []uint64) (int64, error)
	ReleaseExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type ShowCatalog interface {
	GetByID(ctx context.Context, id uint64) (*model.Show, error)
}

type ReservationStore interface {
	Create(ctx context.Context, res *model.Reservation) error
	Delete(ctx context.Context, id uint64) error
	GetByToken(ctx context.Context, token string) (*model.Reservation, error)
	AddSeats(ctx context.Context, seats []model.ReservationSeat) error
	DeleteSeats(ctx context.Context, reservationID uint64) error
	SeatIDs(ctx context.Context, reservationID uint64) ([]uint64, error)
	Deactivate(ctx context.Context, id uint64) (bool, error)
	Claim(ctx context.Context, id uint64, now time.Time) (bool, error)
	Reactivate(ctx context.Context, id uint64) error
	ListActiveForSession(ctx context.Context, sessionID string, showID uint64, now time.Time) ([]model.Reservation, error)
	DeactivateExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *model.Order) error
	Delete(ctx context.Context, id uint64) error
	GetByID(ctx context.Context, id uint64) (*model.Order, error)
	GetByNumber(ctx context.Context, number string) (*model.Order, error)
	UpdateStatus(ctx context.Context, id uint64, from, to string) (bool, error)
	CreateRefund(ctx context.Context, rf *model.Refund) error
	RefundedTotal(ctx context.Context, orderID uint64) (int64, error)
}

type TicketStore interface {
	CreateBulk(ctx context.Context, tickets []model.Ticket) error
	ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error)
	GetByCode(ctx context.Context, code string) (*model.Ticket, error)
	InvalidateByOrder(ctx context.Context, orderID uint64) (int64, error)
	MarkScanned(ctx context.Context, id uint64, by string, at time.Time) (bool, error)
}

// PaymentVerifier is the payment provider.
type PaymentVerifier interface {
	RetrievePayment(ctx context.Context, reference string) (*model.PaymentIntent, error)
	CreateRefund(ctx context.Context, reference string, amountInCents int64, reason string) (*model.ProviderRefund, error)
}

// ArtifactDispatcher schedules PDF rendering and the confirmation email for
// an order. It must not block on the work itself.
type ArtifactDispatcher interface {
	EnqueueOrderArtifacts(ctx context.Context, orderID uint64) error
}

// EventPublisher emits order lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// RefundNotifier tells the customer about a refund.
type RefundNotifier interface {
	SendRefundEmail(ctx context.Context, orderID uint64, amountInCents int64) bool
}

// Stores groups the persistence ports.
type Stores struct {
	Seats        SeatInventory
	Shows        ShowCatalog
	Reservations ReservationStore
	Orders       OrderStore
	Tickets      TicketStore
}

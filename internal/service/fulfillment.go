package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/studio-box-office/internal/events"
	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/payment"
	"github.com/iliyamo/studio-box-office/internal/repository"
	"github.com/iliyamo/studio-box-office/internal/ticketcode"
)

// CreateOrderInput turns a paid reservation into an order.
type CreateOrderInput struct {
	ReservationToken string
	PaymentReference string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    *string
	Notes            *string
	SessionID        string
}

// OrderDetails is an order together with its tickets.
type OrderDetails struct {
	Order           model.Order
	Tickets         []model.Ticket
	RefundedInCents int64
}

func newOrderNumber(s *Service) (string, error) {
	suffix, err := ticketcode.Random(6)
	if err != nil {
		return "", err
	}
	return "ORD-" + s.clock.Now().Format("20060102") + "-" + suffix, nil
}

// CreateOrder runs every gate before any write:
//
//	1 the caller owns the reservation
//	2 the reservation has seats
//	3 the session matches (checked again)
//	4 the hold has not expired
//	5 the hold is still active
//	6 the provider reports the payment succeeded
//	7 the paid amount equals the live seat total
//
// The provider call can outlast the hold, so the clock is read again
// before anything is written. It then claims the reservation, marks the
// seats sold while the hold is still live, writes the order and tickets
// and queues the ticket artifacts. A failed write undoes the writes before
// it.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*OrderDetails, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	in.PaymentReference = strings.TrimSpace(in.PaymentReference)
	switch {
	case in.ReservationToken == "":
		return nil, invalid("reservation_token", "reservation token is required")
	case in.PaymentReference == "":
		return nil, invalid("payment_intent_id", "payment reference is required")
	case in.CustomerName == "":
		return nil, invalid("customer_name", "customer name is required")
	}
	if err := s.validate.Var(in.CustomerEmail, "required,email"); err != nil {
		return nil, invalid("email", "a valid email is required")
	}

	res, err := s.ValidateOwnership(ctx, in.ReservationToken, in.SessionID)
	if err != nil {
		return nil, err
	}
	seatIDs, err := s.reservations.SeatIDs(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("load reservation seats: %w", err)
	}
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("reservation has no seats: %w", ErrNotFound)
	}
	if res.SessionID != in.SessionID {
		return nil, ErrForbidden
	}
	now := s.clock.Now()
	if res.Expired(now) {
		return nil, ErrExpired
	}
	if !res.IsActive {
		return nil, ErrInvalidState
	}

	intent, err := s.payments.RetrievePayment(ctx, in.PaymentReference)
	if err != nil {
		if errors.Is(err, payment.ErrUnknownPayment) {
			return nil, invalid("payment_intent_id", "unknown payment reference")
		}
		return nil, fmt.Errorf("%w: retrieve payment: %w", ErrUpstream, err)
	}
	if intent.Status != model.PaymentSucceeded {
		return nil, fmt.Errorf("%w: status %q", ErrPaymentNotSucceeded, intent.Status)
	}
	seats, err := s.seats.GetByIDs(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("load seats: %w", err)
	}
	if len(seats) != len(seatIDs) {
		return nil, fmt.Errorf("%w: reservation references missing seats", ErrInternalInconsistency)
	}
	total := sumPrices(seats)
	if intent.AmountInCents != total {
		return nil, fmt.Errorf("%w: paid %d, expected %d", ErrAmountMismatch, intent.AmountInCents, total)
	}

	now = s.clock.Now()
	if !res.ExpiresAt.After(now) {
		return nil, ErrExpired
	}
	claimed, err := s.reservations.Claim(ctx, res.ID, now)
	if err != nil {
		return nil, fmt.Errorf("claim reservation: %w", err)
	}
	if !claimed {
		return nil, ErrInvalidState
	}
	sold, err := s.seats.MarkSold(ctx, seatIDs, res.ID, now)
	if err != nil {
		s.reactivate(ctx, res.ID)
		return nil, fmt.Errorf("%w: mark seats sold: %v", ErrOrderCreateFailed, err)
	}
	if sold != int64(len(seatIDs)) {
		s.log.Warn("hold lapsed during payment check", "reservation_id", res.ID, "payment_reference", in.PaymentReference)
		return nil, ErrExpired
	}

	number, err := newOrderNumber(s)
	if err != nil {
		s.restoreHold(ctx, res, seatIDs)
		return nil, fmt.Errorf("%w: order number: %v", ErrOrderCreateFailed, err)
	}
	order := &model.Order{
		OrderNumber:        number,
		ShowID:             res.ShowID,
		ReservationID:      res.ID,
		CustomerName:       in.CustomerName,
		CustomerEmail:      in.CustomerEmail,
		CustomerPhone:      in.CustomerPhone,
		Notes:              in.Notes,
		PaymentReference:   in.PaymentReference,
		Status:             model.OrderPaid,
		TotalAmountInCents: total,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.restoreHold(ctx, res, seatIDs)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: payment already used for another order", ErrConflict)
		}
		return nil, fmt.Errorf("%w: %v", ErrOrderCreateFailed, err)
	}

	tickets := make([]model.Ticket, 0, len(seats))
	for _, ss := range seats {
		code, err := ticketcode.New(now)
		if err != nil {
			s.undoOrder(ctx, order.ID, res, seatIDs)
			return nil, fmt.Errorf("%w: ticket code: %v", ErrInternalInconsistency, err)
		}
		tickets = append(tickets, model.Ticket{OrderID: order.ID, ShowSeatID: ss.ID, TicketCode: code, CreatedAt: now})
	}
	if err := s.tickets.CreateBulk(ctx, tickets); err != nil {
		s.undoOrder(ctx, order.ID, res, seatIDs)
		return nil, fmt.Errorf("%w: insert tickets: %v", ErrInternalInconsistency, err)
	}

	// From here the sale stands; the remaining steps are logged on failure.
	if err := s.artifacts.EnqueueOrderArtifacts(ctx, order.ID); err != nil {
		s.log.Warn("enqueue ticket artifacts", "order_id", order.ID, "error", err)
	}
	payload := events.OrderConfirmedPayload{
		OrderID:            order.ID,
		OrderNumber:        order.OrderNumber,
		ShowID:             order.ShowID,
		ShowSeatIDs:        seatIDs,
		TotalAmountInCents: order.TotalAmountInCents,
		PaymentReference:   order.PaymentReference,
	}
	if err := s.events.Publish(ctx, events.EventOrderConfirmed, strconv.FormatUint(order.ID, 10), payload); err != nil {
		s.log.Warn("publish order confirmed", "order_id", order.ID, "error", err)
	}

	s.log.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber,
		"reservation_id", res.ID, "total_cents", total, "tickets", len(tickets))
	return &OrderDetails{Order: *order, Tickets: tickets}, nil
}

func (s *Service) reactivate(ctx context.Context, reservationID uint64) {
	if err := s.reservations.Reactivate(ctx, reservationID); err != nil {
		s.log.Error("reactivate reservation", "reservation_id", reservationID, "error", err)
	}
}

// restoreHold puts sold seats back under the reservation and reopens it,
// so the buyer can retry until the hold runs out.
func (s *Service) restoreHold(ctx context.Context, res *model.Reservation, seatIDs []uint64) {
	if n, err := s.seats.RestoreHold(ctx, seatIDs, res.ID, res.ExpiresAt); err != nil || n != int64(len(seatIDs)) {
		s.log.Error("restore hold after failed order", "reservation_id", res.ID, "expected", len(seatIDs), "restored", n, "error", err)
	}
	s.reactivate(ctx, res.ID)
}

func (s *Service) undoOrder(ctx context.Context, orderID uint64, res *model.Reservation, seatIDs []uint64) {
	if err := s.orders.Delete(ctx, orderID); err != nil {
		s.log.Error("delete order after ticket failure", "order_id", orderID, "error", err)
	}
	s.restoreHold(ctx, res, seatIDs)
}

// GetOrder returns an order with its tickets and refunded amount.
func (s *Service) GetOrder(ctx context.Context, orderID uint64) (*OrderDetails, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	tickets, err := s.tickets.ListByOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("load tickets: %w", err)
	}
	refunded, err := s.orders.RefundedTotal(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("load refunds: %w", err)
	}
	return &OrderDetails{Order: *o, Tickets: tickets, RefundedInCents: refunded}, nil
}

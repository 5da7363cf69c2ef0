package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/iliyamo/studio-box-office/internal/events"
	"github.com/iliyamo/studio-box-office/internal/model"
	"github.com/iliyamo/studio-box-office/internal/repository"
)

// RefundOrder refunds amountInCents of a paid order. The order is moved
// from paid to refunding before anything else, so a second refund on the
// same order gets ErrConflict instead of racing the first one. Every bound
// is checked before the provider is called. Once the recorded refunds reach
// the order total the order becomes refunded, its tickets are invalidated
// and its seats go back on sale; otherwise it returns to paid. Partial
// refunds leave seats and tickets alone.
func (s *Service) RefundOrder(ctx context.Context, orderID uint64, amountInCents int64, reason string) (*OrderDetails, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load order: %w", err)
	}
	if err := refundable(o); err != nil {
		return nil, err
	}
	if amountInCents <= 0 {
		return nil, invalid("amount_in_cents", "refund amount must be positive")
	}

	won, err := s.orders.UpdateStatus(ctx, o.ID, model.OrderPaid, model.OrderRefunding)
	if err != nil {
		return nil, fmt.Errorf("lock order for refund: %w", err)
	}
	if !won {
		if cur, err := s.orders.GetByID(ctx, o.ID); err == nil {
			if err := refundable(cur); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: order changed during refund", ErrConflict)
	}

	prior, err := s.orders.RefundedTotal(ctx, o.ID)
	if err != nil {
		s.settleRefund(ctx, o.ID, model.OrderPaid)
		return nil, fmt.Errorf("load refunds: %w", err)
	}
	remaining := o.TotalAmountInCents - prior
	if amountInCents > remaining {
		s.settleRefund(ctx, o.ID, model.OrderPaid)
		return nil, invalid("amount_in_cents", fmt.Sprintf("refund exceeds remaining %d cents", remaining))
	}

	pr, err := s.payments.CreateRefund(ctx, o.PaymentReference, amountInCents, reason)
	if err != nil {
		s.settleRefund(ctx, o.ID, model.OrderPaid)
		return nil, fmt.Errorf("%w: refund: %w", ErrUpstream, err)
	}
	if pr.Status != model.RefundSucceeded && pr.Status != model.RefundPending {
		s.settleRefund(ctx, o.ID, model.OrderPaid)
		return nil, fmt.Errorf("%w: refund status %q", ErrUpstream, pr.Status)
	}

	rf := &model.Refund{
		OrderID:          o.ID,
		ProviderRefundID: pr.ID,
		AmountInCents:    amountInCents,
		Reason:           reason,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.orders.CreateRefund(ctx, rf); err != nil {
		// The order stays refunding until someone records the refund by hand.
		s.log.Error("refund issued but not recorded", "order_id", o.ID, "provider_refund_id", pr.ID,
			"amount_cents", amountInCents, "error", err)
		return nil, fmt.Errorf("%w: record refund: %v", ErrInternalInconsistency, err)
	}

	refunded, err := s.orders.RefundedTotal(ctx, o.ID)
	if err != nil {
		s.log.Warn("reload refunded total", "order_id", o.ID, "error", err)
		refunded = prior + amountInCents
	}
	full := refunded >= o.TotalAmountInCents
	if full {
		s.settleRefund(ctx, o.ID, model.OrderRefunded)
		s.releaseRefundedSeats(ctx, o.ID)
	} else {
		s.settleRefund(ctx, o.ID, model.OrderPaid)
	}

	if !s.notifier.SendRefundEmail(ctx, o.ID, amountInCents) {
		s.log.Warn("refund email not sent", "order_id", o.ID)
	}
	payload := events.OrderRefundedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		AmountInCents: amountInCents,
		FullRefund:    full,
		Reason:        reason,
	}
	if err := s.events.Publish(ctx, events.EventOrderRefunded, strconv.FormatUint(o.ID, 10), payload); err != nil {
		s.log.Warn("publish order refunded", "order_id", o.ID, "error", err)
	}
	s.log.Info("order refunded", "order_id", o.ID, "amount_cents", amountInCents, "full", full)
	return s.GetOrder(ctx, o.ID)
}

func refundable(o *model.Order) error {
	switch {
	case o.Status == model.OrderRefunded:
		return fmt.Errorf("%w: order already refunded", ErrConflict)
	case o.Status == model.OrderRefunding:
		return fmt.Errorf("%w: another refund is in progress", ErrConflict)
	case o.Status != model.OrderPaid:
		return fmt.Errorf("%w: order is %s", ErrInvalidState, o.Status)
	case o.PaymentReference == "":
		return fmt.Errorf("%w: order has no payment reference", ErrInvalidState)
	}
	return nil
}

// settleRefund moves an order out of refunding.
func (s *Service) settleRefund(ctx context.Context, orderID uint64, to string) {
	if ok, err := s.orders.UpdateStatus(ctx, orderID, model.OrderRefunding, to); err != nil || !ok {
		s.log.Error("settle refund status", "order_id", orderID, "to", to, "updated", ok, "error", err)
	}
}

// releaseRefundedSeats invalidates the order's tickets and puts their seats
// back on sale. Failures are logged; the refund itself already happened.
func (s *Service) releaseRefundedSeats(ctx context.Context, orderID uint64) {
	if _, err := s.tickets.InvalidateByOrder(ctx, orderID); err != nil {
		s.log.Error("invalidate refunded tickets", "order_id", orderID, "error", err)
	}
	tickets, err := s.tickets.ListByOrder(ctx, orderID)
	if err != nil {
		s.log.Error("load refunded tickets", "order_id", orderID, "error", err)
		return
	}
	ids := make([]uint64, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ShowSeatID)
	}
	if n, err := s.seats.ReleaseSold(ctx, ids); err != nil || n != int64(len(ids)) {
		s.log.Error("release refunded seats", "order_id", orderID, "expected", len(ids), "released", n, "error", err)
	}
}

// Package payment adapts the Stripe API to the payment verifier port.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/iliyamo/studio-box-office/internal/model"
)

// ErrUnknownPayment is returned when the provider has no record of the
// reference.
var ErrUnknownPayment = errors.New("unknown payment reference")

type intentGetter interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type refundCreator interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// Stripe verifies charges and issues refunds with a dedicated API client;
// it never touches the package level stripe.Key.
type Stripe struct {
	intents intentGetter
	refunds refundCreator
}

func NewStripe(secretKey string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Stripe{intents: sc.PaymentIntents, refunds: sc.Refunds}
}

// RetrievePayment looks up a PaymentIntent by id.
func (s *Stripe) RetrievePayment(ctx context.Context, reference string) (*model.PaymentIntent, error) {
	if !strings.HasPrefix(reference, "pi_") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayment, reference)
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(reference, params)
	if err != nil {
		return nil, wrap("retrieve payment intent", err)
	}
	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	return &model.PaymentIntent{
		Reference:     pi.ID,
		Status:        string(pi.Status),
		AmountInCents: amount,
		Currency:      string(pi.Currency),
	}, nil
}

// CreateRefund refunds amountInCents of the charge behind reference. The
// free-text reason travels as metadata; Stripe's own reason field only takes
// a fixed set of values.
func (s *Stripe) CreateRefund(ctx context.Context, reference string, amountInCents int64, reason string) (*model.ProviderRefund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Amount:        stripe.Int64(amountInCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}
	rf, err := s.refunds.New(params)
	if err != nil {
		return nil, wrap("create refund", err)
	}
	return &model.ProviderRefund{ID: rf.ID, Status: string(rf.Status)}, nil
}

func wrap(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%s: %w: %s", op, ErrUnknownPayment, se.Msg)
	}
	return fmt.Errorf("%s: %w", op, err)
}

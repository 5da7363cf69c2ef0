// Package events publishes order lifecycle events to Kafka so reporting and
// the studio back office can follow sales without polling the database.
package events

import (
	"encoding/json"
	"time"
)

const (
	TopicOrders = "box-office.orders"

	EventOrderConfirmed = "OrderConfirmed"
	EventOrderRefunded  = "OrderRefunded"
)

// Envelope wraps every payload on the wire.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderConfirmedPayload struct {
	OrderID            uint64   `json:"order_id"`
	OrderNumber        string   `json:"order_number"`
	ShowID             uint64   `json:"show_id"`
	ShowSeatIDs        []uint64 `json:"show_seat_ids"`
	TotalAmountInCents int64    `json:"total_amount_in_cents"`
	PaymentReference   string   `json:"payment_reference"`
}

type OrderRefundedPayload struct {
	OrderID       uint64 `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	AmountInCents int64  `json:"amount_in_cents"`
	FullRefund    bool   `json:"full_refund"`
	Reason        string `json:"reason,omitempty"`
}

// UnwrapPayload decodes the payload of an envelope into T.
func UnwrapPayload[T any](env Envelope) (T, error) {
	var t T
	err := json.Unmarshal(env.Payload, &t)
	return t, err
}

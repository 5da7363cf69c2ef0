package model

import "time"

// Order statuses.
const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderConfirmed = "confirmed"
	OrderRefunding = "refunding" // a refund is with the provider; other refunds wait
	OrderRefunded  = "refunded"
	OrderCancelled = "cancelled"
)

// Order is a completed purchase of the seats of one reservation. Monetary
// fields are fixed at creation; refunds are recorded separately.
type Order struct {
	ID                 uint64    // orders.id
	OrderNumber        string    // orders.order_number (ORD-YYYYMMDD-XXXXXX)
	ShowID             uint64    // orders.show_id
	ReservationID      uint64    // orders.reservation_id
	CustomerName       string    // orders.customer_name
	CustomerEmail      string    // orders.customer_email
	CustomerPhone      *string   // orders.customer_phone (nullable)
	Notes              *string   // orders.notes (nullable)
	PaymentReference   string    // orders.payment_reference (unique)
	Status             string    // orders.status
	TotalAmountInCents int64     // orders.total_amount_in_cents
	CreatedAt          time.Time // orders.created_at
	UpdatedAt          time.Time // orders.updated_at
}

// Refund records one provider refund against an order. Partial refunds
// accumulate until they reach the order total.
type Refund struct {
	ID               uint64    // refunds.id
	OrderID          uint64    // refunds.order_id
	ProviderRefundID string    // refunds.provider_refund_id
	AmountInCents    int64     // refunds.amount_in_cents
	Reason           string    // refunds.reason
	CreatedAt        time.Time // refunds.created_at
}

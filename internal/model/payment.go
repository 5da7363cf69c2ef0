package model

// Payment provider statuses the fulfillment engine cares about.
const (
	PaymentSucceeded = "succeeded"
	RefundSucceeded  = "succeeded"
	RefundPending    = "pending"
)

// PaymentIntent is the provider's view of a charge.
type PaymentIntent struct {
	Reference     string
	Status        string
	AmountInCents int64
	Currency      string
}

// ProviderRefund is the provider's answer to a refund request.
type ProviderRefund struct {
	ID     string
	Status string
}

// Package queue moves ticket artifact work (PDF rendering and the
// confirmation email) off the purchase path through RabbitMQ.
package queue

import (
	"fmt"
	"time"
)

// ArtifactQueue is the durable queue the worker consumes.
const ArtifactQueue = "ticket.artifacts"

// Failed jobs wait in a per-attempt delay queue before they are
// dead-lettered back onto ArtifactQueue.
const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = 15 * time.Minute
)

// ArtifactJob asks the worker to render the tickets of one order and email
// them. Attempt starts at 1 and grows with every retry of the same JobID.
type ArtifactJob struct {
	JobID             string    `json:"job_id"`
	OrderID           uint64    `json:"order_id"`
	Attempt           int       `json:"attempt"`
	RecipientOverride string    `json:"recipient_override,omitempty"`
	EnqueuedAt        time.Time `json:"enqueued_at"`
}

// RetryDelay is how long attempt waits before it is delivered: 30s for the
// second attempt, doubling up to 15m.
func RetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := retryBaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

func retryQueue(attempt int) string {
	return fmt.Sprintf("%s.retry.%d", ArtifactQueue, attempt)
}

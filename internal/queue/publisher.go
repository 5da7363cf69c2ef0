package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// outgoing is one message waiting in the outbox. args are the declare
// arguments of its queue.
type outgoing struct {
	queue string
	args  amqp.Table
	msg   amqp.Publishing
}

// publishFunc delivers one message to a queue.
type publishFunc func(ctx context.Context, out outgoing) error

// ErrOutboxFull is returned when jobs arrive faster than the broker takes
// them.
var ErrOutboxFull = errors.New("artifact outbox full")

// Publisher enqueues artifact jobs. Enqueue only hands the job to an
// in-process outbox; a single goroutine started by Start owns the broker
// connection, so a slow broker never holds up a purchase.
type Publisher struct {
	queue   string
	publish publishFunc
	inbox   chan outgoing
	closeCh chan struct{}
	now     func() time.Time
	log     *slog.Logger
}

// NewPublisher builds a publisher for the broker at url with room for buf
// pending jobs.
func NewPublisher(url string, buf int, log *slog.Logger) *Publisher {
	sink := &amqpSink{url: url}
	return newPublisher(ArtifactQueue, sink.publish, buf, log)
}

func newPublisher(queue string, fn publishFunc, buf int, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	if buf <= 0 {
		buf = 256
	}
	return &Publisher{
		queue:   queue,
		publish: fn,
		inbox:   make(chan outgoing, buf),
		closeCh: make(chan struct{}),
		now:     func() time.Time { return time.Now().UTC() },
		log:     log,
	}
}

// Start runs the publish loop until ctx is cancelled, then flushes what is
// left in the outbox.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case out := <-p.inbox:
						p.send(out)
					default:
						return
					}
				}
			case out := <-p.inbox:
				p.send(out)
			}
		}
	}()
}

// WaitClosed blocks until the publish loop has flushed and exited.
func (p *Publisher) WaitClosed() { <-p.closeCh }

func (p *Publisher) send(out outgoing) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.publish(ctx, out); err != nil {
		p.log.Error("artifact job not published", "queue", out.queue, "job_id", out.msg.MessageId, "error", err)
	}
}

// EnqueueOrderArtifacts schedules PDFs and the confirmation email for an
// order.
func (p *Publisher) EnqueueOrderArtifacts(ctx context.Context, orderID uint64) error {
	return p.Enqueue(ctx, ArtifactJob{OrderID: orderID})
}

// EnqueueResend schedules a confirmation email to a different recipient.
func (p *Publisher) EnqueueResend(ctx context.Context, orderID uint64, recipient string) error {
	return p.Enqueue(ctx, ArtifactJob{OrderID: orderID, RecipientOverride: recipient})
}

// Enqueue queues job for immediate delivery, filling in JobID, Attempt and
// EnqueuedAt when they are unset.
func (p *Publisher) Enqueue(ctx context.Context, job ArtifactJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	return p.push(ctx, p.queue, nil, job)
}

// Retry parks job in the delay queue of its attempt. The broker moves it
// back onto the artifact queue once RetryDelay(job.Attempt) has passed.
func (p *Publisher) Retry(ctx context.Context, job ArtifactJob) error {
	if job.Attempt < 2 {
		job.Attempt = 2
	}
	args := amqp.Table{
		"x-message-ttl":             RetryDelay(job.Attempt).Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": p.queue,
	}
	return p.push(ctx, retryQueue(job.Attempt), args, job)
}

func (p *Publisher) push(ctx context.Context, queue string, args amqp.Table, job ArtifactJob) error {
	job.EnqueuedAt = p.now()
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	out := outgoing{
		queue: queue,
		args:  args,
		msg: amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.JobID,
			Timestamp:    job.EnqueuedAt,
			Headers:      amqp.Table{"x-attempt": int32(job.Attempt)},
			Body:         body,
		},
	}
	select {
	case p.inbox <- out:
		p.log.Debug("artifact job queued", "queue", queue, "order_id", job.OrderID, "job_id", job.JobID, "attempt", job.Attempt)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.log.Error("artifact outbox full, dropping job", "order_id", job.OrderID, "job_id", job.JobID)
		return ErrOutboxFull
	}
}

// amqpSink keeps one connection and channel open for the publish loop and
// redials after a failure. It is only used from that goroutine.
type amqpSink struct {
	url      string
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func (s *amqpSink) publish(ctx context.Context, out outgoing) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = s.open(); err != nil {
			continue
		}
		if !s.declared[out.queue] {
			if err = declare(s.ch, out.queue, out.args); err != nil {
				s.reset()
				continue
			}
			s.declared[out.queue] = true
		}
		if err = s.ch.PublishWithContext(ctx, "", out.queue, false, false, out.msg); err == nil {
			return nil
		}
		err = fmt.Errorf("rabbitmq publish: %w", err)
		s.reset()
	}
	return err
}

func (s *amqpSink) open() error {
	if s.ch != nil && !s.ch.IsClosed() {
		return nil
	}
	s.reset()
	conn, err := amqp.DialConfig(s.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	s.conn, s.ch, s.declared = conn, ch, map[string]bool{}
	return nil
}

func (s *amqpSink) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn, s.ch = nil, nil
}

func declare(ch *amqp.Channel, queue string, args amqp.Table) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("queue declare %s: %w", queue, err)
	}
	return nil
}

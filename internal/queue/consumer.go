package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/studio-box-office/internal/service"
)

const (
	defaultMaxAttempts = 5
	dedupTTL           = 24 * time.Hour
)

// OrderDeliverer renders and emails the tickets of an order.
type OrderDeliverer interface {
	DeliverOrder(ctx context.Context, orderID uint64, recipient string) error
}

// Deduper remembers which deliveries were already taken. Claim reports
// false when key was claimed before.
type Deduper interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisDeduper claims keys with SET NX.
type RedisDeduper struct{ rdb *redis.Client }

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper { return &RedisDeduper{rdb: rdb} }

func (d *RedisDeduper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.rdb.SetNX(ctx, key, "1", ttl).Result()
}

type retrier interface {
	Retry(ctx context.Context, job ArtifactJob) error
}

// Worker consumes artifact jobs. A failed job is parked in a delay queue
// with the next attempt number until MaxAttempts; the resend endpoint is
// the manual path after that.
type Worker struct {
	url         string
	queue       string
	deliver     OrderDeliverer
	dedup       Deduper
	retry       retrier
	maxAttempts int
	log         *slog.Logger
}

// WorkerConfig configures a Worker. Dedup may be nil, which turns
// duplicate suppression off.
type WorkerConfig struct {
	URL         string
	MaxAttempts int
	Deliverer   OrderDeliverer
	Dedup       Deduper
	Retry       *Publisher
	Logger      *slog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	w := &Worker{
		url:         cfg.URL,
		queue:       ArtifactQueue,
		deliver:     cfg.Deliverer,
		dedup:       cfg.Dedup,
		maxAttempts: cfg.MaxAttempts,
		log:         cfg.Logger,
	}
	if cfg.Retry != nil {
		w.retry = cfg.Retry
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.log == nil {
		w.log = slog.Default()
	}
	return w
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with backoff when the connection drops.
func (w *Worker) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(w.url)
		if err != nil {
			w.log.Warn("artifact worker: dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = w.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("artifact worker: consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *Worker) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		w.log.Warn("artifact worker: set qos", "error", err)
	}
	if err := declare(ch, w.queue, nil); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, w.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	w.log.Info("artifact worker consuming", "queue", w.queue)

	for d := range msgs {
		w.Handle(ctx, d.Body)
		// Every outcome is final for this delivery: success, a retry
		// parked under a new attempt, or a drop.
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Outcome is what Handle did with one message.
type Outcome string

const (
	Delivered Outcome = "delivered"
	Duplicate Outcome = "duplicate"
	Retried   Outcome = "retried"
	Dropped   Outcome = "dropped"
)

// Handle processes one message body.
func (w *Worker) Handle(ctx context.Context, body []byte) Outcome {
	var job ArtifactJob
	if err := json.Unmarshal(body, &job); err != nil || job.OrderID == 0 {
		w.log.Error("artifact worker: malformed job", "error", err, "body", string(body))
		return Dropped
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	log := w.log.With("job_id", job.JobID, "order_id", job.OrderID, "attempt", job.Attempt)

	if w.dedup != nil && job.JobID != "" {
		key := "dedup:artifacts:" + job.JobID + ":" + strconv.Itoa(job.Attempt)
		fresh, err := w.dedup.Claim(ctx, key, dedupTTL)
		switch {
		case err != nil:
			log.Warn("artifact worker: dedup unavailable", "error", err)
		case !fresh:
			log.Info("artifact worker: duplicate delivery skipped")
			return Duplicate
		}
	}

	err := w.deliver.DeliverOrder(ctx, job.OrderID, job.RecipientOverride)
	if err == nil {
		log.Info("artifact job done")
		return Delivered
	}
	if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidState) {
		log.Error("artifact job cannot succeed, dropping", "error", err)
		return Dropped
	}
	if job.Attempt >= w.maxAttempts || w.retry == nil {
		log.Error("artifact job failed, giving up", "error", err, "max_attempts", w.maxAttempts)
		return Dropped
	}
	next := job
	next.Attempt++
	if rerr := w.retry.Retry(ctx, next); rerr != nil {
		log.Error("artifact job failed and could not be retried", "error", err, "retry_error", rerr)
		return Dropped
	}
	log.Warn("artifact job failed, retry scheduled", "error", err, "next_attempt", next.Attempt, "delay", RetryDelay(next.Attempt))
	return Retried
}

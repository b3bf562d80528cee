package consumer

import (
	"context"
	"math"
	"strconv"
	"time"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/messaging"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body. A nil error acknowledges it.
type Handler func(ctx context.Context, body []byte) error

// RetryPolicy bounds how often a failing message is re-attempted.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy: three delayed copies ten seconds apart, then dead-letter.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Delay: 10 * time.Second}

// Republisher sends a raw payload back onto the exchange.
type Republisher interface {
	PublishRaw(ctx context.Context, routingKey string, body []byte, opts messaging.PublishOptions) error
}

// Outcome is what the retry wrapper decided for a delivery.
type Outcome string

const (
	OutcomeAcked        Outcome = "acked"
	OutcomeRetried      Outcome = "retried"
	OutcomeDeadLettered Outcome = "dead_lettered"
	OutcomeRequeued     Outcome = "requeued"
)

func (o Outcome) disposition() messaging.Disposition {
	switch o {
	case OutcomeAcked, OutcomeRetried:
		return messaging.Ack
	case OutcomeRequeued:
		return messaging.Requeue
	default:
		return messaging.DeadLetter
	}
}

// Retrier applies the retry/dead-letter policy around a handler.
type Retrier struct {
	policy RetryPolicy
	bus    Republisher
}

func NewRetrier(policy RetryPolicy, bus Republisher) *Retrier {
	return &Retrier{policy: policy, bus: bus}
}

// Process runs h once for d. On failure it either republishes a delayed copy
// with the retry counter bumped, or gives the message up to the dead-letter
// queue. The original is acknowledged once its copy is out, so the bus never
// redelivers it alongside the copy.
func (r *Retrier) Process(ctx context.Context, d messaging.Delivery, h Handler) Outcome {
	attempt := RetryCount(d.Headers)
	log := logger.WithQueue(d.Queue, d.RoutingKey).With("attempt", attempt, "messageID", d.MessageID)

	err := h(ctx, d.Body)
	if err == nil {
		log.DebugContext(ctx, "Message handled")
		return OutcomeAcked
	}

	if domain.IsPermanent(err) {
		log.ErrorContext(ctx, "Message rejected permanently, dead-lettering", "error", err)
		return OutcomeDeadLettered
	}
	if attempt >= r.policy.MaxRetries {
		log.ErrorContext(ctx, "Retries exhausted, dead-lettering", "maxRetries", r.policy.MaxRetries, "error", err)
		return OutcomeDeadLettered
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[domain.HeaderRetryCount] = int32(attempt + 1)

	opts := messaging.PublishOptions{Headers: headers, Delay: r.policy.Delay}
	if perr := r.bus.PublishRaw(ctx, d.RoutingKey, d.Body, opts); perr != nil {
		// a requeue keeps the retry header unchanged, so a second failed
		// hand-off ends in the dead-letter queue instead of looping
		if d.Redelivered {
			log.ErrorContext(ctx, "Retry republish failed again, dead-lettering", "error", err, "publishError", perr)
			return OutcomeDeadLettered
		}
		log.ErrorContext(ctx, "Retry republish failed, requeueing original", "error", err, "publishError", perr)
		return OutcomeRequeued
	}

	log.WarnContext(ctx, "Message failed, retry scheduled",
		"nextAttempt", attempt+1, "delay", r.policy.Delay.String(), "error", err)
	return OutcomeRetried
}

// Wrap adapts h to the consumer loop.
func (r *Retrier) Wrap(h Handler) messaging.HandlerFunc {
	return func(ctx context.Context, d messaging.Delivery) messaging.Disposition {
		return r.Process(ctx, d, h).disposition()
	}
}

// RetryCount reads the retry header. Absent or unreadable values count as zero.
func RetryCount(headers amqp.Table) int {
	var n int
	switch v := headers[domain.HeaderRetryCount].(type) {
	case int:
		n = v
	case int8:
		n = int(v)
	case int16:
		n = int(v)
	case int32:
		n = int(v)
	case int64:
		n = clampInt64(v)
	case uint8:
		n = int(v)
	case uint16:
		n = int(v)
	case uint32:
		n = clampInt64(int64(v))
	case float32:
		n = clampInt64(int64(v))
	case float64:
		n = clampInt64(int64(v))
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		n = parsed
	case []byte:
		parsed, err := strconv.Atoi(string(v))
		if err != nil {
			return 0
		}
		n = parsed
	}
	if n < 0 {
		return 0
	}
	return n
}

func clampInt64(v int64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

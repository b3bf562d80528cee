package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gymcore-backend/messaging"

// PublishOptions tunes a single publish.
type PublishOptions struct {
	Headers amqp.Table
	// Delay parks the message in a wait queue before it reaches the exchange.
	Delay time.Duration
}

// defaultConfirmTimeout bounds the wait for the broker to confirm one publish.
const defaultConfirmTimeout = 5 * time.Second

// ErrPublishNacked is returned when the broker refuses responsibility for a message.
var ErrPublishNacked = errors.New("publish nacked by broker")

// ErrUnroutable is returned when no queue is bound for the routing key.
var ErrUnroutable = errors.New("message unroutable")

// publishChannel is the confirm-mode subset of *amqp.Channel.
type publishChannel interface {
	channel
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyReturn(c chan amqp.Return) chan amqp.Return
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
}

// Publisher sends persistent JSON messages to the topic exchange and waits
// for the broker to confirm each one. A single AMQP channel is not safe for
// concurrent publishes, so calls are serialised.
type Publisher struct {
	ch             publishChannel
	topo           Topology
	confirmTimeout time.Duration

	confirms <-chan amqp.Confirmation
	returns  <-chan amqp.Return
	closed   <-chan *amqp.Error

	mu       sync.Mutex
	nextTag  uint64
	declared map[string]string
}

func newPublisher(ch publishChannel, topo Topology) (*Publisher, error) {
	if err := declareExchanges(ch, topo); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &Publisher{
		ch:             ch,
		topo:           topo,
		confirmTimeout: defaultConfirmTimeout,
		confirms:       ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		returns:        ch.NotifyReturn(make(chan amqp.Return, 16)),
		closed:         ch.NotifyClose(make(chan *amqp.Error, 1)),
		declared:       make(map[string]string),
	}, nil
}

// NotifyClose reports the error that closed the publisher channel, if any.
func (p *Publisher) NotifyClose() <-chan *amqp.Error {
	return p.closed
}

// Publish marshals v and sends it under routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, v any, opts PublishOptions) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	return p.PublishRaw(ctx, routingKey, body, opts)
}

// PublishRaw sends body unchanged. Retries use it so the payload stays byte-identical.
func (p *Publisher) PublishRaw(ctx context.Context, routingKey string, body []byte, opts PublishOptions) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "publish "+routingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", p.topo.Exchange),
			attribute.String("messaging.rabbitmq.destination.routing_key", routingKey),
		))
	defer span.End()

	headers := amqp.Table{}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	exchange, key := p.topo.Exchange, routingKey
	if opts.Delay > 0 {
		queue, err := p.delayQueueLocked(routingKey)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		exchange, key = "", queue
		msg.Expiration = strconv.FormatInt(opts.Delay.Milliseconds(), 10)
	}

	err := p.ch.PublishWithContext(ctx, exchange, key, true, false, msg)
	if err == nil {
		p.nextTag++
		err = p.awaitConfirmLocked(ctx, p.nextTag, msg.MessageId)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// awaitConfirmLocked waits for the confirmation of delivery tag. The broker
// sends basic.return before basic.ack for an unroutable mandatory message,
// so any return for messageID is already queued once the ack arrives.
func (p *Publisher) awaitConfirmLocked(ctx context.Context, tag uint64, messageID string) error {
	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return fmt.Errorf("no confirm after %s", p.confirmTimeout)
		case c, ok := <-p.confirms:
			if !ok {
				return errors.New("channel closed before confirm")
			}
			// late confirmation of an earlier publish that timed out
			if c.DeliveryTag < tag {
				continue
			}
			if !c.Ack {
				return ErrPublishNacked
			}
			return p.drainReturnsLocked(messageID)
		}
	}
}

func (p *Publisher) drainReturnsLocked(messageID string) error {
	var err error
	for {
		select {
		case r, ok := <-p.returns:
			if !ok {
				return err
			}
			if r.MessageId == messageID {
				err = fmt.Errorf("%w: %s %s", ErrUnroutable, r.ReplyText, r.RoutingKey)
			}
		default:
			return err
		}
	}
}

func (p *Publisher) delayQueueLocked(routingKey string) (string, error) {
	if name, ok := p.declared[routingKey]; ok {
		return name, nil
	}
	name, err := declareDelayQueue(p.ch, p.topo, routingKey)
	if err != nil {
		return "", err
	}
	p.declared[routingKey] = name
	return name, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

package messaging

import (
	"context"
	"errors"
	"fmt"

	"gymcore-backend/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the delivery stream.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Delivery is the broker-independent view of one inbound message.
type Delivery struct {
	Queue      string
	RoutingKey string
	MessageID  string
	Headers    amqp.Table
	Body       []byte

	// Redelivered is set when the broker has handed this message out before.
	Redelivered bool
}

// Disposition tells the consumer how to settle a delivery.
type Disposition int

const (
	// Ack removes the message.
	Ack Disposition = iota
	// Requeue returns the message to the head of its queue.
	Requeue
	// DeadLetter rejects the message without requeue so it lands in the dead-letter queue.
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// HandlerFunc processes a delivery and decides its disposition.
type HandlerFunc func(ctx context.Context, d Delivery) Disposition

// Consumer reads one subscription with manual acknowledgement.
type Consumer struct {
	ch  channel
	sub Subscription
	tag string
}

func newConsumer(ch channel, topo Topology, sub Subscription, tag string) (*Consumer, error) {
	if err := declareSubscription(ch, topo, sub); err != nil {
		return nil, err
	}
	return &Consumer{ch: ch, sub: sub, tag: tag}, nil
}

// Run delivers messages to handle one at a time until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.sub.Queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.sub.Queue, err)
	}

	log := logger.WithQueue(c.sub.Queue, c.sub.RoutingKey)
	log.Info("Consumer started", "consumer", c.tag)

	for {
		select {
		case <-ctx.Done():
			log.Info("Consumer stopping", "consumer", c.tag)
			return nil
		case m, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s: %w", c.sub.Queue, ErrDeliveriesClosed)
			}
			c.dispatch(ctx, m, handle)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, m amqp.Delivery, handle HandlerFunc) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(m.Headers))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "consume "+m.RoutingKey,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.source.name", c.sub.Queue),
			attribute.String("messaging.message.id", m.MessageId),
		))
	defer span.End()

	d := Delivery{
		Queue:       c.sub.Queue,
		RoutingKey:  m.RoutingKey,
		MessageID:   m.MessageId,
		Headers:     m.Headers,
		Body:        m.Body,
		Redelivered: m.Redelivered,
	}

	disposition := handle(ctx, d)
	span.SetAttributes(attribute.String("messaging.disposition", disposition.String()))

	var err error
	switch disposition {
	case Ack:
		err = m.Ack(false)
	case Requeue:
		err = m.Nack(false, true)
	default:
		err = m.Nack(false, false)
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to settle delivery",
			"queue", c.sub.Queue, "disposition", disposition.String(), "error", err)
	}
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}

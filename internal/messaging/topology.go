package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the exchanges every service declares.
type Topology struct {
	Exchange           string
	DeadLetterExchange string
}

// Subscription binds one durable queue to one routing key.
type Subscription struct {
	Queue      string
	RoutingKey string
	Prefetch   int
}

func (s Subscription) DeadLetterKey() string   { return s.Queue + ".dead" }
func (s Subscription) DeadLetterQueue() string { return s.Queue + ".dlq" }

// DelayQueue is the wait queue for delayed copies of routingKey messages.
// Expired messages dead-letter back into the main exchange under routingKey.
func (t Topology) DelayQueue(routingKey string) string {
	return t.Exchange + ".delay." + routingKey
}

func (t Topology) queueArgs(sub Subscription) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": sub.DeadLetterKey(),
	}
}

func (t Topology) delayQueueArgs(routingKey string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    t.Exchange,
		"x-dead-letter-routing-key": routingKey,
	}
}

// channel is the subset of *amqp.Channel used here.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

func declareExchanges(ch channel, t Topology) error {
	if err := ch.ExchangeDeclare(t.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if err := ch.ExchangeDeclare(t.DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange %s: %w", t.DeadLetterExchange, err)
	}
	return nil
}

// declareSubscription sets up the queue, its binding and its dead-letter queue.
func declareSubscription(ch channel, t Topology, sub Subscription) error {
	if err := declareExchanges(ch, t); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(sub.Queue, true, false, false, false, t.queueArgs(sub))
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", sub.Queue, err)
	}
	if err := ch.QueueBind(q.Name, sub.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", q.Name, sub.RoutingKey, err)
	}

	dlq, err := ch.QueueDeclare(sub.DeadLetterQueue(), true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare dlq %s: %w", sub.DeadLetterQueue(), err)
	}
	if err := ch.QueueBind(dlq.Name, sub.DeadLetterKey(), t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind dlq %s: %w", dlq.Name, err)
	}

	prefetch := sub.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

func declareDelayQueue(ch channel, t Topology, routingKey string) (string, error) {
	name := t.DelayQueue(routingKey)
	if _, err := ch.QueueDeclare(name, true, false, false, false, t.delayQueueArgs(routingKey)); err != nil {
		return "", fmt.Errorf("declare delay queue %s: %w", name, err)
	}
	return name, nil
}

package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection owns one broker connection; publishers and consumers each get their own channel.
type Connection struct {
	conn *amqp.Connection
	topo Topology
}

func Dial(url string, topo Topology) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return &Connection{conn: conn, topo: topo}, nil
}

func (c *Connection) Topology() Topology {
	return c.topo
}

func (c *Connection) Publisher() (*Publisher, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	p, err := newPublisher(ch, c.topo)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return p, nil
}

func (c *Connection) Consumer(sub Subscription, tag string) (*Consumer, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	cons, err := newConsumer(ch, c.topo, sub, tag)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return cons, nil
}

// NotifyClose reports the error that closed the connection, if any.
func (c *Connection) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (c *Connection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

package notify

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBackend publishes events to a RabbitMQ exchange. The connection is
// dialed lazily on first publish and redialed after a failure.
type AMQPBackend struct {
	url        string
	exchange   string
	routingKey string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewAMQPBackend(url, exchange, routingKey string) *AMQPBackend {
	return &AMQPBackend{
		url:        url,
		exchange:   exchange,
		routingKey: routingKey,
	}
}

func (a *AMQPBackend) Name() string {
	return "amqp"
}

func (a *AMQPBackend) channel() (*amqp.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("amqp backend closed")
	}
	if a.ch != nil {
		return a.ch, nil
	}
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if a.exchange != "" {
		if err := ch.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("amqp exchange declare: %w", err)
		}
	}
	a.conn, a.ch = conn, ch
	return ch, nil
}

func (a *AMQPBackend) Publish(ctx context.Context, payload []byte) error {
	ch, err := a.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, a.exchange, a.routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
	if err != nil {
		a.reset()
	}
	return err
}

// reset drops the cached connection so the next publish redials.
func (a *AMQPBackend) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ch != nil {
		a.ch.Close()
		a.ch = nil
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
}

func (a *AMQPBackend) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.ch != nil {
		a.ch.Close()
		a.ch = nil
	}
	if a.conn != nil {
		err := a.conn.Close()
		a.conn = nil
		return err
	}
	return nil
}

package events

import (
	"context"
	"sync"
	"time"

	"DMChat/tools/errs"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes to a durable topic exchange with routing key = event type.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string

	mu sync.Mutex
	ch *amqp091.Channel
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, errs.WrapMsg(err, "amqp dial failed")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errs.WrapMsg(err, "amqp channel failed")
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errs.WrapMsg(err, "amqp exchange declare failed", "exchange", exchange)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, ch: ch}, nil
}

func (p *AMQPPublisher) channel() (*amqp091.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := e.Encode()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return errs.WrapMsg(err, "amqp channel failed")
	}
	err = ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     e.ID,
		CorrelationId: e.Key,
		Type:          e.Type,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return errs.WrapMsg(err, "amqp publish failed", "exchange", p.exchange, "type", e.Type)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}

package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "ex.broadcast"
	QueueName    = "q.broadcast"
	DLXName      = "ex.broadcast.dlx"
	DLQName      = "q.broadcast.dlq"
	RoutingKey   = "k.broadcast"

	consumerTag = "hub-sales-bot"
	prefetch    = 50
)

// amqpChannel is the subset of *amqp.Channel the broker uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

var _ amqpChannel = (*amqp.Channel)(nil)

type Broker struct {
	conn *amqp.Connection
	ch   amqpChannel
}

var _ Publisher = (*Broker)(nil)

func Dial(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("broadcast: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("broadcast: open channel: %w", err)
	}
	b, err := newBroker(ch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	b.conn = conn
	return b, nil
}

func newBroker(ch amqpChannel) (*Broker, error) {
	if err := setupTopology(ch); err != nil {
		return nil, fmt.Errorf("broadcast: topology: %w", err)
	}
	return &Broker{ch: ch}, nil
}

// setupTopology declares the work queue and a dead-letter queue that
// receives rejected jobs.
func setupTopology(ch amqpChannel) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DLQName, RoutingKey, DLXName, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": RoutingKey,
	}
	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return err
	}
	return ch.QueueBind(QueueName, RoutingKey, ExchangeName, false, nil)
}

func (b *Broker) Publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("broadcast: encode job: %w", err)
	}
	err = b.ch.PublishWithContext(ctx, ExchangeName, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.BroadcastID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("broadcast: publish lead %d: %w", job.LeadID, err)
	}
	return nil
}

// Consume registers a manual-ack consumer on the work queue.
func (b *Broker) Consume() (<-chan amqp.Delivery, error) {
	if err := b.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("broadcast: qos: %w", err)
	}
	deliveries, err := b.ch.Consume(QueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("broadcast: consume: %w", err)
	}
	return deliveries, nil
}

func (b *Broker) Close() error {
	err := b.ch.Close()
	if b.conn != nil {
		if cerr := b.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig configures the RabbitMQ transport.
type AMQPConfig struct {
	URL      string
	Exchange string
	// Queue is the durable consumer queue; subscribers sharing a queue
	// compete for deliveries.
	Queue    string
	Prefetch int
}

// AMQPBus publishes events to a topic exchange routed by event kind.
type AMQPBus struct {
	cfg  AMQPConfig
	conn *amqp.Connection

	mu      sync.Mutex
	channel *amqp.Channel
}

func NewAMQPBus(cfg AMQPConfig) (*AMQPBus, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("amqp url required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = defaultEventsName
	}
	if cfg.Queue == "" {
		cfg.Queue = defaultEventsName + ".notifications"
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 16
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // no-wait
		nil,          // args
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPBus{cfg: cfg, conn: conn, channel: ch}, nil
}

func (b *AMQPBus) Publish(ctx context.Context, ev Event) error {
	body, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel.PublishWithContext(
		ctx,
		b.cfg.Exchange,
		ev.Kind, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    ev.OccurredAt,
			Type:         ev.Kind,
			Body:         body,
		},
	)
}

// Subscribe binds the configured queue to every event kind and consumes it
// with manual acks. A failed delivery is requeued once.
func (b *AMQPBus) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler required")
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	q, err := ch.QueueDeclare(
		b.cfg.Queue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", b.cfg.Exchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(
		ctx,
		q.Name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				b.deliver(ctx, d, handler)
			}
		}
	}()
	return nil
}

func (b *AMQPBus) deliver(ctx context.Context, d amqp.Delivery, handler Handler) {
	ev, err := decodeEvent(d.Body)
	if err != nil {
		slog.Warn("dropping malformed event", "message_id", d.MessageId, "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, ev); err != nil {
		requeue := !d.Redelivered
		slog.Warn("event handler failed", "kind", ev.Kind, "key", ev.Key, "requeue", requeue, "err", err)
		_ = d.Nack(false, requeue)
		return
	}
	if err := d.Ack(false); err != nil {
		slog.Warn("event ack failed", "kind", ev.Kind, "key", ev.Key, "err", err)
	}
}

func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel != nil {
		_ = b.channel.Close()
	}
	return b.conn.Close()
}

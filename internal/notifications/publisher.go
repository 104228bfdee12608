package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/luxeledger/inventory-backend/pkg/logger"
)

type publishChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher hands one-time codes to the broker; the otp-mailer worker sends them.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       publishChannel
	queue    string
	declared bool
	logg     *logger.Logger
	now      func() time.Time
}

// NewPublisher dials the broker and opens the channel used for every publish.
func NewPublisher(url, queue string, logg *logger.Logger) (*Publisher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if queue == "" {
		return nil, fmt.Errorf("otp queue name required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, logg: logg, now: time.Now}, nil
}

func newPublisherWithChannel(ch publishChannel, queue string, logg *logger.Logger) *Publisher {
	return &Publisher{ch: ch, queue: queue, logg: logg, now: time.Now}
}

// DeliverCode publishes msg as a persistent message on the OTP queue.
func (p *Publisher) DeliverCode(ctx context.Context, msg OTPMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal otp message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared {
		if _, err := p.ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", p.queue, err)
		}
		p.declared = true
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		MessageId:    msg.FlowID,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		return fmt.Errorf("publish otp message: %w", err)
	}

	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"flow_id": msg.FlowID,
		"queue":   p.queue,
	}), "otp message published")
	return nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

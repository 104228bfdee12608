package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/luxeledger/inventory-backend/pkg/config"
	"github.com/luxeledger/inventory-backend/pkg/logger"
)

// Consumer drains the OTP queue and emails each code.
type Consumer struct {
	cfg     config.BrokerConfig
	mailer  Mailer
	subject string
	logg    *logger.Logger
	now     func() time.Time
}

// NewConsumer builds an OTP delivery consumer.
func NewConsumer(cfg config.BrokerConfig, mailer Mailer, subject string, logg *logger.Logger) (*Consumer, error) {
	if mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.OTPQueue == "" {
		return nil, fmt.Errorf("otp queue name required")
	}
	return &Consumer{cfg: cfg, mailer: mailer, subject: subject, logg: logg, now: time.Now}, nil
}

// Run keeps a consumer attached to the broker until ctx is canceled,
// reconnecting with backoff when the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "retry_in", backoff.String()), "otp consumer failed to dial broker")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logg.Error(ctx, "otp consume loop ended; reconnecting", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		c.logg.Error(ctx, "set qos failed", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.OTPQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.cfg.OTPQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.logg.Info(c.logg.WithField(ctx, "queue", c.cfg.OTPQueue), "otp consumer attached")
	for d := range msgs {
		result := c.process(ctx, d.Body, d.Redelivered)
		switch {
		case result.ack:
			_ = d.Ack(false)
		default:
			_ = d.Nack(false, result.requeue)
		}
	}
	return errors.New("deliveries channel closed")
}

type processResult struct {
	ack     bool
	requeue bool
}

func (c *Consumer) process(ctx context.Context, body []byte, redelivered bool) processResult {
	var msg OTPMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logg.Error(ctx, "failed to decode otp message", err)
		return processResult{}
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"flow_id": msg.FlowID,
		"kind":    msg.Kind,
	})
	if strings.TrimSpace(msg.Email) == "" || strings.TrimSpace(msg.Code) == "" {
		c.logg.Warn(logCtx, "dropping incomplete otp message")
		return processResult{}
	}

	now := c.now()
	if !msg.ExpiresAt.IsZero() && !now.Before(msg.ExpiresAt) {
		c.logg.Info(logCtx, "otp expired before delivery; dropping")
		return processResult{ack: true}
	}

	if err := c.mailer.Send(ctx, msg.Email, c.subject, otpBody(msg, now)); err != nil {
		c.logg.Error(logCtx, "otp email failed", err)
		// one retry through the broker, then drop
		return processResult{requeue: !redelivered}
	}
	c.logg.Info(logCtx, "otp email sent")
	return processResult{ack: true}
}

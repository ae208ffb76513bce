package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vrcwmt/worldperm/internal/config"
)

const rabbitMQPublishTimeout = 5 * time.Second

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQ publishes change events to a fanout exchange.
type RabbitMQ struct {
	exchange string
	channel  amqpPublisher
	closers  []func() error
}

// NewRabbitMQ dials cfg.URL and declares the exchange.
func NewRabbitMQ(cfg config.RabbitMQConfig) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", cfg.Exchange, err)
	}

	return &RabbitMQ{
		exchange: cfg.Exchange,
		channel:  channel,
		closers:  []func() error{channel.Close, conn.Close},
	}, nil
}

// Close closes the channel and the connection.
func (r *RabbitMQ) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *RabbitMQ) RosterUpdate(ctx context.Context, change Change) error {
	return r.publish(ctx, changeTypeRoster, change)
}

func (r *RabbitMQ) ImageUpdate(ctx context.Context, path string) error {
	return r.publish(ctx, changeTypeImage, imageEvent{Path: path})
}

func (r *RabbitMQ) publish(ctx context.Context, changeType string, value any) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, rabbitMQPublishTimeout)
	defer cancel()

	if err := r.channel.PublishWithContext(ctx, r.exchange, changeType, false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        changeType,
		Timestamp:   time.Now(),
		Body:        bytes,
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", changeType, err)
	}
	return nil
}

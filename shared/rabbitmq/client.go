// Package rabbitmq carries the job change feed: every successful job write is
// announced on a fanout exchange, and each live subscription consumes from
// its own transient queue bound to it.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/ksuid"
)

// Config holds RabbitMQ connection configuration.
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	ExchangeName      string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
}

// ChangeEvent is the message published for every job mutation. Consumers
// re-query the store on receipt; the event itself carries no job state.
type ChangeEvent struct {
	JobID string `json:"job_id"`
}

// Client is a RabbitMQ change-feed client.
type Client struct {
	config  *Config
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// NewClient connects to RabbitMQ with retry and declares the change-feed
// exchange.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.config.RetryAttempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < c.config.RetryAttempts {
			time.Sleep(c.config.RetryInterval)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.config.RetryAttempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	// The feed is transient fan-out: no durability, every consumer gets
	// every event.
	err = c.channel.ExchangeDeclare(
		c.config.ExchangeName, // name
		"fanout",              // type
		false,                 // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	c.logger.Info("RabbitMQ change feed initialized",
		slog.String("exchange", c.config.ExchangeName),
	)

	return nil
}

// PublishChange announces a job mutation on the feed.
func (c *Client) PublishChange(ctx context.Context, jobID string) error {
	body, err := json.Marshal(ChangeEvent{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	err = c.channel.PublishWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		"",                    // routing key, ignored by fanout
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		c.logger.Error("Failed to publish change event",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	c.logger.Debug("Change event published",
		slog.String("job_id", jobID),
	)

	return nil
}

// Feed is one consumer's view of the change feed. Each Feed owns its channel
// and queue so feeds can be opened and closed independently.
type Feed struct {
	channel    *amqp.Channel
	queue      string
	tag        string
	deliveries <-chan amqp.Delivery
	logger     *slog.Logger
}

// Subscribe opens a new feed: an exclusive auto-delete queue bound to the
// change exchange, consumed with auto-ack. A missed event is tolerated, the
// consumer re-queries on a poll interval anyway.
func (c *Client) Subscribe() (*Feed, error) {
	channel, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create feed channel: %w", err)
	}

	name := "jobfeed-" + ksuid.New().String()

	q, err := channel.QueueDeclare(
		name,  // name
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to declare feed queue: %w", err)
	}

	err = channel.QueueBind(
		q.Name,                // queue name
		"",                    // routing key
		c.config.ExchangeName, // exchange
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to bind feed queue: %w", err)
	}

	deliveries, err := channel.Consume(
		q.Name, // queue
		name,   // consumer tag
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("failed to consume feed queue: %w", err)
	}

	c.logger.Debug("Change feed subscriber started",
		slog.String("queue", q.Name),
	)

	return &Feed{
		channel:    channel,
		queue:      q.Name,
		tag:        name,
		deliveries: deliveries,
		logger:     c.logger,
	}, nil
}

// Deliveries returns the feed's message channel. It is closed when the feed
// is closed or the connection drops.
func (f *Feed) Deliveries() <-chan amqp.Delivery {
	return f.deliveries
}

// Close tears the feed down; its queue auto-deletes.
func (f *Feed) Close() error {
	if err := f.channel.Cancel(f.tag, false); err != nil {
		f.logger.Warn("Failed to cancel feed consumer",
			slog.String("queue", f.queue),
			slog.Any("error", err),
		)
	}
	return f.channel.Close()
}

// Close closes the RabbitMQ connection.
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	return nil
}

// IsConnected reports whether the underlying connection is open.
func (c *Client) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

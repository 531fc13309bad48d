package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"croesus/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

type Client interface {
	Close() error

	DeclareExchange(name, kind string) error
	DeclareQueue(name string) (amqp.Queue, error)
	BindQueue(queueName, exchangeName, routingKey string) error

	Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error
	Consume(queueName string, consumerTag string) (<-chan amqp.Delivery, error)

	Health() error
}

type client struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       config.RabbitMQConfig
	mu           sync.Mutex
	reconnecting bool
}

func NewClientFromConfig(cfg config.RabbitMQConfig) (Client, error) {
	c := &client{
		config: cfg,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	c.setupReconnect()

	return c, nil
}

func (c *client) connect() error {
	amqpURL := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		c.config.Username,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to RabbitMQ")
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open RabbitMQ channel")
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if c.config.PrefetchCount > 0 {
		if err := ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
			log.Error().Err(err).Msg("Failed to set channel QoS")
			conn.Close()
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	c.conn = conn
	c.channel = ch

	log.Info().
		Str("host", c.config.Host).
		Int("port", c.config.Port).
		Str("vhost", c.config.VHost).
		Msg("RabbitMQ connection established")

	return nil
}

// setupReconnect watches the current connection. Each connection gets its
// own watcher and a buffered notify channel; amqp091 blocks its shutdown
// until the close error is received.
func (c *client) setupReconnect() {
	conn := c.conn
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go c.watch(conn, closed)
}

func (c *client) watch(conn *amqp.Connection, closed <-chan *amqp.Error) {
	err, ok := <-closed
	if !ok || err == nil {
		// closed on purpose
		return
	}
	log.Warn().
		Str("reason", err.Reason).
		Int("code", err.Code).
		Bool("recover", err.Recover).
		Msg("RabbitMQ connection closed, attempting to reconnect")

	c.doReconnect(conn)
}

// doReconnect replaces dead with a new connection, unless someone already
// has
func (c *client) doReconnect(dead *amqp.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reconnecting || c.conn != dead {
		log.Debug().Msg("RabbitMQ connection already replaced")
		return
	}

	c.reconnecting = true
	defer func() { c.reconnecting = false }()

	if c.channel != nil {
		c.channel.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		log.Info().Dur("backoff", backoff).Msg("Attempting to reconnect to RabbitMQ")

		if err := c.connect(); err != nil {
			time.Sleep(backoff)
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		c.setupReconnect()

		log.Info().Msg("Successfully reconnected to RabbitMQ")
		return
	}
}

func nextBackoff(cur, limit time.Duration) time.Duration {
	cur *= 2
	if cur > limit {
		return limit
	}
	return cur
}

// ensureConnected reopens a dropped connection. Callers hold c.mu.
func (c *client) ensureConnected() error {
	if c.conn != nil && c.channel != nil && !c.conn.IsClosed() {
		return nil
	}
	if err := c.connect(); err != nil {
		return err
	}
	c.setupReconnect()
	return nil
}

func (c *client) Health() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.channel == nil {
		return fmt.Errorf("nil connection or channel")
	}

	if c.conn.IsClosed() {
		return fmt.Errorf("connection is closed")
	}

	err := c.channel.ExchangeDeclarePassive(
		c.config.ExchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Error().Err(err).Msg("RabbitMQ health check failed on passive exchange declare")
		return err
	}

	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ channel")
			return fmt.Errorf("channel close error: %w", err)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			return fmt.Errorf("connection close error: %w", err)
		}
	}

	log.Info().Msg("RabbitMQ connection and channel closed")
	return nil
}

func (c *client) Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return fmt.Errorf("failed to reconnect before publishing: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
		Headers:      headers,
	}

	err := c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	if err != nil {
		log.Error().
			Err(err).
			Str("exchange", exchange).
			Str("routingKey", routingKey).
			Msg("Failed to publish message")

		// one retry after the channel was closed under us
		if amqpErr, ok := err.(*amqp.Error); ok && amqpErr.Code == amqp.ChannelError {
			if err := c.connect(); err == nil {
				c.setupReconnect()
				if retryErr := c.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg); retryErr == nil {
					log.Info().
						Str("exchange", exchange).
						Str("routingKey", routingKey).
						Msg("Published message after reconnection")
					return nil
				}
			}
		}

		return err
	}

	log.Debug().
		Str("exchange", exchange).
		Str("routingKey", routingKey).
		Int("size", len(body)).
		Msg("Published message")

	return nil
}

func (c *client) Consume(queueName string, consumerTag string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return nil, fmt.Errorf("failed to reconnect before consuming: %w", err)
	}

	deliveries, err := c.channel.Consume(
		queueName,
		consumerTag,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("queue", queueName).
			Str("consumerTag", consumerTag).
			Msg("Failed to start consuming")
		return nil, fmt.Errorf("consume error: %w", err)
	}

	log.Info().
		Str("queue", queueName).
		Str("consumerTag", consumerTag).
		Msg("Started consuming messages")

	return deliveries, nil
}

func (c *client) DeclareExchange(name, kind string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return fmt.Errorf("failed to reconnect before declaring exchange: %w", err)
	}

	err := c.channel.ExchangeDeclare(name, kind, true, false, false, false, nil)
	if err != nil {
		log.Error().Err(err).Str("exchange", name).Msg("Failed to declare exchange")
		return err
	}
	log.Info().Str("exchange", name).Str("type", kind).Msg("Declared exchange")
	return nil
}

func (c *client) DeclareQueue(name string) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to reconnect before declaring queue: %w", err)
	}

	queue, err := c.channel.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		log.Error().Err(err).Str("queue", name).Msg("Failed to declare queue")
		return queue, err
	}
	log.Info().Str("queue", name).Msg("Declared queue")
	return queue, nil
}

func (c *client) BindQueue(queueName, exchangeName, routingKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return fmt.Errorf("failed to reconnect before binding queue: %w", err)
	}

	err := c.channel.QueueBind(queueName, routingKey, exchangeName, false, nil)
	if err != nil {
		log.Error().
			Err(err).
			Str("queue", queueName).
			Str("exchange", exchangeName).
			Str("routingKey", routingKey).
			Msg("Failed to bind queue")
		return err
	}
	log.Info().
		Str("queue", queueName).
		Str("exchange", exchangeName).
		Str("routingKey", routingKey).
		Msg("Bound queue to exchange")
	return nil
}

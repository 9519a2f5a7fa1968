// Package rabbitmq реализует приём событий создания заказа из очереди RabbitMQ.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderms/internal/domain"
	"github.com/vladislavdragonenkov/orderms/internal/messaging"
	"github.com/vladislavdragonenkov/orderms/internal/metrics"
	"github.com/vladislavdragonenkov/orderms/internal/version"
)

const (
	DefaultQueue      = "btg-pactual-order-created"
	DefaultPrefetch   = 10
	DefaultRetryDelay = 100 * time.Millisecond
)

// Connection держит соединение и канал к брокеру.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial подключается к брокеру и открывает канал.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Properties: amqp.Table{"connection_name": version.UserAgent()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	return &Connection{conn: conn, channel: channel}, nil
}

// DeclareQueue объявляет durable очередь, если её ещё нет.
func (c *Connection) DeclareQueue(name string) error {
	if _, err := c.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// Ping проверяет, что соединение не закрыто брокером.
func (c *Connection) Ping(context.Context) error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}

// Option настраивает Consumer.
type Option func(*Consumer)

// WithPrefetch задаёт число неподтверждённых сообщений на канал.
func WithPrefetch(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithRetryDelay задаёт паузу перед возвратом сообщения в очередь.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Consumer) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger.WithField("component", "rabbitmq-consumer")
		}
	}
}

// WithMetrics включает учёт исходов обработки.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// Consumer читает очередь с ручным подтверждением.
// Ошибки валидации отклоняются без возврата, остальные возвращаются в очередь.
type Consumer struct {
	conn       *Connection
	queue      string
	ingestor   messaging.Ingestor
	prefetch   int
	retryDelay time.Duration
	logger     *log.Entry
	metrics    *metrics.OrderMetrics
	wg         sync.WaitGroup
}

// NewConsumer создаёт consumer поверх открытого соединения.
func NewConsumer(conn *Connection, queue string, ingestor messaging.Ingestor, opts ...Option) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	c := &Consumer{
		conn:       conn,
		queue:      queue,
		ingestor:   ingestor,
		prefetch:   DefaultPrefetch,
		retryDelay: DefaultRetryDelay,
		logger:     log.WithField("component", "rabbitmq-consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start объявляет очередь и запускает цикл обработки до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.conn.DeclareQueue(c.queue); err != nil {
		return err
	}
	if err := c.conn.channel.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := c.conn.channel.ConsumeWithContext(
		ctx,
		c.queue,
		version.UserAgent(), // consumer tag
		false,               // auto-ack
		false,               // exclusive
		false,               // no-local
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %s: %w", c.queue, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, deliveries)
	}()

	c.logger.WithField("queue", c.queue).Info("rabbitmq consumer started")
	return nil
}

// Stop дожидается завершения цикла обработки и закрывает соединение.
func (c *Consumer) Stop() error {
	err := c.conn.Close()
	c.wg.Wait()
	c.logger.Info("rabbitmq consumer stopped")
	if err != nil {
		return fmt.Errorf("failed to close rabbitmq connection: %w", err)
	}
	return nil
}

func (c *Consumer) run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery обрабатывает одно сообщение и подтверждает его брокеру.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	logger := c.logger.WithFields(log.Fields{
		"queue":        c.queue,
		"delivery_tag": delivery.DeliveryTag,
		"redelivered":  delivery.Redelivered,
	})

	err := messaging.Handle(ctx, c.ingestor, delivery.Body)
	switch {
	case err == nil:
		if ackErr := delivery.Ack(false); ackErr != nil {
			logger.WithError(ackErr).Error("failed to ack message")
			return
		}
		c.metrics.RecordMessage(messaging.TransportRabbitMQ, metrics.MessageProcessed)

	case domain.IsValidation(err):
		logger.WithError(err).Warn("rejecting invalid order created event")
		if rejectErr := delivery.Reject(false); rejectErr != nil {
			logger.WithError(rejectErr).Error("failed to reject message")
		}
		c.metrics.RecordMessage(messaging.TransportRabbitMQ, metrics.MessageFailed)

	default:
		logger.WithError(err).Error("order created event failed, requeueing")
		c.pause(ctx)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			logger.WithError(nackErr).Error("failed to nack message")
		}
		c.metrics.RecordMessage(messaging.TransportRabbitMQ, metrics.MessageRetried)
	}
}

func (c *Consumer) pause(ctx context.Context) {
	if c.retryDelay <= 0 {
		return
	}
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Publisher публикует события в очередь через exchange по умолчанию.
type Publisher struct {
	conn  *Connection
	queue string
}

// NewPublisher создаёт publisher для очереди.
func NewPublisher(conn *Connection, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{conn: conn, queue: queue}
}

// PublishOrderCreated отправляет событие как persistent JSON-сообщение.
func (p *Publisher) PublishOrderCreated(ctx context.Context, event domain.OrderCreatedEvent) error {
	body, err := messaging.EncodeOrderCreated(event)
	if err != nil {
		return err
	}

	if err := p.conn.channel.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.OrderID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.queue, err)
	}
	return nil
}

var _ messaging.Publisher = (*Publisher)(nil)

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 10 * time.Second

// generateMessage is the queue payload
type generateMessage struct {
	TaskID string `json:"taskId"`
}

// AMQPConfig configures the RabbitMQ connection
type AMQPConfig struct {
	URL           string
	QueueName     string
	PrefetchCount int
	ConsumerTag   string
}

// declareQueue declares the durable work queue on ch
func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", name, err)
	}
	return nil
}

// AMQPDispatcher publishes generation requests to a RabbitMQ queue
type AMQPDispatcher struct {
	conn   *amqp.Connection
	queue  string
	logger *slog.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewAMQPDispatcher dials RabbitMQ and declares the queue
func NewAMQPDispatcher(cfg AMQPConfig, logger *slog.Logger) (*AMQPDispatcher, error) {
	if cfg.URL == "" || cfg.QueueName == "" {
		return nil, fmt.Errorf("amqp dispatcher: url and queue name are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dispatcher: failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp dispatcher: failed to open a channel: %w", err)
	}
	if err := declareQueue(ch, cfg.QueueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp dispatcher: %w", err)
	}

	return &AMQPDispatcher{
		conn:    conn,
		channel: ch,
		queue:   cfg.QueueName,
		logger:  logger.With("component", "amqp_dispatcher", "queue", cfg.QueueName),
	}, nil
}

// Dispatch publishes a persistent message carrying the task ID
func (d *AMQPDispatcher) Dispatch(ctx context.Context, taskID string) error {
	body, err := json.Marshal(generateMessage{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("amqp dispatcher: failed to marshal message: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    taskID,
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.channel == nil || d.conn.IsClosed() {
		return ErrClosed
	}
	if err := d.channel.PublishWithContext(publishCtx, "", d.queue, false, false, msg); err != nil {
		return fmt.Errorf("amqp dispatcher: failed to publish task %s: %w", taskID, err)
	}

	d.logger.Debug("published report task", "task_id", taskID)
	return nil
}

// Close closes the channel and the connection
func (d *AMQPDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	if d.channel != nil {
		if err := d.channel.Close(); err != nil {
			firstErr = err
		}
		d.channel = nil
	}
	if err := d.conn.Close(); err != nil && firstErr == nil && !errors.Is(err, amqp.ErrClosed) {
		firstErr = err
	}
	return firstErr
}

// AMQPConsumer feeds queued task IDs to a Runner
type AMQPConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     AMQPConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewAMQPConsumer dials RabbitMQ, declares the queue and applies QoS
func NewAMQPConsumer(cfg AMQPConfig, logger *slog.Logger) (*AMQPConsumer, error) {
	if cfg.URL == "" || cfg.QueueName == "" {
		return nil, fmt.Errorf("amqp consumer: url and queue name are required")
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = 1
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "report-generator"
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp consumer: failed to dial RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp consumer: failed to open a channel: %w", err)
	}
	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp consumer: failed to set QoS: %w", err)
	}
	if err := declareQueue(ch, cfg.QueueName); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp consumer: %w", err)
	}

	return &AMQPConsumer{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		logger:  logger.With("component", "amqp_consumer", "queue", cfg.QueueName),
	}, nil
}

// Start consumes until ctx is cancelled or the channel closes. It runs
// PrefetchCount handlers concurrently.
func (c *AMQPConsumer) Start(ctx context.Context, runner Runner) error {
	deliveries, err := c.channel.Consume(
		c.cfg.QueueName,
		c.cfg.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consumer: failed to register consumer: %w", err)
	}

	c.consume(ctx, deliveries, runner)
	c.logger.Info("amqp consumer started", "prefetch", c.cfg.PrefetchCount)
	return nil
}

// consume stops taking deliveries once ctx is done. A generation already
// running is not cancelled with it; Close waits for it to finish.
func (c *AMQPConsumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery, runner Runner) {
	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < c.cfg.PrefetchCount; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for ctx.Err() == nil {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.handle(runCtx, d, runner)
				}
			}
		}()
	}
}

// handle acks every delivery: the task record carries the outcome, and a
// redelivered task that is no longer pending would be skipped anyway.
func (c *AMQPConsumer) handle(ctx context.Context, d amqp.Delivery, runner Runner) {
	var msg generateMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.TaskID == "" {
		c.logger.Error("dropping malformed message", "delivery_tag", d.DeliveryTag, "error", err)
		_ = d.Reject(false)
		return
	}

	if _, err := runner.RunGeneration(ctx, msg.TaskID); err != nil {
		c.logger.Debug("report task finished with error", "task_id", msg.TaskID, "error", err)
	}

	if err := d.Ack(false); err != nil {
		c.logger.Warn("failed to ack delivery", "task_id", msg.TaskID, "error", err)
	}
}

// Close stops consuming and waits for in-flight handlers
func (c *AMQPConsumer) Close() error {
	var firstErr error
	if err := c.channel.Cancel(c.cfg.ConsumerTag, false); err != nil {
		firstErr = err
	}
	c.wg.Wait()
	if err := c.channel.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.conn.Close(); err != nil && firstErr == nil && !errors.Is(err, amqp.ErrClosed) {
		firstErr = err
	}
	return firstErr
}

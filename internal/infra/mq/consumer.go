package mq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/config"
	"github.com/example/shopfront/internal/logging"
)

// ErrDiscard 处理函数返回包装了它的错误时消息直接丢弃，不重新入队
var ErrDiscard = errors.New("mq: discard message")

// Handler 处理一条投递；返回 nil 确认，其他错误重新入队
type Handler func(ctx context.Context, routingKey string, body []byte) error

// Consumer 从 topic 交换机绑定的持久队列消费
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	logger   *zap.Logger
	prefetch int
}

// DialConsumer 声明交换机和队列，并按 bindingKey 绑定
func DialConsumer(cfg *config.RabbitMQConfig, queue, bindingKey string, logger *zap.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq.url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	c := &Consumer{conn: conn, ch: ch, queue: queue, logger: logging.OrNop(logger).Named("mq"), prefetch: 16}
	if err := c.declare(cfg.Exchange, bindingKey); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Consumer) declare(exchange, bindingKey string) error {
	if err := c.ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	if err := c.ch.QueueBind(c.queue, bindingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", c.queue, err)
	}
	return c.ch.Qos(c.prefetch, 0, false)
}

// Run 手动确认模式消费，直到 ctx 结束或连接断开
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("delivery channel closed")
			}
			settle(c.logger, d, h(ctx, d.RoutingKey, d.Body))
		}
	}
}

// settle 按处理结果确认、丢弃或重新入队
func settle(logger *zap.Logger, d amqp.Delivery, err error) {
	var ackErr error
	switch {
	case err == nil:
		ackErr = d.Ack(false)
	case errors.Is(err, ErrDiscard):
		logger.Warn("discarding message", zap.String("routing_key", d.RoutingKey), zap.Error(err))
		ackErr = d.Nack(false, false)
	default:
		logger.Warn("requeue message", zap.String("routing_key", d.RoutingKey), zap.Error(err))
		ackErr = d.Nack(false, true)
	}
	if ackErr != nil {
		logger.Error("settle delivery failed", zap.Error(ackErr))
	}
}

func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	return c.conn.Close()
}

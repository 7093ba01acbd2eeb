package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"warden/internal/config"
)

// publisher 是 AMQPNotifier 依赖的 channel 能力。
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier 将事件以 JSON 投递到 RabbitMQ 队列。
type AMQPNotifier struct {
	conn  *amqp.Connection
	ch    publisher
	queue string
}

// NewAMQPNotifier 连接 RabbitMQ 并声明持久化队列。
func NewAMQPNotifier(cfg config.AMQP) (*AMQPNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "warden.launch"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, queue: queue}, nil
}

// Channel 返回 AMQP 渠道。
func (n *AMQPNotifier) Channel() Channel { return ChannelAMQP }

// Notify 投递事件。
func (n *AMQPNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.ch == nil {
		return errors.New("RabbitMQ 通知器未初始化")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.ch.PublishWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Code),
		Body:         body,
	})
}

// Close 关闭 channel 与连接。
func (n *AMQPNotifier) Close() error {
	if n == nil {
		return nil
	}
	var errs []error
	if n.ch != nil {
		errs = append(errs, n.ch.Close())
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
	}
	return errors.Join(errs...)
}

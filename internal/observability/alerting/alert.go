// Package alerting 将启动过程中的中止、致命错误与移交事件分发到日志和消息队列。
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "warden/internal/errors"
	"warden/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelLog  Channel = "log"
	ChannelAMQP Channel = "amqp"
)

// Event 描述一次需要告警的启动事件。
type Event struct {
	Code       xerrors.Code      `json:"code"`
	Message    string            `json:"message"`
	Severity   xerrors.Severity  `json:"severity"`
	LaunchID   string            `json:"launch_id"`
	Stage      string            `json:"stage"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// FromError 根据统一错误构造事件。
func FromError(launchID, stage string, err error) Event {
	event := Event{
		Code:       xerrors.CodeOf(err),
		Severity:   xerrors.SeverityOf(err),
		LaunchID:   launchID,
		Stage:      stage,
		OccurredAt: time.Now().UTC(),
	}
	if e, ok := xerrors.From(err); ok {
		event.Message = e.Error()
		event.Metadata = e.Metadata()
	} else if err != nil {
		event.Message = err.Error()
	}
	return event
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
	Close() error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有通知器。
func (d *FanoutDispatcher) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		errs = append(errs, notifier.Close())
	}
	return errors.Join(errs...)
}

// LogNotifier 将事件写入审计日志。
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel 返回日志渠道。
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify 写入审计日志。
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	log := logger.Audit()
	if n != nil && n.Logger != nil {
		log = n.Logger
	}
	attrs := []any{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("launch_id", event.LaunchID),
		slog.String("stage", event.Stage),
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	log.Warn(event.Message, attrs...)
	return nil
}

// Close 实现 Notifier。
func (n *LogNotifier) Close() error { return nil }

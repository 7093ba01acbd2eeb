package launch

import (
	"context"
	"errors"
	"log/slog"

	"warden/internal/analysis"
	"warden/internal/analysis/cache"
	"warden/internal/integrity"
	"warden/internal/observability/alerting"
	"warden/internal/protect"
	"warden/internal/update"
	"warden/pkg/logger"
	"warden/pkg/plugin"
)

// DefaultFactory 按配置装配真实的检查步骤。
func DefaultFactory(ctx context.Context, env Environment) (Collaborators, error) {
	inspections := env.Settings.Inspections
	static := inspections.Static

	analyzers, err := analysis.DefaultAnalyzers(static)
	if err != nil {
		return Collaborators{}, err
	}
	store, err := cache.Open(ctx, static.Cache, static.CachesLifespan(), env.WorkDir)
	if err != nil {
		return Collaborators{}, err
	}
	manager, err := analysis.NewManager(static, store, analysis.WithAnalyzers(analyzers...))
	if err != nil {
		_ = store.Close()
		return Collaborators{}, err
	}

	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if amqpCfg := env.Settings.Global.Notifications.AMQP; amqpCfg.URL != "" {
		notifier, err := alerting.NewAMQPNotifier(amqpCfg)
		if err != nil {
			logger.Named("launch").Warn("RabbitMQ 通知不可用，仅记录日志", slog.Any("error", err))
		} else {
			notifiers = append(notifiers, notifier)
		}
	}
	alerts := alerting.NewFanout(notifiers...)

	include := inspections.Extensions.Include
	indexLog := logger.Named("plugin")
	return Collaborators{
		Updater: update.New(env.Settings.Global.Updater, env.Build, env.WorkDir),
		Indexer: func(dir string) (*plugin.Context, bool) {
			return plugin.Index(dir, plugin.WithInclude(include...), plugin.WithLogger(indexLog))
		},
		Integrity: integrity.New(inspections.PluginsIntegrity, env.WorkDir),
		Analysis:  manager,
		Protector: protect.New(env.Settings.RuntimeProtect),
		Alerts:    alerts,
		Close: func() error {
			return errors.Join(store.Close(), alerts.Close())
		},
	}, nil
}

package launch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"warden/internal/attest"
	"warden/internal/buildinfo"
	"warden/internal/config"
	xerrors "warden/internal/errors"
	"warden/internal/i18n"
	"warden/internal/install"
	"warden/internal/loader"
	"warden/internal/observability/alerting"
	"warden/internal/observability/metrics"
	"warden/internal/schedule"
	"warden/pkg/logger"
	"warden/pkg/plugin"
)

// RuntimeDir 是 bundle 解包所在的工作目录子目录。
const RuntimeDir = "runtime"

// Orchestrator 拥有启动流水线与生命周期状态。
type Orchestrator struct {
	id            uuid.UUID
	payload       string
	extensionsDir string
	build         buildinfo.Properties

	attestor  Attestor
	installer Installer
	factory   Factory
	authority loader.Authority
	metrics   *metrics.Launch

	outMu    sync.Mutex
	out      io.Writer
	farewell bool

	fixedLogLevel bool

	state atomic.Int32

	mu       sync.Mutex
	stopping bool
	settings config.Set
	deps     Collaborators
	alerts   alerting.Dispatcher
	task     *schedule.Task

	extensions *plugin.Context
	extCount   int

	released sync.Once
	shutdown sync.Once

	log   *slog.Logger
	audit *slog.Logger
}

// Option 定制 Orchestrator。
type Option func(*Orchestrator)

// WithWorkDir 指定工作目录，默认 warden。
func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.installer = install.New(dir)
		}
	}
}

// WithExtensionsDir 指定扩展目录，默认 plugins。
func WithExtensionsDir(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.extensionsDir = dir
		}
	}
}

// WithBuild 覆盖从链接参数读取的构建信息。
func WithBuild(build buildinfo.Properties) Option {
	return func(o *Orchestrator) {
		o.build = build
	}
}

// WithAttestor 替换环境校验器，默认按 WithAuthority 指定的加载机制校验。
func WithAttestor(a Attestor) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.attestor = a
		}
	}
}

// WithInstaller 替换安装管理器。
func WithInstaller(i Installer) Option {
	return func(o *Orchestrator) {
		if i != nil {
			o.installer = i
		}
	}
}

// WithFactory 替换协作者的构造方式。
func WithFactory(f Factory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.factory = f
		}
	}
}

// WithAuthority 替换用于包装被代理程序的加载机制。
func WithAuthority(a loader.Authority) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.authority = a
		}
	}
}

// WithOutput 指定面向用户的提示输出位置，默认标准输出。
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		if w != nil {
			o.out = w
		}
	}
}

// WithFixedLogLevel 表示日志级别由命令行决定，不再读取配置。
func WithFixedLogLevel() Option {
	return func(o *Orchestrator) {
		o.fixedLogLevel = true
	}
}

// New 创建编排器，构建信息无效时返回错误。
func New(payload string, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		id:            uuid.New(),
		payload:       payload,
		extensionsDir: "plugins",
		installer:     install.New("warden"),
		factory:       DefaultFactory,
		authority:     loader.System(),
		metrics:       metrics.New(),
		out:           os.Stdout,
		alerts:        alerting.NewFanout(&alerting.LogNotifier{}),
		log:           logger.Named("launch"),
		audit:         logger.Audit(),
	}
	build, err := buildinfo.Load()
	if err != nil {
		return nil, err
	}
	o.build = build
	for _, opt := range opts {
		opt(o)
	}
	if o.attestor == nil {
		o.attestor = attest.New(o.authority)
	}
	return o, nil
}

// ID 返回本次启动的唯一标识。
func (o *Orchestrator) ID() string { return o.id.String() }

// State 返回当前生命周期状态。
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Build 返回构建信息。
func (o *Orchestrator) Build() buildinfo.Properties { return o.build }

// Metrics 返回本次启动的指标。
func (o *Orchestrator) Metrics() *metrics.Launch { return o.metrics }

type step struct {
	name string
	run  func(ctx context.Context) Outcome
}

// Launch 依次执行全部检查并移交控制权，只能调用一次。
func (o *Orchestrator) Launch(ctx context.Context) Outcome {
	if err := o.begin(); err != nil {
		return Fatal(err)
	}
	return o.pipeline(ctx, []step{
		{"attest", o.attest},
		{"locate", o.locate},
		{"install", o.install},
		{"update", o.startUpdater},
		{"index", o.index},
		{"integrity", o.checkIntegrity},
		{"analysis", o.analyze},
		{"protect", o.arm},
		{"handoff", o.handoff},
	})
}

// Verify 以工具模式执行检查：不启用防护，也不移交控制权。
func (o *Orchestrator) Verify(ctx context.Context) Outcome {
	if err := o.begin(); err != nil {
		return Fatal(err)
	}
	outcome := o.pipeline(ctx, []step{
		{"attest", o.attest},
		{"locate", o.locate},
		{"install", o.install},
		{"index", o.index},
		{"integrity", o.checkIntegrity},
		{"analysis", o.analyze},
	})
	if outcome.Continued() {
		o.state.Store(int32(LaunchedTool))
		o.println(Say(i18n.ToolReport, o.extCount))
		o.audit.Info("工具模式检查完成", slog.String("launch_id", o.ID()), slog.Int("extensions", o.extCount))
	}
	return outcome
}

func (o *Orchestrator) begin() error {
	if o.state.CompareAndSwap(int32(NotLaunched), int32(Launching)) {
		o.metrics.LastLaunch.SetToCurrentTime()
		return nil
	}
	return xerrors.New(xerrors.CodeAlreadyLaunched,
		fmt.Sprintf("启动流程已处于 %s 状态，不能再次启动", o.State()))
}

// pipeline 在每一步之前检查取消与关闭，已关闭时不再输出提示或发送告警。
func (o *Orchestrator) pipeline(ctx context.Context, steps []step) Outcome {
	for _, s := range steps {
		if err := o.interrupted(ctx); err != nil {
			o.log.Warn("启动流程被中断", slog.String("launch_id", o.ID()), slog.String("stage", s.name), slog.Any("error", err))
			o.metrics.ObserveStage(s.name, 0, KindFatal.String())
			return Fatal(err)
		}
		start := time.Now()
		outcome := s.run(ctx)
		o.metrics.ObserveStage(s.name, time.Since(start), outcome.Kind().String())
		if !outcome.Continued() {
			if !o.isStopping() {
				o.report(ctx, s.name, outcome)
			}
			return outcome
		}
	}
	return Continue()
}

func (o *Orchestrator) interrupted(ctx context.Context) error {
	if err := xerrors.FromContext(ctx, "启动流程已取消"); err != nil {
		return err
	}
	if o.isStopping() {
		return xerrors.New(xerrors.CodeCanceled, "启动流程已关闭")
	}
	return nil
}

func (o *Orchestrator) isStopping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopping
}

func (o *Orchestrator) report(ctx context.Context, stage string, outcome Outcome) {
	for _, line := range outcome.lines {
		o.println(line)
	}
	attrs := []any{slog.String("launch_id", o.ID()), slog.String("stage", stage)}

	var event alerting.Event
	if outcome.Kind() == KindFatal {
		o.log.Error("启动失败", append(attrs, slog.Any("error", outcome.err))...)
		event = alerting.FromError(o.ID(), stage, outcome.err)
	} else {
		o.log.Warn("启动已中止", attrs...)
		event = alerting.FromError(o.ID(), stage, xerrors.New(xerrors.CodeGateAbort, fmt.Sprintf("%s 步骤中止了启动", stage)))
	}
	if len(outcome.lines) > 0 {
		event.Message = outcome.lines[0].String()
	}
	if e, ok := xerrors.From(outcome.err); ok && !e.ShouldAlert() {
		return
	}

	o.mu.Lock()
	alerts := o.alerts
	o.mu.Unlock()
	if err := alerts.Notify(context.WithoutCancel(ctx), event); err != nil {
		o.log.Warn("告警投递失败", slog.Any("error", err))
	}
}

// println 在告别语输出后不再写入任何内容。
func (o *Orchestrator) println(line Line) {
	o.outMu.Lock()
	defer o.outMu.Unlock()
	if o.farewell {
		return
	}
	fmt.Fprintln(o.out, line.String())
}

func (o *Orchestrator) attest(ctx context.Context) Outcome {
	if err := o.attestor.Attest(ctx); err != nil {
		return Fatal(err)
	}
	return Continue()
}

// locate 在环境校验通过后输出版本与工作目录，并拒绝同目录下存在其他安装的情况。
func (o *Orchestrator) locate(ctx context.Context) Outcome {
	o.Banner()
	other, err := o.installer.CheckUnambiguous()
	if err != nil {
		return Fatal(err)
	}
	if other == "" {
		return Continue()
	}
	self, _ := os.Executable()
	err = xerrors.New(xerrors.CodeEnvironmentViolation, "检测到多个安装: "+other, xerrors.WithMetadata("other", other))
	return Fatal(err, Say(i18n.AmbiguousInstall1, self, other), Say(i18n.AmbiguousInstall2))
}

func (o *Orchestrator) install(ctx context.Context) Outcome {
	set, err := o.installer.EnsureInstalled()
	if err != nil {
		return Fatal(err)
	}
	if err := i18n.SetLocale(set.Global.Locale); err != nil {
		o.log.Warn("无法切换语言", slog.String("locale", set.Global.Locale), slog.Any("error", err))
	}
	if !o.fixedLogLevel {
		logger.SetLevel(set.Global.Log.Level)
	}

	deps, err := o.factory(ctx, Environment{Settings: set, WorkDir: o.installer.WorkDir(), Build: o.build})
	if err != nil {
		return Fatal(xerrors.Wrap(xerrors.CodeInstallationFailure, err, "初始化检查组件失败"))
	}

	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		o.closeDeps(deps)
		return Fatal(xerrors.New(xerrors.CodeCanceled, "启动流程已关闭"))
	}
	o.settings = set
	o.deps = deps
	if deps.Alerts != nil {
		o.alerts = deps.Alerts
	}
	o.mu.Unlock()
	return Continue()
}

// startUpdater 同步完成首次检查后返回，后续检查在后台进行。
func (o *Orchestrator) startUpdater(ctx context.Context) Outcome {
	if o.deps.Updater == nil {
		return Continue()
	}
	task := o.deps.Updater.Start(ctx, o.settings.Global.Updater.IntervalMinutes)
	o.mu.Lock()
	if o.stopping {
		o.mu.Unlock()
		task.Stop()
		return Fatal(xerrors.New(xerrors.CodeCanceled, "启动流程已关闭"))
	}
	o.task = task
	o.mu.Unlock()
	return Continue()
}

func (o *Orchestrator) index(ctx context.Context) Outcome {
	extensions, ok := o.deps.Indexer(o.extensionsDir)
	if !ok {
		return AbortWith(Say(i18n.IndexAbort1, o.extensionsDir), Say(i18n.IndexAbort2))
	}
	o.extensions = extensions
	o.extCount = extensions.Len()
	o.metrics.ExtensionsIndexed.Set(float64(extensions.Len()))
	o.log.Info("扩展索引完成", slog.Int("extensions", extensions.Len()), slog.String("dir", extensions.Dir()))
	return Continue()
}

func (o *Orchestrator) checkIntegrity(ctx context.Context) Outcome {
	verdict := o.deps.Integrity.Check(ctx, o.extensions)
	o.audit.Info("完整性检查结论", slog.String("launch_id", o.ID()), slog.String("verdict", verdict.String()))
	if verdict == Abort {
		return AbortWith(Say(i18n.IntegrityAbort1), Say(i18n.IntegrityAbort2))
	}
	return Continue()
}

func (o *Orchestrator) analyze(ctx context.Context) Outcome {
	inspected := o.deps.Analysis.InspectAll(ctx, o.extensions)
	stats := o.deps.Analysis.Stats()
	o.metrics.ObserveCache(stats.Hits, stats.Misses)
	if inspected == Abort {
		o.audit.Info("静态分析结论", slog.String("launch_id", o.ID()), slog.String("phase", "inspect"), slog.String("verdict", inspected.String()))
		return AbortWith(Say(i18n.AnalysisAbort1), Say(i18n.AnalysisAbort2))
	}
	processed := o.deps.Analysis.ProcessResults(ctx)
	o.audit.Info("静态分析结论", slog.String("launch_id", o.ID()), slog.String("phase", "process"), slog.String("verdict", processed.String()))
	if processed == Abort {
		return AbortWith(Say(i18n.AnalysisAbort1), Say(i18n.AnalysisAbort2))
	}
	return Continue()
}

func (o *Orchestrator) arm(ctx context.Context) Outcome {
	if err := o.deps.Protector.Arm(ctx, o.extensions); err != nil {
		return Fatal(err)
	}
	return Continue()
}

// handoff 包装并调用被代理程序。Unix 下调用成功后进程映像被替换，不会返回。
func (o *Orchestrator) handoff(ctx context.Context) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := xerrors.New(xerrors.CodeHandoffFailure, fmt.Sprintf("移交过程中发生 panic: %v", r))
			outcome = Fatal(err, Say(i18n.HandoffFailed1), Say(i18n.HandoffFailed2))
		}
	}()

	runtimeDir := filepath.Join(o.installer.WorkDir(), RuntimeDir)
	l, err := o.authority.Wrap(o.payload, loader.WithRuntimeDir(runtimeDir))
	if err != nil {
		return handoffFailure(err, "包装被代理程序失败")
	}
	ctx = loader.WithActive(loader.WithAuthority(ctx, o.authority), l)

	entry, err := l.Resolve(ctx)
	if err != nil {
		_ = l.Close()
		return handoffFailure(err, "解析入口失败")
	}

	result := l.LoadResult()
	o.metrics.ObserveLoader(result.Successes, result.Failures)
	o.println(Say(i18n.HandoffBegin, l.EntryPoint()))
	o.println(Say(i18n.HandoffStats, result.Successes, result.Failures))
	if err := l.Close(); err != nil {
		o.log.Warn("关闭加载器失败", slog.Any("error", err))
	}

	// 从这里开始已视为移交。之后 Invoke 失败也不会回到 Launching，只能以非零码退出。
	o.state.Store(int32(LaunchedProxy))
	o.audit.Info("移交控制权", slog.String("launch_id", o.ID()),
		slog.String("entry_point", entry.Name()), slog.String("authority", o.authority.Name()),
		slog.Int("loaded", result.Successes), slog.Int("failed", result.Failures))
	o.release()

	if err := entry.Invoke(ctx, nil); err != nil {
		return handoffFailure(err, "调用入口失败")
	}
	return Continue()
}

func handoffFailure(err error, message string) Outcome {
	return Fatal(xerrors.Wrap(xerrors.CodeHandoffFailure, err, message),
		Say(i18n.HandoffFailed1), Say(i18n.HandoffFailed2))
}

// release 释放后台任务与外部连接，并写出日志与指标。可重复调用。
func (o *Orchestrator) release() {
	o.released.Do(func() {
		o.mu.Lock()
		task, deps, settings := o.task, o.deps, o.settings
		o.mu.Unlock()

		task.Stop()
		o.closeDeps(deps)
		if settings.Global.Metrics.Textfile {
			path := filepath.Join(o.installer.WorkDir(), "logs", metrics.TextfileName)
			if err := o.metrics.WriteTextfile(path); err != nil {
				o.log.Warn("写入指标文件失败", slog.String("path", path), slog.Any("error", err))
			}
		}
		_ = logger.Sync()
	})
}

func (o *Orchestrator) closeDeps(deps Collaborators) {
	if deps.Close == nil {
		return
	}
	if err := deps.Close(); err != nil {
		o.log.Warn("释放检查组件失败", slog.Any("error", err))
	}
}

// Shutdown 执行退出前的清理并输出告别语，可在任意阶段、任意次数调用。
// 之后仍在进行的步骤不会再创建组件或输出提示，告别语总是最后一行。
func (o *Orchestrator) Shutdown() {
	o.shutdown.Do(func() {
		o.mu.Lock()
		o.stopping = true
		o.mu.Unlock()
		o.release()

		o.outMu.Lock()
		defer o.outMu.Unlock()
		fmt.Fprintln(o.out, Say(i18n.ShutdownBye).String())
		o.farewell = true
	})
}

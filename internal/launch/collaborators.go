package launch

import (
	"context"

	"warden/internal/analysis"
	"warden/internal/buildinfo"
	"warden/internal/config"
	"warden/internal/observability/alerting"
	"warden/internal/schedule"
	"warden/pkg/plugin"
)

// Attestor 校验执行环境。
type Attestor interface {
	Attest(ctx context.Context) error
}

// Installer 维护工作目录下的支持文件。
type Installer interface {
	WorkDir() string
	EnsureInstalled() (config.Set, error)
	CheckUnambiguous() (string, error)
}

// UpdateChecker 在后台检查新版本，失败不影响启动。
type UpdateChecker interface {
	Start(ctx context.Context, intervalMinutes int) *schedule.Task
}

// Indexer 枚举扩展目录，返回 false 表示中止启动。
type Indexer func(dir string) (*plugin.Context, bool)

// IntegrityGate 对扩展执行完整性检查。
type IntegrityGate interface {
	Check(ctx context.Context, extensions *plugin.Context) Verdict
}

// AnalysisGate 分两阶段执行静态分析。
type AnalysisGate interface {
	InspectAll(ctx context.Context, extensions *plugin.Context) Verdict
	ProcessResults(ctx context.Context) Verdict
	Stats() analysis.Stats
}

// Protector 启用运行时防护。
type Protector interface {
	Arm(ctx context.Context, extensions *plugin.Context) error
}

// Environment 是构造协作者所需的已解析配置。
type Environment struct {
	Settings config.Set
	WorkDir  string
	Build    buildinfo.Properties
}

// Collaborators 是安装完成后才能构造的步骤实现。
type Collaborators struct {
	Updater   UpdateChecker
	Indexer   Indexer
	Integrity IntegrityGate
	Analysis  AnalysisGate
	Protector Protector
	Alerts    *alerting.FanoutDispatcher
	Close     func() error
}

// Factory 根据配置构造协作者。
type Factory func(ctx context.Context, env Environment) (Collaborators, error)

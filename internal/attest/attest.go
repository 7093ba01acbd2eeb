// Package attest 在任何其他步骤之前确认执行环境可信。
package attest

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	xerrors "warden/internal/errors"
	"warden/internal/loader"
	"warden/pkg/logger"
)

// OverrideVariables 会改变代码加载方式的环境变量。
var OverrideVariables = []string{"LD_PRELOAD", "LD_AUDIT", "DYLD_INSERT_LIBRARIES", "WARDEN_LOADER"}

// Facts 是一次检查时采集到的环境事实，检查结束后即丢弃。
type Facts struct {
	// SandboxLayer 非空表示检测到外部安全层，例如调试器或严格 seccomp。
	SandboxLayer string
	// LoaderOverride 非空表示存在覆盖加载方式的环境变量。
	LoaderOverride string
	System         loader.Authority
	Module         loader.Authority
	Thread         loader.Authority
}

// Probe 负责探测外部安全层。
type Probe interface {
	// SandboxLayer 返回检测到的外部安全层描述，未检测到时返回空字符串。
	SandboxLayer() (string, error)
}

// Attestor 执行环境检查。
type Attestor struct {
	probe  Probe
	module loader.Authority
	lookup func(string) (string, bool)
	log    *slog.Logger
}

// Option 定制 Attestor。
type Option func(*Attestor)

// WithProbe 替换外部安全层探测器。
func WithProbe(p Probe) Option {
	return func(a *Attestor) {
		if p != nil {
			a.probe = p
		}
	}
}

// WithEnvLookup 替换环境变量读取函数。
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(a *Attestor) {
		if fn != nil {
			a.lookup = fn
		}
	}
}

// New 创建检查器，module 为编排器自身使用的加载权威。
func New(module loader.Authority, opts ...Option) *Attestor {
	a := &Attestor{
		probe:  defaultProbe(),
		module: module,
		lookup: os.LookupEnv,
		log:    logger.Named("attest"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attest 依次检查外部安全层、加载方式覆盖与加载权威一致性，成功时不产生输出。
func (a *Attestor) Attest(ctx context.Context) error {
	facts, err := a.collect(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeEnvironmentViolation, err, "采集执行环境信息失败")
	}
	if facts.SandboxLayer != "" {
		return violation("检测到外部安全层: "+facts.SandboxLayer, "sandbox", facts.SandboxLayer)
	}
	if facts.LoaderOverride != "" {
		return violation("检测到加载方式覆盖: "+facts.LoaderOverride, "override", facts.LoaderOverride)
	}
	observed := []struct {
		name string
		auth loader.Authority
	}{
		{"system", facts.System},
		{"module", facts.Module},
		{"thread", facts.Thread},
	}
	expected := loader.System()
	for _, o := range observed {
		if o.auth != expected {
			return violation(fmt.Sprintf("%s 加载权威不是系统默认值 (%s)", o.name, authorityName(o.auth)), "authority", o.name)
		}
	}
	a.log.Debug("执行环境检查通过")
	return nil
}

func (a *Attestor) collect(ctx context.Context) (Facts, error) {
	layer, err := a.probe.SandboxLayer()
	if err != nil {
		return Facts{}, err
	}
	facts := Facts{
		SandboxLayer: layer,
		System:       loader.System(),
		Module:       a.module,
		Thread:       loader.AuthorityFrom(ctx),
	}
	for _, name := range OverrideVariables {
		if value, ok := a.lookup(name); ok && value != "" {
			facts.LoaderOverride = name
			break
		}
	}
	return facts, nil
}

func violation(message, key, value string) error {
	return xerrors.New(xerrors.CodeEnvironmentViolation, message, xerrors.WithMetadata(key, value))
}

func authorityName(a loader.Authority) string {
	if a == nil {
		return "<nil>"
	}
	return a.Name()
}

// Package protect 在移交控制权之前布防运行时保护。
package protect

import (
	"context"
	"log/slog"
	"os"

	"warden/internal/config"
	xerrors "warden/internal/errors"
	"warden/pkg/logger"
	"warden/pkg/plugin"
)

// Hardener 应用进程级限制，按平台实现。
type Hardener interface {
	NoNewPrivileges() error
	DisableCoreDumps() error
	LimitOpenFiles(max uint64) error
}

// Protector 根据配置布防。
type Protector struct {
	cfg      config.RuntimeProtect
	hardener Hardener
	unsetenv func(string) error
	log      *slog.Logger
}

// Option 定制 Protector。
type Option func(*Protector)

// WithHardener 替换平台相关的限制实现。
func WithHardener(h Hardener) Option {
	return func(p *Protector) {
		if h != nil {
			p.hardener = h
		}
	}
}

// WithUnsetenv 替换环境变量删除函数。
func WithUnsetenv(fn func(string) error) Option {
	return func(p *Protector) {
		if fn != nil {
			p.unsetenv = fn
		}
	}
}

// New 创建 Protector。
func New(cfg config.RuntimeProtect, opts ...Option) *Protector {
	p := &Protector{
		cfg:      cfg,
		hardener: platformHardener{},
		unsetenv: os.Unsetenv,
		log:      logger.Named("protect"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Arm 校验扩展能力、清理环境变量并应用进程限制，任何失败都视为致命错误。
func (p *Protector) Arm(ctx context.Context, extensions *plugin.Context) error {
	if !p.cfg.Enabled {
		p.log.Warn("运行时保护已关闭")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.cfg.Capabilities.Policy().CheckAll(extensions); err != nil {
		return xerrors.Wrap(xerrors.CodeProtectionFailure, err, "扩展能力不符合策略")
	}
	for _, name := range p.cfg.DenyEnv {
		if _, ok := os.LookupEnv(name); !ok {
			continue
		}
		if err := p.unsetenv(name); err != nil {
			return xerrors.Wrap(xerrors.CodeProtectionFailure, err, "清理环境变量 "+name+" 失败")
		}
		p.log.Info("已清理环境变量", slog.String("name", name))
	}
	if p.cfg.NoNewPrivileges {
		if err := p.hardener.NoNewPrivileges(); err != nil {
			return xerrors.Wrap(xerrors.CodeProtectionFailure, err, "设置 no_new_privs 失败")
		}
	}
	if p.cfg.DisableCoreDumps {
		if err := p.hardener.DisableCoreDumps(); err != nil {
			return xerrors.Wrap(xerrors.CodeProtectionFailure, err, "禁用 core dump 失败")
		}
	}
	if p.cfg.MaxOpenFiles > 0 {
		if err := p.hardener.LimitOpenFiles(p.cfg.MaxOpenFiles); err != nil {
			return xerrors.Wrap(xerrors.CodeProtectionFailure, err, "限制文件描述符数量失败")
		}
	}
	p.log.Info("运行时保护已布防", slog.Int("extensions", extensions.Len()))
	return nil
}

// Package loader 负责把被代理程序包装成可调用的入口，并在启动链路的最后一步完成移交。
package loader

import (
	"context"
	"fmt"
)

// LoadResult 统计包装阶段成功与失败加载的条目数量。
type LoadResult struct {
	Successes int
	Failures  int
}

// String 便于日志输出。
func (r LoadResult) String() string {
	return fmt.Sprintf("%d loaded, %d failed", r.Successes, r.Failures)
}

// EntryPoint 是移交目标，只暴露一个以参数列表调用的能力。
type EntryPoint interface {
	Name() string
	Invoke(ctx context.Context, args []string) error
}

// Loader 是拦截式加载器，持有被包装程序的全部资源。
type Loader interface {
	// EntryPoint 返回入口名称。
	EntryPoint() string
	// Resolve 解析出可调用的入口。
	Resolve(ctx context.Context) (EntryPoint, error)
	// LoadResult 返回包装阶段的统计。
	LoadResult() LoadResult
	// Close 释放加载器持有的资源，入口仍可调用。
	Close() error
}

// Authority 决定代码如何被加载。
type Authority interface {
	Name() string
	Wrap(path string, opts ...WrapOption) (Loader, error)
}

// WrapOption 调整单次包装行为。
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	runtimeDir string
}

// WithRuntimeDir 指定 bundle 解包目录。
func WithRuntimeDir(dir string) WrapOption {
	return func(c *wrapConfig) {
		if dir != "" {
			c.runtimeDir = dir
		}
	}
}

var system Authority = &defaultAuthority{}

// System 返回进程级默认加载权威。
func System() Authority {
	return system
}

type authorityKey struct{}

type activeKey struct{}

// WithAuthority 在上下文中记录调用方使用的加载权威。
func WithAuthority(ctx context.Context, a Authority) context.Context {
	return context.WithValue(ctx, authorityKey{}, a)
}

// AuthorityFrom 返回上下文中的加载权威，未设置时为系统默认值。
func AuthorityFrom(ctx context.Context) Authority {
	if a, ok := ctx.Value(authorityKey{}).(Authority); ok && a != nil {
		return a
	}
	return System()
}

// WithActive 将加载器设为上下文中的活动加载器。
func WithActive(ctx context.Context, l Loader) context.Context {
	return context.WithValue(ctx, activeKey{}, l)
}

// ActiveFrom 返回上下文中的活动加载器。
func ActiveFrom(ctx context.Context) (Loader, bool) {
	l, ok := ctx.Value(activeKey{}).(Loader)
	return l, ok && l != nil
}

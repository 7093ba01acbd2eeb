package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"warden/internal/config"
	"warden/internal/gate"
	"warden/internal/i18n"
	"warden/pkg/logger"
	"warden/pkg/plugin"
)

// Result 是一个扩展的分析结果。
type Result struct {
	Extension plugin.Descriptor
	Findings  []Finding
	Cached    bool
}

// Stats 汇总一次分析的缓存命中情况与耗时。
type Stats struct {
	Hits    int
	Misses  int
	Failed  int
	Elapsed time.Duration
}

// Manager 并发分析扩展并汇总结果。
type Manager struct {
	analyzers   []Analyzer
	fingerprint string
	store       Store
	lifespan    time.Duration
	workers     int
	threshold   Severity
	now         func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	results map[string]Result
	stats   Stats

	log   *slog.Logger
	audit *slog.Logger
}

// Option 定制 Manager。
type Option func(*Manager)

// WithAnalyzers 指定分析器。
func WithAnalyzers(analyzers ...Analyzer) Option {
	return func(m *Manager) {
		m.analyzers = append(m.analyzers, analyzers...)
	}
}

// WithClock 替换时间来源。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager 创建分析管理器，store 为 nil 时不使用缓存。
func NewManager(cfg config.Static, store Store, opts ...Option) (*Manager, error) {
	threshold, err := ParseSeverity(cfg.AbortSeverity)
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	m := &Manager{
		store:     store,
		lifespan:  cfg.CachesLifespan(),
		workers:   workers,
		threshold: threshold,
		now:       time.Now,
		results:   make(map[string]Result),
		log:       logger.Named("analysis"),
		audit:     logger.Audit(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.fingerprint = fingerprintOf(m.analyzers)
	return m, nil
}

// fingerprintOf 汇总分析器名称与各自的规则摘要，顺序敏感。
func fingerprintOf(analyzers []Analyzer) string {
	h := sha256.New()
	for _, a := range analyzers {
		io.WriteString(h, a.Name())
		h.Write([]byte{0})
		if f, ok := a.(Fingerprinter); ok {
			io.WriteString(h, f.Fingerprint())
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DefaultAnalyzers 根据配置构造规则分析器与凭据分析器。
func DefaultAnalyzers(cfg config.Static) ([]Analyzer, error) {
	rules, err := NewRuleAnalyzer(cfg.Rules)
	if err != nil {
		return nil, err
	}
	analyzers := []Analyzer{rules}
	if cfg.Secrets.Enabled {
		secrets, err := NewSecretsAnalyzer()
		if err != nil {
			return nil, err
		}
		analyzers = append(analyzers, secrets)
	}
	return analyzers, nil
}

// InspectAll 并发分析全部扩展，所有任务结束后才返回。
// 任何扩展无法完成分析时返回 Abort。
func (m *Manager) InspectAll(ctx context.Context, extensions *plugin.Context) gate.Verdict {
	start := time.Now()
	var hits, misses, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, ext := range extensions.Extensions() {
		ext := ext
		g.Go(func() error {
			res, err := m.inspect(gctx, ext)
			if err != nil {
				failed.Add(1)
				m.log.Error("扩展分析失败", slog.String("extension", ext.Name), slog.Any("error", err))
				return nil
			}
			if res.Cached {
				hits.Add(1)
			} else {
				misses.Add(1)
			}
			m.mu.Lock()
			m.results[ext.Name] = res
			m.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	m.mu.Lock()
	m.stats = Stats{Hits: int(hits.Load()), Misses: int(misses.Load()), Failed: int(failed.Load()), Elapsed: elapsed}
	m.mu.Unlock()
	m.log.Info(i18n.T(i18n.AnalysisElapsed, fmt.Sprintf("%.3f", elapsed.Seconds())),
		slog.Int("cache_hits", int(hits.Load())), slog.Int("analysed", int(misses.Load())))

	m.purge(ctx)
	if failed.Load() > 0 {
		return gate.Abort
	}
	return gate.Pass
}

// inspect 对同一扩展的并发请求只执行一次。
func (m *Manager) inspect(ctx context.Context, ext plugin.Descriptor) (Result, error) {
	v, err, _ := m.group.Do(ext.ID.String(), func() (any, error) {
		if entry, ok := m.cached(ctx, ext); ok {
			return Result{Extension: ext, Findings: entry.Findings, Cached: true}, nil
		}
		findings, err := m.analyze(ctx, ext)
		if err != nil {
			return nil, err
		}
		m.save(ctx, ext, findings)
		return Result{Extension: ext, Findings: findings}, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (m *Manager) cached(ctx context.Context, ext plugin.Descriptor) (*Entry, bool) {
	if m.store == nil || m.lifespan <= 0 {
		return nil, false
	}
	entry, err := m.store.Load(ctx, ext.ID)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			m.log.Warn("读取分析缓存失败", slog.String("extension", ext.Name), slog.Any("error", err))
		}
		return nil, false
	}
	if entry.Digest != ext.DigestHex() || entry.Fingerprint != m.fingerprint {
		return nil, false
	}
	if m.now().Sub(entry.InspectedAt) >= m.lifespan {
		return nil, false
	}
	return entry, true
}

func (m *Manager) analyze(ctx context.Context, ext plugin.Descriptor) ([]Finding, error) {
	findings := []Finding{}
	for _, a := range m.analyzers {
		found, err := a.Analyze(ctx, ext)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name(), err)
		}
		findings = append(findings, found...)
	}
	return findings, nil
}

func (m *Manager) save(ctx context.Context, ext plugin.Descriptor, findings []Finding) {
	if m.store == nil {
		return
	}
	entry := Entry{
		ExtensionID: ext.ID,
		Name:        ext.Name,
		Digest:      ext.DigestHex(),
		Fingerprint: m.fingerprint,
		InspectedAt: m.now().UTC(),
		Findings:    findings,
	}
	if err := m.store.Save(ctx, entry); err != nil {
		m.log.Warn("写入分析缓存失败", slog.String("extension", ext.Name), slog.Any("error", err))
	}
}

func (m *Manager) purge(ctx context.Context) {
	if m.store == nil || m.lifespan <= 0 {
		return
	}
	removed, err := m.store.Purge(ctx, m.now().Add(-m.lifespan))
	if err != nil {
		m.log.Warn("清理过期分析缓存失败", slog.Any("error", err))
		return
	}
	if removed > 0 {
		m.log.Debug("已清理过期分析缓存", slog.Int("removed", removed))
	}
}

// ProcessResults 对已保存的结果分级，存在不低于阈值的问题时返回 Abort。
func (m *Manager) ProcessResults(ctx context.Context) gate.Verdict {
	blocking := 0
	for _, res := range m.Results() {
		if ctx.Err() != nil {
			return gate.Abort
		}
		for _, f := range res.Findings {
			attrs := []any{
				slog.String("extension", res.Extension.Name),
				slog.String("analyzer", f.Analyzer),
				slog.String("rule", f.Rule),
				slog.String("severity", string(f.Severity)),
				slog.String("message", f.Message),
			}
			if f.Location != "" {
				attrs = append(attrs, slog.String("location", f.Location))
			}
			if f.Severity.AtLeast(m.threshold) {
				blocking++
				m.log.Error("静态分析发现阻断问题", attrs...)
				m.audit.Warn("blocking finding", attrs...)
				continue
			}
			m.log.Warn("静态分析发现问题", attrs...)
		}
	}
	if blocking > 0 {
		return gate.Abort
	}
	return gate.Pass
}

// Results 按扩展名排序返回结果。
func (m *Manager) Results() []Result {
	m.mu.Lock()
	out := make([]Result, 0, len(m.results))
	for _, res := range m.results {
		out = append(out, res)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Extension.Name < out[j].Extension.Name })
	return out
}

// Stats 返回最近一次 InspectAll 的统计。
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Package metrics 记录一次启动的各阶段耗时与结果，并以 Prometheus 文本文件形式输出。
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warden"

// TextfileName 是工作目录 logs 下的指标文件名。
const TextfileName = "warden.prom"

// Launch 汇总一次启动的指标。
type Launch struct {
	registry *prometheus.Registry

	StageDuration     *prometheus.GaugeVec // labels: stage
	StageOutcome      *prometheus.GaugeVec // labels: stage, outcome
	ExtensionsIndexed prometheus.Gauge
	CacheLookups      *prometheus.GaugeVec // labels: result
	Findings          *prometheus.GaugeVec // labels: severity
	LoaderEntries     *prometheus.GaugeVec // labels: result
	LastLaunch        prometheus.Gauge
}

// New 在独立的 registry 上创建指标。
func New() *Launch {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Launch{
		registry: reg,
		StageDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each launch stage",
		}, []string{"stage"}),
		StageOutcome: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_outcome",
			Help:      "Outcome of each launch stage, 1 for the observed outcome",
		}, []string{"stage", "outcome"}),
		ExtensionsIndexed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extensions_indexed",
			Help:      "Number of extensions found by the indexer",
		}),
		CacheLookups: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analysis_cache_lookups",
			Help:      "Analysis cache hits and misses during the last launch",
		}, []string{"result"}),
		Findings: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analysis_findings",
			Help:      "Static analysis findings by severity",
		}, []string{"severity"}),
		LoaderEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loader_entries",
			Help:      "Entries wrapped by the intercepting loader",
		}, []string{"result"}),
		LastLaunch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_launch_timestamp_seconds",
			Help:      "Unix time of the last launch attempt",
		}),
	}
}

// Registry 返回底层 registry。
func (l *Launch) Registry() *prometheus.Registry {
	return l.registry
}

// ObserveStage 记录阶段耗时与结果。
func (l *Launch) ObserveStage(stage string, d time.Duration, outcome string) {
	if l == nil {
		return
	}
	l.StageDuration.WithLabelValues(stage).Set(d.Seconds())
	l.StageOutcome.WithLabelValues(stage, outcome).Set(1)
}

// ObserveCache 记录缓存命中情况。
func (l *Launch) ObserveCache(hits, misses int) {
	if l == nil {
		return
	}
	l.CacheLookups.WithLabelValues("hit").Set(float64(hits))
	l.CacheLookups.WithLabelValues("miss").Set(float64(misses))
}

// ObserveLoader 记录加载器统计。
func (l *Launch) ObserveLoader(successes, failures int) {
	if l == nil {
		return
	}
	l.LoaderEntries.WithLabelValues("success").Set(float64(successes))
	l.LoaderEntries.WithLabelValues("failure").Set(float64(failures))
}

// WriteTextfile 以原子方式写出指标文件，供 node_exporter textfile collector 采集。
func (l *Launch) WriteTextfile(path string) error {
	if l == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建指标目录失败: %w", err)
	}
	return prometheus.WriteToTextfile(path, l.registry)
}

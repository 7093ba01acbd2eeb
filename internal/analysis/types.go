// Package analysis 对扩展做静态分析，并根据发现的问题决定是否允许启动。
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"warden/pkg/plugin"
)

// Severity 是问题的严重程度。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity 解析配置中的严重程度。
func ParseSeverity(value string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	if s.rank() < 0 {
		return "", fmt.Errorf("未知的严重程度 %q", value)
	}
	return s, nil
}

func (s Severity) rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return -1
	}
}

// AtLeast 判断 s 是否不低于 threshold。
func (s Severity) AtLeast(threshold Severity) bool {
	return s.rank() >= threshold.rank()
}

// Finding 是分析器报告的一个问题。
type Finding struct {
	Analyzer string   `yaml:"analyzer" json:"analyzer"`
	Rule     string   `yaml:"rule" json:"rule"`
	Severity Severity `yaml:"severity" json:"severity"`
	Message  string   `yaml:"message" json:"message"`
	Location string   `yaml:"location,omitempty" json:"location,omitempty"`
}

// Analyzer 检查单个扩展。
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, ext plugin.Descriptor) ([]Finding, error)
}

// Fingerprinter 由规则可配置的分析器实现，返回当前规则集的摘要。
// 摘要变化后旧的缓存结果不再命中。
type Fingerprinter interface {
	Fingerprint() string
}

// ErrCacheMiss 表示缓存中没有可用结果。
var ErrCacheMiss = errors.New("analysis: cache miss")

// Entry 是一个扩展的缓存分析结果。
type Entry struct {
	ExtensionID uuid.UUID `yaml:"extension_id" json:"extension_id"`
	Name        string    `yaml:"name" json:"name"`
	Digest      string    `yaml:"digest" json:"digest"`
	Fingerprint string    `yaml:"fingerprint" json:"fingerprint"`
	InspectedAt time.Time `yaml:"inspected_at" json:"inspected_at"`
	Findings    []Finding `yaml:"findings" json:"findings"`
}

// Store 持久化分析结果，实现位于 analysis/cache。
type Store interface {
	// Load 返回缓存结果，不存在时返回 ErrCacheMiss。
	Load(ctx context.Context, id uuid.UUID) (*Entry, error)
	Save(ctx context.Context, entry Entry) error
	// Purge 删除 before 之前生成的结果，返回删除数量。
	Purge(ctx context.Context, before time.Time) (int, error)
	Close() error
}

package analysis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"

	"warden/pkg/plugin"
)

// SecretsAnalyzer 使用 gitleaks 默认规则查找扩展中内嵌的凭据。
type SecretsAnalyzer struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewSecretsAnalyzer 使用 gitleaks 内置配置初始化检测器。
func NewSecretsAnalyzer() (*SecretsAnalyzer, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewBufferString(config.DefaultConfig)); err != nil {
		return nil, fmt.Errorf("读取 gitleaks 内置配置失败: %w", err)
	}
	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("解析 gitleaks 内置配置失败: %w", err)
	}
	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("转换 gitleaks 配置失败: %w", err)
	}
	return &SecretsAnalyzer{detector: detect.NewDetector(cfg)}, nil
}

// Name 实现 Analyzer。
func (a *SecretsAnalyzer) Name() string { return "secrets" }

// Fingerprint 实现 Fingerprinter，随 gitleaks 内置规则变化。
func (a *SecretsAnalyzer) Fingerprint() string {
	sum := sha256.Sum256([]byte(config.DefaultConfig))
	return hex.EncodeToString(sum[:])
}

// Analyze 实现 Analyzer。内嵌凭据按 warning 级别报告。
func (a *SecretsAnalyzer) Analyze(ctx context.Context, ext plugin.Descriptor) ([]Finding, error) {
	blobs, err := readBlobs(ext.Path)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, b := range blobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a.mu.Lock()
		results, err := a.detector.DetectReader(bytes.NewReader(b.data), 32)
		a.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("凭据扫描失败: %w", err)
		}
		for _, r := range results {
			findings = append(findings, Finding{
				Analyzer: a.Name(),
				Rule:     r.RuleID,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("%s at line %d", r.Description, r.StartLine),
				Location: b.location,
			})
		}
	}
	return findings, nil
}

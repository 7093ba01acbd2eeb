package analysis

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"

	regexp "github.com/wasilibs/go-re2"
	"gopkg.in/yaml.v3"

	"warden/pkg/plugin"
)

//go:embed rules/default.yml
var defaultRules []byte

// Rule 是一条基于正则的检测规则。
type Rule struct {
	ID          string   `yaml:"id"`
	Severity    Severity `yaml:"severity"`
	Description string   `yaml:"description"`
	Pattern     string   `yaml:"pattern"`

	re *regexp.Regexp
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// RuleAnalyzer 使用 RE2 规则扫描扩展内容。
type RuleAnalyzer struct {
	rules []Rule
}

// NewRuleAnalyzer 加载内置规则，extra 非空时追加该文件中的规则。
func NewRuleAnalyzer(extra string) (*RuleAnalyzer, error) {
	rules, err := parseRules(defaultRules)
	if err != nil {
		return nil, fmt.Errorf("内置规则无效: %w", err)
	}
	if extra != "" {
		raw, err := os.ReadFile(extra)
		if err != nil {
			return nil, fmt.Errorf("读取规则文件失败: %w", err)
		}
		more, err := parseRules(raw)
		if err != nil {
			return nil, fmt.Errorf("规则文件 %s 无效: %w", extra, err)
		}
		rules = append(rules, more...)
	}
	return &RuleAnalyzer{rules: rules}, nil
}

func parseRules(raw []byte) ([]Rule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	for i := range doc.Rules {
		r := &doc.Rules[i]
		if r.ID == "" {
			return nil, fmt.Errorf("第 %d 条规则缺少 id", i+1)
		}
		if r.Severity.rank() < 0 {
			return nil, fmt.Errorf("规则 %s 的严重程度 %q 无效", r.ID, r.Severity)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("规则 %s 的正则无效: %w", r.ID, err)
		}
		r.re = re
	}
	return doc.Rules, nil
}

// Name 实现 Analyzer。
func (a *RuleAnalyzer) Name() string { return "rules" }

// Fingerprint 实现 Fingerprinter，覆盖每条规则的 id、严重程度与正则。
func (a *RuleAnalyzer) Fingerprint() string {
	h := sha256.New()
	for _, r := range a.rules {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00", r.ID, r.Severity, r.Pattern)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Rules 返回已加载的规则数量。
func (a *RuleAnalyzer) Rules() int { return len(a.rules) }

// Analyze 对扩展及其归档条目逐条匹配规则，每条规则在同一位置只报告一次。
func (a *RuleAnalyzer) Analyze(ctx context.Context, ext plugin.Descriptor) ([]Finding, error) {
	blobs, err := readBlobs(ext.Path)
	if err != nil {
		return nil, err
	}
	var findings []Finding
	for _, b := range blobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, rule := range a.rules {
			matches := rule.re.FindAllIndex(b.data, -1)
			if len(matches) == 0 {
				continue
			}
			findings = append(findings, Finding{
				Analyzer: a.Name(),
				Rule:     rule.ID,
				Severity: rule.Severity,
				Message:  fmt.Sprintf("%s (%d matches, first at offset %d)", rule.Description, len(matches), matches[0][0]),
				Location: b.location,
			})
		}
	}
	return findings, nil
}

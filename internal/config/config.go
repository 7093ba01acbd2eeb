package config

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"warden/pkg/plugin"
)

// 配置组文件名，均位于工作目录根部。
const (
	GlobalFile         = "global.yml"
	InspectionsFile    = "inspections.yml"
	RuntimeProtectFile = "runtime_protect.yml"
)

//go:embed defaults/*.yml
var defaultFiles embed.FS

// Set 汇总三组配置。
type Set struct {
	Global         Global         `yaml:"-"`
	Inspections    Inspections    `yaml:"-"`
	RuntimeProtect RuntimeProtect `yaml:"-"`
}

// Global 描述语言、日志、升级检查与通知等全局参数。
type Global struct {
	Locale        string        `yaml:"locale" validate:"required,bcp47_language_tag"`
	Log           Log           `yaml:"log"`
	Updater       Updater       `yaml:"updater"`
	Notifications Notifications `yaml:"notifications"`
	Metrics       Metrics       `yaml:"metrics"`
}

// Log 控制日志级别、格式与滚动策略。
type Log struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=text json"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// Updater 控制升级检查。
type Updater struct {
	IntervalMinutes int    `yaml:"interval_minutes" validate:"gte=-1"`
	Download        bool   `yaml:"download"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" validate:"gte=1,lte=300"`
}

// Timeout 返回单次请求的超时时间。
func (u Updater) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// Notifications 描述启动告警的外部投递方式。
type Notifications struct {
	AMQP AMQP `yaml:"amqp"`
}

// AMQP 为空 URL 时不投递。
type AMQP struct {
	URL   string `yaml:"url" validate:"omitempty,url"`
	Queue string `yaml:"queue" validate:"required_with=URL"`
}

// Metrics 控制 Prometheus 文本文件输出。
type Metrics struct {
	Textfile bool `yaml:"textfile"`
}

// Inspections 描述扩展的静态分析与完整性检查。
type Inspections struct {
	Static           Static           `yaml:"static"`
	PluginsIntegrity PluginsIntegrity `yaml:"plugins_integrity"`
	Extensions       Extensions       `yaml:"extensions"`
}

// Static 是静态分析相关配置。
type Static struct {
	CachesLifespanDays int     `yaml:"caches_lifespan_days" validate:"gte=0"`
	Workers            int     `yaml:"workers" validate:"gte=1,lte=64"`
	AbortSeverity      string  `yaml:"abort_severity" validate:"oneof=info warning critical"`
	Rules              string  `yaml:"rules"`
	Secrets            Secrets `yaml:"secrets"`
	Cache              Cache   `yaml:"cache"`
}

// CachesLifespan 返回缓存有效期。
func (s Static) CachesLifespan() time.Duration {
	return time.Duration(s.CachesLifespanDays) * 24 * time.Hour
}

// Secrets 控制凭据扫描。
type Secrets struct {
	Enabled bool `yaml:"enabled"`
}

// Cache 选择分析结果缓存后端。
type Cache struct {
	Backend string `yaml:"backend" validate:"oneof=file redis mysql"`
	Redis   Redis  `yaml:"redis"`
	MySQL   MySQL  `yaml:"mysql"`
}

// Redis 缓存后端的连接参数。
type Redis struct {
	Address  string `yaml:"address" validate:"omitempty,hostname_port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// MySQL 缓存后端的连接参数。
type MySQL struct {
	DSN string `yaml:"dsn"`
}

// PluginsIntegrity 控制完整性检查。
type PluginsIntegrity struct {
	AbortServerStartup bool     `yaml:"abort_server_startup"`
	PinDigests         bool     `yaml:"pin_digests"`
	TrustedSigners     []string `yaml:"trusted_signers" validate:"dive,eth_addr"`
}

// Extensions 控制扩展目录的枚举方式。
type Extensions struct {
	Include []string `yaml:"include" validate:"min=1,dive,required"`
}

// RuntimeProtect 描述启动前布防的运行时保护策略。
type RuntimeProtect struct {
	Enabled          bool         `yaml:"enabled"`
	NoNewPrivileges  bool         `yaml:"no_new_privileges"`
	DisableCoreDumps bool         `yaml:"disable_core_dumps"`
	MaxOpenFiles     uint64       `yaml:"max_open_files"`
	DenyEnv          []string     `yaml:"deny_env" validate:"dive,required"`
	Capabilities     Capabilities `yaml:"capabilities"`
}

// Capabilities 是扩展可声明能力的白名单与黑名单。
type Capabilities struct {
	Allowed []plugin.Capability `yaml:"allowed" validate:"dive,oneof=filesystem network execution"`
	Denied  []plugin.Capability `yaml:"denied" validate:"dive,oneof=filesystem network execution"`
}

// Policy 转换为扩展隔离策略。
func (c Capabilities) Policy() plugin.IsolationPolicy {
	return plugin.IsolationPolicy{AllowedCapabilities: c.Allowed, DeniedCapabilities: c.Denied}
}

type group struct {
	file   string
	target any
}

func (s *Set) groups() []group {
	return []group{
		{file: GlobalFile, target: &s.Global},
		{file: InspectionsFile, target: &s.Inspections},
		{file: RuntimeProtectFile, target: &s.RuntimeProtect},
	}
}

// Files 返回所有配置组文件名。
func Files() []string {
	return []string{GlobalFile, InspectionsFile, RuntimeProtectFile}
}

// DefaultDocument 返回带注释的默认配置文件内容。
func DefaultDocument(file string) ([]byte, error) {
	return defaultFiles.ReadFile("defaults/" + file)
}

// Defaults 返回内置默认配置。
func Defaults() Set {
	var set Set
	for _, g := range set.groups() {
		raw, err := DefaultDocument(g.file)
		if err != nil {
			panic(fmt.Sprintf("config: 缺少内置默认配置 %s: %v", g.file, err))
		}
		if err := yaml.Unmarshal(raw, g.target); err != nil {
			panic(fmt.Sprintf("config: 内置默认配置 %s 无法解析: %v", g.file, err))
		}
	}
	return set
}

// Load 读取目录中的三组配置，缺省字段沿用默认值，并执行校验。
func Load(dir string) (Set, error) {
	set := Defaults()
	for _, g := range set.groups() {
		if err := decodeFile(filepath.Join(dir, g.file), g.target); err != nil {
			return Set{}, err
		}
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

func decodeFile(path string, target any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开配置文件 %s 失败: %w", path, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}
	return nil
}

// WriteMissing 为缺失的配置组写入默认文件，已存在的文件保持不变。
// 返回本次写入的文件名。
func WriteMissing(dir string) ([]string, error) {
	var written []string
	for _, name := range Files() {
		path := filepath.Join(dir, name)
		info, err := os.Lstat(path)
		switch {
		case err == nil:
			if info.IsDir() {
				return written, fmt.Errorf("配置文件位置 %s 被目录占用", path)
			}
			continue
		case !errors.Is(err, fs.ErrNotExist):
			return written, fmt.Errorf("检查配置文件 %s 失败: %w", path, err)
		}
		raw, err := DefaultDocument(name)
		if err != nil {
			return written, err
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return written, fmt.Errorf("写入默认配置 %s 失败: %w", path, err)
		}
		written = append(written, name)
	}
	return written, nil
}

// Package update 检查是否有更新的构建，并按配置下载到工作目录。
// 检查失败只记录日志，不会影响启动。
package update

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff"

	"warden/internal/buildinfo"
	"warden/internal/config"
	"warden/internal/i18n"
	"warden/internal/schedule"
	"warden/pkg/logger"
)

// Disabled 表示完全不进行升级检查。
const Disabled = -1

// Release 是发布源返回的最新构建描述。
type Release struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256"`
}

// Checker 负责查询发布源。
type Checker struct {
	cfg        config.Updater
	current    *semver.Version
	stageDir   string
	client     *http.Client
	newBackOff func() backoff.BackOff
	log        *slog.Logger
}

// Option 定制 Checker。
type Option func(*Checker)

// WithHTTPClient 替换 HTTP 客户端。
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBackOff 替换重试策略。
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Checker) {
		if fn != nil {
			c.newBackOff = fn
		}
	}
}

// New 创建检查器，下载的构建保存在 workDir/updates。
func New(cfg config.Updater, build buildinfo.Properties, workDir string, opts ...Option) *Checker {
	c := &Checker{
		cfg:      cfg,
		current:  build.Version,
		stageDir: filepath.Join(workDir, "updates"),
		client:   &http.Client{Timeout: cfg.Timeout()},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
		log: logger.Named("update"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 按分钟间隔启动检查：-1 不做任何网络访问，0 只同步检查一次，
// 大于 0 时先同步检查一次，再以固定周期重复。返回的任务可能为 nil。
func (c *Checker) Start(ctx context.Context, intervalMinutes int) *schedule.Task {
	if intervalMinutes < 0 {
		c.log.Debug("升级检查已禁用")
		return nil
	}
	if c.cfg.Endpoint == "" {
		c.log.Debug("未配置发布源，跳过升级检查")
		return nil
	}
	c.run(ctx)
	if intervalMinutes == 0 {
		return nil
	}
	return schedule.Every(ctx, time.Duration(intervalMinutes)*time.Minute, c.run)
}

func (c *Checker) run(ctx context.Context) {
	release, err := c.Check(ctx)
	if err != nil {
		c.log.Warn("升级检查失败", slog.Any("error", err))
		return
	}
	if release == nil {
		c.log.Debug("当前已是最新版本", slog.String("version", c.current.String()))
		return
	}
	c.log.Info(i18n.T(i18n.UpdateAvailable, release.Version, c.current.String()))
	if !c.cfg.Download {
		return
	}
	path, err := c.Stage(ctx, *release)
	if err != nil {
		c.log.Warn("下载新版本失败", slog.String("version", release.Version), slog.Any("error", err))
		return
	}
	c.log.Info(i18n.T(i18n.UpdateStaged, release.Version, path))
}

// Check 查询发布源，存在更新版本时返回该版本。
func (c *Checker) Check(ctx context.Context) (*Release, error) {
	var release Release
	err := c.retry(ctx, func() error {
		body, err := c.get(ctx, c.cfg.Endpoint)
		if err != nil {
			return err
		}
		defer body.Close()
		if err := json.NewDecoder(body).Decode(&release); err != nil {
			return backoff.Permanent(fmt.Errorf("解析发布信息失败: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	latest, err := semver.NewVersion(strings.TrimSpace(release.Version))
	if err != nil {
		return nil, fmt.Errorf("发布源返回的版本号 %q 不合法: %w", release.Version, err)
	}
	if c.current == nil || !latest.GreaterThan(c.current) {
		return nil, nil
	}
	release.Version = latest.String()
	return &release, nil
}

// Stage 下载并校验新版本，返回保存路径。
func (c *Checker) Stage(ctx context.Context, release Release) (string, error) {
	if release.URL == "" {
		return "", fmt.Errorf("版本 %s 没有下载地址", release.Version)
	}
	want, err := hex.DecodeString(release.SHA256)
	if err != nil || len(want) != sha256.Size {
		return "", fmt.Errorf("版本 %s 的摘要 %q 不合法", release.Version, release.SHA256)
	}
	if err := os.MkdirAll(c.stageDir, 0o755); err != nil {
		return "", err
	}
	target := filepath.Join(c.stageDir, "warden-"+release.Version)
	partial := target + ".part"
	err = c.retry(ctx, func() error {
		body, err := c.get(ctx, release.URL)
		if err != nil {
			return err
		}
		defer body.Close()
		return download(body, partial, want)
	})
	if err != nil {
		_ = os.Remove(partial)
		return "", err
	}
	if err := os.Rename(partial, target); err != nil {
		return "", err
	}
	return target, nil
}

func download(body io.Reader, path string, want []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return backoff.Permanent(err)
	}
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(file, h), body); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return backoff.Permanent(err)
	}
	if got := h.Sum(nil); !bytes.Equal(got, want) {
		return backoff.Permanent(fmt.Errorf("摘要不匹配: 期望 %x, 实际 %x", want, got))
	}
	return nil
}

func (c *Checker) retry(ctx context.Context, op func() error) error {
	err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
	if perm, ok := err.(*backoff.PermanentError); ok {
		return perm.Err
	}
	return err
}

func (c *Checker) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "warden/"+c.versionString())
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, fmt.Errorf("发布源返回 %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, backoff.Permanent(fmt.Errorf("发布源返回 %s", resp.Status))
	}
	return resp.Body, nil
}

func (c *Checker) versionString() string {
	if c.current == nil {
		return "unknown"
	}
	return c.current.String()
}

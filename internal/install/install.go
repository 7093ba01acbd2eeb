// Package install 负责确认工作目录、许可证与配置文件处于可用状态。
package install

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"warden/internal/config"
	xerrors "warden/internal/errors"
	"warden/pkg/logger"
)

// LicenseFile 是工作目录中的许可证文件名。
const LicenseFile = "LICENSE"

//go:embed LICENSE
var license []byte

// License 返回内置许可证文本。
func License() []byte {
	return append([]byte(nil), license...)
}

// Installer 管理工作目录的安装状态。
type Installer struct {
	workDir    string
	executable func() (string, error)
	log        *slog.Logger
}

// Option 定制 Installer。
type Option func(*Installer)

// WithExecutable 替换当前可执行文件路径的获取方式。
func WithExecutable(fn func() (string, error)) Option {
	return func(i *Installer) {
		if fn != nil {
			i.executable = fn
		}
	}
}

// New 创建安装管理器。
func New(workDir string, opts ...Option) *Installer {
	i := &Installer{
		workDir:    workDir,
		executable: os.Executable,
		log:        logger.Named("install"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// WorkDir 返回工作目录。
func (i *Installer) WorkDir() string {
	return i.workDir
}

// EnsureInstalled 保证工作目录存在、许可证与内置版本一致、配置组文件齐全，
// 然后加载并校验配置。重复调用结果相同。
func (i *Installer) EnsureInstalled() (config.Set, error) {
	dir, err := filepath.Abs(i.workDir)
	if err != nil {
		return config.Set{}, failure(err, "解析工作目录失败")
	}
	parent := filepath.Dir(dir)
	if info, err := os.Stat(parent); err == nil && !info.IsDir() {
		return config.Set{}, xerrors.New(xerrors.CodeInstallationFailure, fmt.Sprintf("工作目录的上级 %s 不是目录", parent))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return config.Set{}, failure(err, fmt.Sprintf("创建工作目录 %s 失败", dir))
	}
	if err := i.installLicense(dir); err != nil {
		return config.Set{}, err
	}
	written, err := config.WriteMissing(dir)
	if err != nil {
		return config.Set{}, failure(err, "写入默认配置失败")
	}
	for _, name := range written {
		i.log.Info("已写入默认配置", slog.String("file", filepath.Join(dir, name)))
	}
	set, err := config.Load(dir)
	if err != nil {
		return config.Set{}, failure(err, "加载配置失败")
	}
	return set, nil
}

// installLicense 总是删除并重写许可证，避免被篡改的副本残留。
func (i *Installer) installLicense(dir string) error {
	path := filepath.Join(dir, LicenseFile)
	info, err := os.Lstat(path)
	switch {
	case err == nil && info.IsDir():
		return xerrors.New(xerrors.CodeInstallationFailure, fmt.Sprintf("许可证位置 %s 被目录占用", path))
	case err == nil:
		if err := os.Remove(path); err != nil {
			return failure(err, "删除旧许可证失败")
		}
	case !errors.Is(err, fs.ErrNotExist):
		return failure(err, "检查许可证失败")
	}
	if err := os.WriteFile(path, license, 0o644); err != nil {
		return failure(err, "写入许可证失败")
	}
	return nil
}

// CheckUnambiguous 检查当前可执行文件所在目录中是否还有其他 warden 可执行文件。
// 存在时返回对方路径。
func (i *Installer) CheckUnambiguous() (string, error) {
	self, err := i.executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(self); err == nil {
		self = resolved
	}
	entries, err := os.ReadDir(filepath.Dir(self))
	if err != nil {
		return "", err
	}
	selfName := filepath.Base(self)
	for _, entry := range entries {
		name := entry.Name()
		if name == selfName || !strings.HasPrefix(strings.ToLower(name), "warden") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			continue
		}
		return filepath.Join(filepath.Dir(self), name), nil
	}
	return "", nil
}

func failure(err error, message string) error {
	return xerrors.Wrap(xerrors.CodeInstallationFailure, err, message)
}

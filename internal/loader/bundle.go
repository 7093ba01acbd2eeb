package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	xerrors "warden/internal/errors"
	"warden/pkg/logger"
	"warden/pkg/plugin"
)

// BundleManifest 是 bundle 根目录下的 bundle.yml。
const BundleManifest = "bundle.yml"

type bundleManifest struct {
	Name       string `yaml:"name"`
	Entrypoint string `yaml:"entrypoint"`
}

type bundleLoader struct {
	path     string
	dir      string
	manifest bundleManifest
	result   LoadResult
	reader   *zip.ReadCloser
}

func openBundle(path, runtimeDir string) (*bundleLoader, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeHandoffFailure, err, "打开 bundle 失败")
	}
	manifest, err := readBundleManifest(&reader.Reader)
	if err != nil {
		reader.Close()
		return nil, xerrors.Wrap(xerrors.CodeHandoffFailure, err, "读取 bundle.yml 失败")
	}
	digest, _, err := plugin.Digest(path)
	if err != nil {
		reader.Close()
		return nil, xerrors.Wrap(xerrors.CodeHandoffFailure, err, "计算 bundle 摘要失败")
	}
	dir := filepath.Join(runtimeDir, fmt.Sprintf("%x", digest[:8]))
	l := &bundleLoader{path: path, dir: dir, manifest: manifest, reader: reader}
	if err := l.materialize(); err != nil {
		reader.Close()
		return nil, err
	}
	return l, nil
}

func readBundleManifest(r *zip.Reader) (bundleManifest, error) {
	var manifest bundleManifest
	f, err := r.Open(BundleManifest)
	if err != nil {
		return manifest, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&manifest); err != nil {
		return manifest, err
	}
	manifest.Entrypoint = strings.TrimSpace(manifest.Entrypoint)
	if manifest.Entrypoint == "" {
		return manifest, errors.New("entrypoint 不能为空")
	}
	return manifest, nil
}

// materialize 将每个条目解包到运行目录并统计成功与失败数量。
func (l *bundleLoader) materialize() error {
	log := logger.Named("loader")
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeHandoffFailure, err, "创建运行目录失败")
	}
	for _, f := range l.reader.File {
		if f.Name == BundleManifest || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if err := l.extract(f); err != nil {
			l.result.Failures++
			log.Warn("bundle 条目加载失败", slog.String("entry", f.Name), slog.Any("error", err))
			continue
		}
		l.result.Successes++
	}
	return nil
}

func (l *bundleLoader) extract(f *zip.File) error {
	target, err := l.target(f.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (l *bundleLoader) target(name string) (string, error) {
	target := filepath.Join(l.dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(l.dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("条目 %s 超出运行目录", name)
	}
	return target, nil
}

func (l *bundleLoader) EntryPoint() string {
	if l.manifest.Name != "" {
		return l.manifest.Name
	}
	return l.manifest.Entrypoint
}

func (l *bundleLoader) Resolve(context.Context) (EntryPoint, error) {
	target, err := l.target(l.manifest.Entrypoint)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeHandoffFailure, err, "入口路径非法")
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeHandoffFailure, err, fmt.Sprintf("入口 %s 未能加载", l.manifest.Entrypoint))
	}
	if info.Mode().Perm()&0o111 == 0 {
		return nil, xerrors.New(xerrors.CodeHandoffFailure, fmt.Sprintf("入口 %s 没有可执行权限", l.manifest.Entrypoint))
	}
	return &ExecEntryPoint{Path: target, Dir: l.dir}, nil
}

func (l *bundleLoader) LoadResult() LoadResult { return l.result }

func (l *bundleLoader) Close() error {
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}

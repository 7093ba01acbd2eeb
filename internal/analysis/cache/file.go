package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"warden/internal/analysis"
)

// FileStore 将每个扩展的结果保存为 <dir>/<id>.yml。
type FileStore struct {
	dir string
}

// NewFileStore 创建文件缓存目录。
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".yml")
}

// Load 实现 analysis.Store，损坏的文件视为未命中。
func (s *FileStore) Load(_ context.Context, id uuid.UUID) (*analysis.Entry, error) {
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, analysis.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("读取缓存失败: %w", err)
	}
	var entry analysis.Entry
	if err := yaml.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: 缓存文件损坏: %v", analysis.ErrCacheMiss, err)
	}
	if entry.ExtensionID != id {
		return nil, analysis.ErrCacheMiss
	}
	return &entry, nil
}

// Save 实现 analysis.Store，先写临时文件再替换。
func (s *FileStore) Save(_ context.Context, entry analysis.Entry) error {
	raw, err := yaml.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化缓存失败: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".cache-*.yml")
	if err != nil {
		return fmt.Errorf("创建缓存文件失败: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	return os.Rename(tmp.Name(), s.path(entry.ExtensionID))
}

// Purge 实现 analysis.Store。
func (s *FileStore) Purge(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yml") || strings.HasPrefix(name, ".") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".yml"))
		if err != nil {
			continue
		}
		entry, err := s.Load(ctx, id)
		stale := errors.Is(err, analysis.ErrCacheMiss) || (err == nil && entry.InspectedAt.Before(before))
		if !stale {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Close 实现 analysis.Store。
func (s *FileStore) Close() error { return nil }

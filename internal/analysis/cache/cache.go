// Package cache 提供分析结果缓存的文件、Redis 与 MySQL 实现。
package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"warden/internal/analysis"
	"warden/internal/config"
)

// Dir 是文件缓存在工作目录中的位置。
const Dir = "caches"

// Open 根据配置选择缓存后端。
func Open(ctx context.Context, cfg config.Cache, lifespan time.Duration, workDir string) (analysis.Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(filepath.Join(workDir, Dir))
	case "redis":
		return NewRedisStore(ctx, cfg.Redis, lifespan)
	case "mysql":
		return NewMySQLStore(ctx, cfg.MySQL.DSN)
	default:
		return nil, fmt.Errorf("未知的缓存后端 %q", cfg.Backend)
	}
}

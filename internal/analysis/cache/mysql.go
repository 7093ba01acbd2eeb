package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"warden/internal/analysis"
	xerrors "warden/internal/errors"
)

const mysqlSchema = `CREATE TABLE IF NOT EXISTS analysis_cache (
        extension_id CHAR(36) PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        digest CHAR(64) NOT NULL,
        fingerprint CHAR(64) NOT NULL DEFAULT '',
        inspected_at BIGINT NOT NULL,
        findings MEDIUMTEXT NOT NULL,
        INDEX idx_analysis_inspected (inspected_at)
)`

// MySQLStore 把结果保存在 analysis_cache 表中。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 连接 MySQL 并初始化表结构。
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}
	store := &MySQLStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, mysqlSchema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 analysis_cache 表失败")
	}
	return nil
}

// Load 实现 analysis.Store。
func (s *MySQLStore) Load(ctx context.Context, id uuid.UUID) (*analysis.Entry, error) {
	const query = `SELECT name, digest, fingerprint, inspected_at, findings FROM analysis_cache WHERE extension_id = ?`
	var (
		entry       = analysis.Entry{ExtensionID: id}
		inspectedAt int64
		findings    string
	)
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(&entry.Name, &entry.Digest, &entry.Fingerprint, &inspectedAt, &findings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analysis.ErrCacheMiss
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询分析缓存失败")
	}
	if err := json.Unmarshal([]byte(findings), &entry.Findings); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrCacheMiss, err)
	}
	entry.InspectedAt = time.UnixMilli(inspectedAt).UTC()
	return &entry, nil
}

// Save 实现 analysis.Store。
func (s *MySQLStore) Save(ctx context.Context, entry analysis.Entry) error {
	const stmt = `INSERT INTO analysis_cache (extension_id, name, digest, fingerprint, inspected_at, findings)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE name = VALUES(name), digest = VALUES(digest), fingerprint = VALUES(fingerprint), inspected_at = VALUES(inspected_at), findings = VALUES(findings)`
	findings, err := json.Marshal(entry.Findings)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt, entry.ExtensionID.String(), entry.Name, entry.Digest, entry.Fingerprint, entry.InspectedAt.UnixMilli(), string(findings)); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入分析缓存失败")
	}
	return nil
}

// Purge 实现 analysis.Store。
func (s *MySQLStore) Purge(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE inspected_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "清理分析缓存失败")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

package cache

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"warden/internal/analysis"
)

func TestMySQLStoreSaveAndLoad(t *testing.T) {
	t.Parallel()

	entry := sampleEntry("a.so", time.UnixMilli(1767225600000).UTC())
	findings := `[{"analyzer":"rules","rule":"shell-spawn","severity":"info","message":"spawns a system shell"}]`
	db, drv := newMockDB(t, []mockOperation{
		execOp(upsertSQL(), mockResult{rowsAffected: 1}),
		queryOp(selectSQL(), mockRowsData{
			columns: []string{"name", "digest", "fingerprint", "inspected_at", "findings"},
			values:  [][]driver.Value{{"a.so", "00ff", "rules-v1", int64(1767225600000), findings}},
		}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db}
	if err := store.Save(context.Background(), entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(context.Background(), entry.ExtensionID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Name != "a.so" || got.Fingerprint != "rules-v1" || !got.InspectedAt.Equal(entry.InspectedAt) {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if len(got.Findings) != 1 || got.Findings[0].Severity != analysis.SeverityInfo {
		t.Fatalf("unexpected findings: %+v", got.Findings)
	}
	if args := drv.ops[0].gotArgs; len(args) != 6 || args[0] != entry.ExtensionID.String() || args[3] != entry.Fingerprint || args[4] != int64(1767225600000) {
		t.Fatalf("unexpected upsert args: %v", args)
	}
}

func TestMySQLStoreLoadMiss(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		queryOp(selectSQL(), mockRowsData{columns: []string{"name", "digest", "fingerprint", "inspected_at", "findings"}}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db}
	if _, err := store.Load(context.Background(), sampleEntry("x.so", time.Now()).ExtensionID); !errors.Is(err, analysis.ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMySQLStorePurgeAndSchema(t *testing.T) {
	t.Parallel()

	before := time.UnixMilli(1767225600000)
	db, drv := newMockDB(t, []mockOperation{
		execOp(mysqlSchema, mockResult{}),
		execOp(`DELETE FROM analysis_cache WHERE inspected_at < ?`, mockResult{rowsAffected: 3}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &MySQLStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	removed, err := store.Purge(context.Background(), before)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
}

func TestNewMySQLStoreRequiresDSN(t *testing.T) {
	if _, err := NewMySQLStore(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func upsertSQL() string {
	return `INSERT INTO analysis_cache (extension_id, name, digest, fingerprint, inspected_at, findings)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE name = VALUES(name), digest = VALUES(digest), fingerprint = VALUES(fingerprint), inspected_at = VALUES(inspected_at), findings = VALUES(findings)`
}

func selectSQL() string {
	return `SELECT name, digest, fingerprint, inspected_at, findings FROM analysis_cache WHERE extension_id = ?`
}

type operationType int

const (
	opExec operationType = iota
	opQuery
)

type mockOperation struct {
	typ     operationType
	query   string
	result  mockResult
	rows    mockRowsData
	err     error
	gotArgs []driver.Value
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-cache-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *mockConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.next(opExec, query, args)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.next(opQuery, query, args)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(context.Context) error { return nil }

func (c *mockConn) next(expected operationType, query string, args []driver.NamedValue) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&c.driver.idx))
	if idx >= len(c.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &c.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&c.driver.idx, 1)
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalizeSQL(op.query), normalizeSQL(query))
	}
	for _, arg := range args {
		op.gotArgs = append(op.gotArgs, arg.Value)
	}
	return op, nil
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

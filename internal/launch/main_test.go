package launch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	xerrors "warden/internal/errors"
)

func TestMainWithoutArgumentsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	if code := Main(context.Background(), nil, Settings{Stdout: &out}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected three warning lines, got %d:\n%s", len(lines), out.String())
	}
}

func TestMainRejectsUnusablePayloads(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "directory", args: []string{dir}, want: "is a directory"},
		{name: "missing", args: []string{filepath.Join(dir, "missing")}, want: "does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if code := Main(context.Background(), tt.args, Settings{Stdout: &out}); code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Fatalf("expected %q in output:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestCheckPayloadReportsUsageErrors(t *testing.T) {
	dir := t.TempDir()
	for _, path := range []string{dir, filepath.Join(dir, "missing")} {
		_, err := CheckPayload(path)
		if xerrors.CodeOf(err) != xerrors.CodeUsage {
			t.Fatalf("%s: expected usage error, got %v", path, err)
		}
		if e, _ := xerrors.From(err); e.Metadata()["payload"] != path || e.ShouldAlert() {
			t.Fatalf("%s: unexpected error details %+v", path, e)
		}
	}
	file := filepath.Join(dir, "payload")
	if err := os.WriteFile(file, []byte("x"), 0o755); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if _, err := CheckPayload(file); err != nil {
		t.Fatalf("readable payload rejected: %v", err)
	}
}

func TestCheckPayloadUnreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, []byte("x"), 0o000); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	line, err := CheckPayload(path)
	if err == nil || !strings.Contains(line.String(), "cannot be read") {
		t.Fatalf("expected unreadable payload, got %q", line.String())
	}
}

func TestMainJoinsArgumentsIntoOnePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my payload")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	h := newHarness(t)
	code := Main(context.Background(), []string{filepath.Join(dir, "my"), "payload"}, Settings{Stdout: h.out}, h.options()...)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d:\n%s", code, h.out.String())
	}
	if h.authority.path != path {
		t.Fatalf("expected joined path %q, got %q", path, h.authority.path)
	}
	out := h.out.String()
	if !strings.HasPrefix(out, "warden 1.2.3\n") || !strings.Contains(out, "Working directory: ") {
		t.Fatalf("missing banner:\n%s", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "Bye!") {
		t.Fatalf("shutdown hook did not run:\n%s", out)
	}
}

func TestMainRefusesAmbiguousInstallation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, []byte("x"), 0o755); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	h := newHarness(t)
	h.installer.other = "/usr/local/bin/warden-old"
	if code := Main(context.Background(), []string{path}, Settings{Stdout: h.out}, h.options()...); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(h.out.String(), "warden-old") {
		t.Fatalf("missing ambiguity warning:\n%s", h.out.String())
	}
	calls := h.rec.list()
	if indexOf(calls, "attest") != 0 || indexOf(calls, "locate") != 1 || h.rec.has("install") {
		t.Fatalf("installation must be located after attestation and before install: %v", calls)
	}
}

func TestMainDryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, []byte("x"), 0o755); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	h := newHarness(t)
	if code := Main(context.Background(), []string{path}, Settings{DryRun: true, Stdout: h.out}, h.options()...); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if h.rec.has("invoke") {
		t.Fatal("dry run must not hand off")
	}
}

func TestMainCancelledContextExitsNonZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, []byte("x"), 0o755); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t)
	if code := Main(ctx, []string{path}, Settings{Stdout: h.out}, h.options()...); code != 1 {
		t.Fatalf("expected exit 1 after cancellation, got %d", code)
	}
	if n := strings.Count(h.out.String(), "Bye!"); n != 1 {
		t.Fatalf("expected exactly one farewell, got %d", n)
	}
}

package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"

	"warden/pkg/plugin"
)

type zipEntry struct {
	name    string
	content string
	mode    os.FileMode
}

func writeBundle(t *testing.T, path string, entries []zipEntry) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		if e.mode != 0 {
			hdr.SetMode(e.mode)
		}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := fw.Write([]byte(e.content)); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
}

func captureExec(t *testing.T) *[]string {
	t.Helper()
	var got []string
	orig := execProgram
	execProgram = func(_ context.Context, path string, argv, _ []string) error {
		got = append([]string{path}, argv...)
		return nil
	}
	t.Cleanup(func() { execProgram = orig })
	return &got
}

func TestAuthorityFromDefaultsToSystem(t *testing.T) {
	ctx := context.Background()
	if AuthorityFrom(ctx) != System() {
		t.Fatal("expected system authority when none is set")
	}
	other := &defaultAuthority{}
	if AuthorityFrom(WithAuthority(ctx, other)) == System() {
		t.Fatal("expected context authority to override the default")
	}
}

func TestWrapNativeExecutable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payload")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	ldr, err := System().Wrap(path)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	defer ldr.Close()
	if ldr.EntryPoint() != "payload" {
		t.Fatalf("unexpected entry point: %s", ldr.EntryPoint())
	}
	if got := ldr.LoadResult(); got != (LoadResult{Successes: 1}) {
		t.Fatalf("unexpected load result: %+v", got)
	}

	argv := captureExec(t)
	ep, err := ldr.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := ep.Invoke(context.Background(), nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(*argv) != 2 || (*argv)[0] != path || (*argv)[1] != path {
		t.Fatalf("unexpected exec call: %v", *argv)
	}
}

func TestWrapRejectsNonExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("plain data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := System().Wrap(path); err == nil {
		t.Fatal("expected error for non-executable payload")
	}
}

func TestWrapBundle(t *testing.T) {
	dir := t.TempDir()
	bundle := filepath.Join(dir, "app.zip")
	writeBundle(t, bundle, []zipEntry{
		{name: BundleManifest, content: "name: demo\nentrypoint: bin/app\n"},
		{name: "bin/app", content: "#!/bin/sh\n", mode: 0o755},
		{name: "conf/app.yml", content: "a: 1\n", mode: 0o644},
		{name: "lib.so", content: "blocked", mode: 0o644},
	})

	runtimeDir := filepath.Join(dir, "runtime")
	digest, _, err := plugin.Digest(bundle)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	blocked := filepath.Join(runtimeDir, fmt.Sprintf("%x", digest[:8]), "lib.so")
	if err := os.MkdirAll(blocked, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	ldr, err := System().Wrap(bundle, WithRuntimeDir(runtimeDir))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if ldr.EntryPoint() != "demo" {
		t.Fatalf("unexpected entry point: %s", ldr.EntryPoint())
	}
	if got := ldr.LoadResult(); got != (LoadResult{Successes: 2, Failures: 1}) {
		t.Fatalf("unexpected load result: %+v", got)
	}
	ep, err := ldr.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := ldr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ep.Name() != "app" {
		t.Fatalf("unexpected entry name: %s", ep.Name())
	}
	if _, err := os.Stat(filepath.Join(runtimeDir, fmt.Sprintf("%x", digest[:8]), "conf", "app.yml")); err != nil {
		t.Fatalf("entry not materialized: %v", err)
	}
}

func TestWrapBundleWithoutManifest(t *testing.T) {
	bundle := filepath.Join(t.TempDir(), "bare.zip")
	writeBundle(t, bundle, []zipEntry{{name: "bin/app", content: "x", mode: 0o755}})
	if _, err := System().Wrap(bundle); err == nil {
		t.Fatal("expected error for bundle without bundle.yml")
	}
}

func TestBundleTargetRejectsEscape(t *testing.T) {
	l := &bundleLoader{dir: filepath.Join(t.TempDir(), "rt")}
	if _, err := l.target("../outside"); err == nil {
		t.Fatal("expected path escape to be rejected")
	}
	if _, err := l.target("ok/file"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestActiveLoader(t *testing.T) {
	ctx := context.Background()
	if _, ok := ActiveFrom(ctx); ok {
		t.Fatal("no active loader expected")
	}
	ldr := &nativeLoader{path: "/bin/true"}
	got, ok := ActiveFrom(WithActive(ctx, ldr))
	if !ok || got != Loader(ldr) {
		t.Fatal("active loader not installed")
	}
}

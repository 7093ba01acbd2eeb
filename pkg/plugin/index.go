package plugin

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"warden/pkg/logger"
)

// DefaultInclude lists the file patterns indexed when none are configured.
var DefaultInclude = []string{"*.so", "*.zip", "*.jar"}

type indexer struct {
	include []string
	log     *slog.Logger
}

// Option modifies the behaviour of Index.
type Option func(*indexer)

// WithInclude overrides the glob patterns of files treated as extensions.
func WithInclude(patterns ...string) Option {
	return func(ix *indexer) {
		if len(patterns) > 0 {
			ix.include = patterns
		}
	}
}

// WithLogger sets the logger used to report skipped files.
func WithLogger(log *slog.Logger) Option {
	return func(ix *indexer) {
		if log != nil {
			ix.log = log
		}
	}
}

// Index enumerates the extensions in dir. It reports false when the directory
// is missing or unreadable, when a matching file cannot be hashed, or when it
// holds no extension. A malformed sidecar manifest does not drop the extension;
// the error is carried on Descriptor.ManifestErr for the gates to reject.
func Index(dir string, opts ...Option) (*Context, bool) {
	ix := &indexer{include: DefaultInclude, log: logger.Named("indexer")}
	for _, opt := range opts {
		opt(ix)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		ix.log.Warn("cannot read extensions directory", slog.String("dir", dir), slog.Any("error", err))
		return nil, false
	}

	var found []Descriptor
	for _, entry := range entries {
		name := entry.Name()
		if !ix.matches(name) {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			ix.log.Warn("cannot stat extension", slog.String("path", path), slog.Any("error", err))
			return nil, false
		}
		if !info.Mode().IsRegular() {
			ix.log.Warn("skipping non-regular entry", slog.String("path", path))
			continue
		}
		desc, err := describe(path)
		if err != nil {
			ix.log.Warn("cannot describe extension", slog.String("path", path), slog.Any("error", err))
			return nil, false
		}
		if desc.ManifestErr != nil {
			ix.log.Warn("invalid extension manifest", slog.String("path", path), slog.Any("error", desc.ManifestErr))
		}
		found = append(found, desc)
	}
	if len(found) == 0 {
		return nil, false
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	ix.log.Info("extensions indexed", slog.String("dir", dir), slog.Int("count", len(found)))
	return newContext(dir, found), true
}

func (ix *indexer) matches(name string) bool {
	if strings.HasSuffix(name, ManifestSuffix) || strings.HasSuffix(name, SignatureSuffix) {
		return false
	}
	for _, pattern := range ix.include {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func describe(path string) (Descriptor, error) {
	digest, size, err := Digest(path)
	if err != nil {
		return Descriptor{}, err
	}
	manifest, manifestErr := LoadManifest(path)
	name := filepath.Base(path)
	return Descriptor{
		Name:        name,
		Path:        path,
		ID:          uuid.NewSHA1(Namespace, []byte(name)),
		Digest:      digest,
		Size:        size,
		Manifest:    manifest,
		ManifestErr: manifestErr,
	}, nil
}

// Digest streams the file at path through SHA-256.
func Digest(path string) ([32]byte, int64, error) {
	var out [32]byte
	file, err := os.Open(path)
	if err != nil {
		return out, 0, err
	}
	defer file.Close()
	h := sha256.New()
	n, err := io.Copy(h, file)
	if err != nil {
		return out, 0, fmt.Errorf("hash %s: %w", path, err)
	}
	copy(out[:], h.Sum(nil))
	return out, n, nil
}

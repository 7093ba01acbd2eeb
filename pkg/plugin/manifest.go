package plugin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadManifest reads the sidecar manifest of the extension at path.
// A missing manifest is not an error and yields nil.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path + ManifestSuffix)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate ensures the manifest is internally consistent.
func (m Manifest) Validate() error {
	if m.Digest != "" {
		raw, err := hex.DecodeString(strings.TrimSpace(m.Digest))
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("manifest sha256 %q is not a hex encoded SHA-256 digest", m.Digest)
		}
	}
	for _, c := range m.Capabilities {
		switch c {
		case CapabilityFilesystem, CapabilityNetwork, CapabilityExecution:
		default:
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	return nil
}

// DeclaredDigest returns the digest declared by the manifest, if any.
func (m *Manifest) DeclaredDigest() ([32]byte, bool) {
	var out [32]byte
	if m == nil || m.Digest == "" {
		return out, false
	}
	raw, err := hex.DecodeString(strings.TrimSpace(m.Digest))
	if err != nil || len(raw) != len(out) {
		return out, false
	}
	copy(out[:], raw)
	return out, true
}

package plugin

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Namespace seeds the name-based identity of extensions.
var Namespace = uuid.MustParse("6f1c3a52-8e0b-4d7e-9a57-2b1f0c4e9d31")

// Descriptor identifies one indexed extension.
type Descriptor struct {
	Name     string
	Path     string
	ID       uuid.UUID
	Digest   [32]byte
	Size     int64
	Manifest *Manifest

	// ManifestErr is set when a sidecar manifest exists but cannot be used.
	ManifestErr error
}

// DigestHex returns the content digest hex encoded.
func (d Descriptor) DigestHex() string {
	return hex.EncodeToString(d.Digest[:])
}

func (d Descriptor) clone() Descriptor {
	d.Manifest = d.Manifest.clone()
	return d
}

// Context is the immutable, ordered set of extensions found at startup.
type Context struct {
	dir        string
	extensions []Descriptor
	byName     map[string]int
}

func newContext(dir string, extensions []Descriptor) *Context {
	byName := make(map[string]int, len(extensions))
	for i, d := range extensions {
		byName[d.Name] = i
	}
	return &Context{dir: dir, extensions: extensions, byName: byName}
}

// Dir returns the directory the extensions were indexed from.
func (c *Context) Dir() string {
	return c.dir
}

// Len returns the number of extensions.
func (c *Context) Len() int {
	if c == nil {
		return 0
	}
	return len(c.extensions)
}

// Extensions returns a copy of the descriptors in index order.
func (c *Context) Extensions() []Descriptor {
	if c == nil {
		return nil
	}
	out := make([]Descriptor, len(c.extensions))
	for i, d := range c.extensions {
		out[i] = d.clone()
	}
	return out
}

// Lookup finds an extension by file name.
func (c *Context) Lookup(name string) (Descriptor, bool) {
	if c == nil {
		return Descriptor{}, false
	}
	idx, ok := c.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return c.extensions[idx].clone(), true
}

package plugin

// Capability expresses optional features an extension may request access to.
type Capability string

const (
	CapabilityFilesystem Capability = "filesystem"
	CapabilityNetwork    Capability = "network"
	CapabilityExecution  Capability = "execution"
)

// Sidecar file suffixes that sit next to an extension and are never indexed themselves.
const (
	ManifestSuffix  = ".yml"
	SignatureSuffix = ".sig"
)

// Manifest is the optional metadata shipped alongside an extension as <file>.yml.
type Manifest struct {
	Name         string       `yaml:"name"`
	Version      string       `yaml:"version"`
	Author       string       `yaml:"author"`
	Description  string       `yaml:"description"`
	Digest       string       `yaml:"sha256"`
	Capabilities []Capability `yaml:"capabilities"`
}

func (m *Manifest) clone() *Manifest {
	if m == nil {
		return nil
	}
	dup := *m
	if m.Capabilities != nil {
		dup.Capabilities = append([]Capability(nil), m.Capabilities...)
	}
	return &dup
}

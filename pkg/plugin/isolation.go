package plugin

import (
	"errors"
	"fmt"
	"slices"
)

// IsolationPolicy governs which capabilities extensions may declare.
type IsolationPolicy struct {
	AllowedCapabilities []Capability `yaml:"allowedCapabilities"`
	DeniedCapabilities  []Capability `yaml:"deniedCapabilities"`
}

// Empty reports whether the policy restricts nothing.
func (p IsolationPolicy) Empty() bool {
	return len(p.AllowedCapabilities) == 0 && len(p.DeniedCapabilities) == 0
}

// Merge returns a new policy using values from other when not present.
func (p IsolationPolicy) Merge(other IsolationPolicy) IsolationPolicy {
	if len(p.AllowedCapabilities) == 0 {
		p.AllowedCapabilities = other.AllowedCapabilities
	}
	if len(p.DeniedCapabilities) == 0 {
		p.DeniedCapabilities = other.DeniedCapabilities
	}
	return p
}

// Check ensures the capabilities requested by an extension are allowed.
func (p IsolationPolicy) Check(requested []Capability) error {
	for _, c := range p.DeniedCapabilities {
		if slices.Contains(requested, c) {
			return fmt.Errorf("capability %s is explicitly denied", c)
		}
	}
	if len(p.AllowedCapabilities) == 0 {
		return nil
	}
	for _, c := range requested {
		if !slices.Contains(p.AllowedCapabilities, c) {
			return fmt.Errorf("capability %s not permitted", c)
		}
	}
	return nil
}

// CheckAll validates every extension of the context against the policy and
// joins the violations.
func (p IsolationPolicy) CheckAll(ctx *Context) error {
	if ctx == nil || p.Empty() {
		return nil
	}
	var errs []error
	for _, d := range ctx.extensions {
		if d.Manifest == nil {
			continue
		}
		if err := p.Check(d.Manifest.Capabilities); err != nil {
			errs = append(errs, fmt.Errorf("extension %s: %w", d.Name, err))
		}
	}
	return errors.Join(errs...)
}

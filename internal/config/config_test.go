package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"warden/pkg/plugin"
)

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	set := Defaults()
	if set.Global.Locale != "en" {
		t.Fatalf("unexpected locale: %s", set.Global.Locale)
	}
	if set.Global.Updater.IntervalMinutes != 1440 || set.Global.Updater.Download {
		t.Fatalf("unexpected updater defaults: %+v", set.Global.Updater)
	}
	if set.Inspections.Static.CachesLifespanDays != 7 {
		t.Fatalf("unexpected cache lifespan: %d", set.Inspections.Static.CachesLifespanDays)
	}
	if !set.Inspections.PluginsIntegrity.AbortServerStartup {
		t.Fatal("integrity violations must abort by default")
	}
	if want := []string{"*.so", "*.zip", "*.jar"}; !reflect.DeepEqual(set.Inspections.Extensions.Include, want) {
		t.Fatalf("unexpected include patterns: %v", set.Inspections.Extensions.Include)
	}
	if err := set.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestWriteMissingThenLoad(t *testing.T) {
	dir := t.TempDir()
	custom := "locale: zh\nupdater:\n  interval_minutes: -1\n"
	if err := os.WriteFile(filepath.Join(dir, GlobalFile), []byte(custom), 0o644); err != nil {
		t.Fatalf("write global: %v", err)
	}

	written, err := WriteMissing(dir)
	if err != nil {
		t.Fatalf("write missing: %v", err)
	}
	if want := []string{InspectionsFile, RuntimeProtectFile}; !reflect.DeepEqual(written, want) {
		t.Fatalf("unexpected written files: %v", written)
	}
	raw, _ := os.ReadFile(filepath.Join(dir, GlobalFile))
	if string(raw) != custom {
		t.Fatalf("existing file was modified: %q", raw)
	}

	set, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if set.Global.Locale != "zh" || set.Global.Updater.IntervalMinutes != -1 {
		t.Fatalf("overrides not applied: %+v", set.Global)
	}
	if set.Global.Updater.TimeoutSeconds != 10 {
		t.Fatalf("default not kept for omitted field: %d", set.Global.Updater.TimeoutSeconds)
	}

	again, err := WriteMissing(dir)
	if err != nil || len(again) != 0 {
		t.Fatalf("second write should be a no-op: %v %v", again, err)
	}
}

func TestWriteMissingRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, InspectionsFile), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := WriteMissing(dir); err == nil {
		t.Fatal("expected error when a directory occupies a config file")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{name: "interval", file: GlobalFile, content: "updater:\n  interval_minutes: -5\n", want: "updater.interval_minutes"},
		{name: "unknown key", file: GlobalFile, content: "verbose: true\n", want: "verbose"},
		{name: "severity", file: InspectionsFile, content: "static:\n  abort_severity: fatal\n", want: "static.abort_severity"},
		{name: "signer", file: InspectionsFile, content: "plugins_integrity:\n  trusted_signers: [nobody]\n", want: "trusted_signers"},
		{name: "redis without address", file: InspectionsFile, content: "static:\n  cache:\n    backend: redis\n    redis:\n      address: \"\"\n", want: "address"},
		{name: "capability", file: RuntimeProtectFile, content: "capabilities:\n  denied: [teleport]\n", want: "capabilities.denied"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if _, err := WriteMissing(dir); err != nil {
				t.Fatalf("write defaults: %v", err)
			}
			if err := os.WriteFile(filepath.Join(dir, tc.file), []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write %s: %v", tc.file, err)
			}
			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCapabilitiesPolicy(t *testing.T) {
	caps := Capabilities{Denied: []plugin.Capability{plugin.CapabilityNetwork}}
	policy := caps.Policy()
	if len(policy.DeniedCapabilities) != 1 || policy.DeniedCapabilities[0] != plugin.CapabilityNetwork {
		t.Fatalf("unexpected policy: %+v", policy)
	}
}

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAndWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveStage("index", 1500*time.Millisecond, "continue")
	m.ObserveCache(3, 1)
	m.ObserveLoader(2, 1)
	m.ExtensionsIndexed.Set(4)

	if got := testutil.ToFloat64(m.StageDuration.WithLabelValues("index")); got != 1.5 {
		t.Fatalf("unexpected stage duration: %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 3 {
		t.Fatalf("unexpected cache hits: %v", got)
	}

	path := filepath.Join(t.TempDir(), "logs", TextfileName)
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	for _, want := range []string{
		`warden_stage_outcome{outcome="continue",stage="index"} 1`,
		`warden_extensions_indexed 4`,
		`warden_loader_entries{result="failure"} 1`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("textfile missing %q:\n%s", want, raw)
		}
	}
}

func TestNilLaunchIsNoop(t *testing.T) {
	var m *Launch
	m.ObserveStage("index", time.Second, "continue")
	m.ObserveCache(1, 1)
	m.ObserveLoader(1, 0)
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), TextfileName)); err != nil {
		t.Fatalf("nil launch must not fail: %v", err)
	}
}

//go:build linux

package attest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProcStatusProbe(t *testing.T) {
	cases := []struct {
		name   string
		status string
		want   string
	}{
		{name: "clean", status: "Name:\tapp\nTracerPid:\t0\nSeccomp:\t0\n"},
		{name: "traced", status: "TracerPid:\t812\nSeccomp:\t0\n", want: "tracer (pid 812)"},
		{name: "strict seccomp", status: "TracerPid:\t0\nSeccomp:\t1\n", want: "seccomp strict mode"},
		{name: "filter seccomp", status: "TracerPid:\t0\nSeccomp:\t2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "status")
			if err := os.WriteFile(path, []byte(tc.status), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := procStatusProbe{path: path}.SandboxLayer()
			if err != nil {
				t.Fatalf("probe: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestWrapKeepsCodeAndCause(t *testing.T) {
	cause := stdErrors.New("permission denied")
	err := Wrap(CodeInstallationFailure, cause, "写入许可证失败", WithMetadata("path", "/tmp/LICENSE"))
	wrapped := fmt.Errorf("install: %w", err)

	if CodeOf(wrapped) != CodeInstallationFailure {
		t.Fatalf("unexpected code %s", CodeOf(wrapped))
	}
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("cause not reachable through errors.Is")
	}
	if !stdErrors.Is(wrapped, New(CodeInstallationFailure, "")) {
		t.Fatal("errors with the same code should match")
	}
	e, ok := From(wrapped)
	if !ok || e.Metadata()["path"] != "/tmp/LICENSE" {
		t.Fatalf("metadata lost: %+v", e)
	}
	if got := err.Error(); got != "[INSTALLATION_FAILURE] 写入许可证失败: permission denied" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestAttributes(t *testing.T) {
	tests := []struct {
		err      error
		severity Severity
		alert    bool
	}{
		{err: New(CodeGateAbort, ""), severity: SeverityWarning, alert: true},
		{err: New(CodeUsage, ""), severity: SeverityInfo, alert: false},
		{err: New(CodeUsage, "", WithSeverity(SeverityCritical), WithAlert(true)), severity: SeverityCritical, alert: true},
		{err: stdErrors.New("plain"), severity: SeverityCritical, alert: false},
	}
	for _, tt := range tests {
		if got := SeverityOf(tt.err); got != tt.severity {
			t.Fatalf("%v: severity %s, want %s", tt.err, got, tt.severity)
		}
		if got := ShouldAlert(tt.err); got != tt.alert {
			t.Fatalf("%v: alert %v, want %v", tt.err, got, tt.alert)
		}
	}
}

func TestDefaultMessageAndUnknownCodes(t *testing.T) {
	if got := New(CodeHandoffFailure, "").Message(); got != "handoff failure" {
		t.Fatalf("unexpected default message %q", got)
	}
	unknown := New(Code("MISSING"), "")
	if unknown.Message() != "unknown error" || unknown.Severity() != SeverityCritical || !unknown.ShouldAlert() {
		t.Fatalf("unknown codes should fall back to UNKNOWN attributes: %+v", unknown)
	}
}

func TestFromContext(t *testing.T) {
	if err := FromContext(context.Background(), "still running"); err != nil {
		t.Fatalf("live context must not produce an error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	canceled := FromContext(ctx, "启动流程已取消")
	if canceled.Code() != CodeCanceled || !stdErrors.Is(canceled, context.Canceled) {
		t.Fatalf("unexpected cancel error: %v", canceled)
	}
	if canceled.ShouldAlert() || canceled.Severity() != SeverityInfo {
		t.Fatal("operator cancellation must not alert")
	}

	ctx, cancel = context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	timeout := FromContext(ctx, "启动流程超时")
	if timeout.Code() != CodeTimeout || !stdErrors.Is(timeout, context.DeadlineExceeded) || !timeout.ShouldAlert() {
		t.Fatalf("unexpected timeout error: %v", timeout)
	}
}

// Package errors 定义启动流程使用的统一错误码，以及各错误码默认的严重程度与告警策略。
package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown              Code = "UNKNOWN"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeUsage                Code = "USAGE"
	CodeInvalidBuild         Code = "INVALID_BUILD"
	CodeAlreadyLaunched      Code = "ALREADY_LAUNCHED"
	CodeEnvironmentViolation Code = "ENVIRONMENT_VIOLATION"
	CodeInstallationFailure  Code = "INSTALLATION_FAILURE"
	CodeGateAbort            Code = "GATE_ABORT"
	CodeProtectionFailure    Code = "PROTECTION_FAILURE"
	CodeHandoffFailure       Code = "HANDOFF_FAILURE"
	CodeStorageFailure       Code = "STORAGE_FAILURE"
	CodeCanceled             Code = "CANCELED"
	CodeTimeout              Code = "TIMEOUT"
)

// class 是错误码的默认描述、严重程度与是否告警。
type class struct {
	message  string
	severity Severity
	alert    bool
}

var classes = map[Code]class{
	CodeUnknown:              {"unknown error", SeverityCritical, true},
	CodeInvalidArgument:      {"invalid argument", SeverityInfo, false},
	CodeUsage:                {"invalid invocation", SeverityInfo, false},
	CodeInvalidBuild:         {"invalid build properties", SeverityCritical, true},
	CodeAlreadyLaunched:      {"launch already started", SeverityCritical, true},
	CodeEnvironmentViolation: {"execution environment violation", SeverityCritical, true},
	CodeInstallationFailure:  {"installation failure", SeverityCritical, true},
	CodeGateAbort:            {"startup aborted by gate", SeverityWarning, true},
	CodeProtectionFailure:    {"runtime protection failure", SeverityCritical, true},
	CodeHandoffFailure:       {"handoff failure", SeverityCritical, true},
	CodeStorageFailure:       {"storage failure", SeverityCritical, true},
	CodeCanceled:             {"launch canceled", SeverityInfo, false},
	CodeTimeout:              {"operation timed out", SeverityWarning, true},
}

// classOf 未登记的错误码按 UNKNOWN 处理。
func classOf(code Code) class {
	if c, ok := classes[code]; ok {
		return c
	}
	return classes[CodeUnknown]
}

// DefaultMessage 返回错误码的默认描述。
func DefaultMessage(code Code) string { return classOf(code).message }

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	alert    *bool
	severity *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithAlert 覆盖错误码默认的告警策略。
func WithAlert(alert bool) Option {
	return func(e *Error) {
		e.alert = &alert
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建错误，message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = DefaultMessage(code)
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// FromContext 把 ctx 的取消或超时转换为 CANCELED 或 TIMEOUT，ctx 仍有效时返回 nil。
func FromContext(ctx context.Context, message string) *Error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, err, message)
	}
	return Wrap(CodeCanceled, err, message)
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 使相同错误码的 *Error 通过 errors.Is 匹配。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if e == nil || !ok || t == nil {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// ShouldAlert 判断是否需要告警。
func (e *Error) ShouldAlert() bool {
	switch {
	case e == nil:
		return false
	case e.alert != nil:
		return *e.alert
	default:
		return classOf(e.code).alert
	}
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	switch {
	case e == nil:
		return SeverityInfo
	case e.severity != nil:
		return *e.severity
	default:
		return classOf(e.code).severity
	}
}

// From 尝试从 error 链中取出统一错误类型。
func From(err error) (*Error, bool) {
	var target *Error
	if err != nil && stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// ShouldAlert 判断任意 error 是否需要告警。普通 error 不告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return e.ShouldAlert()
	}
	return false
}

// SeverityOf 返回错误严重程度。普通 error 视为 critical。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return classOf(CodeUnknown).severity
}

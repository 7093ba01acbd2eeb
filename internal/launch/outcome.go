package launch

import (
	"fmt"

	"warden/internal/i18n"
)

// Kind 区分步骤结果。
type Kind int

const (
	// KindContinue 继续执行下一步。
	KindContinue Kind = iota
	// KindAbort 策略性中止启动。
	KindAbort
	// KindFatal 意外错误导致启动失败。
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindAbort:
		return "abort"
	default:
		return "fatal"
	}
}

// Line 是一条待本地化输出的提示。
type Line struct {
	Key  i18n.Key
	Args []any
}

// Say 构造一条提示。
func Say(key i18n.Key, args ...any) Line {
	return Line{Key: key, Args: args}
}

func (l Line) String() string {
	return i18n.T(l.Key, l.Args...)
}

// Outcome 是流水线每一步的返回值，只有顶层驱动把它转换为退出码。
type Outcome struct {
	kind  Kind
	lines []Line
	err   error
}

// Continue 表示步骤通过。
func Continue() Outcome {
	return Outcome{kind: KindContinue}
}

// AbortWith 表示策略性中止，lines 说明原因与处理建议。
func AbortWith(lines ...Line) Outcome {
	return Outcome{kind: KindAbort, lines: lines}
}

// Fatal 表示意外错误。未指定提示时使用通用的致命错误提示。
func Fatal(err error, lines ...Line) Outcome {
	if len(lines) == 0 {
		lines = []Line{Say(i18n.Fatal1, err), Say(i18n.Fatal2)}
	}
	return Outcome{kind: KindFatal, lines: lines, err: err}
}

// Kind 返回结果类型。
func (o Outcome) Kind() Kind { return o.kind }

// Continued 判断是否可以继续。
func (o Outcome) Continued() bool { return o.kind == KindContinue }

// Lines 返回提示副本。
func (o Outcome) Lines() []Line {
	return append([]Line(nil), o.lines...)
}

// Err 返回致命错误。
func (o Outcome) Err() error { return o.err }

// ExitCode 把结果映射为进程退出码。
func (o Outcome) ExitCode() int {
	if o.kind == KindContinue {
		return 0
	}
	return 1
}

func (o Outcome) String() string {
	if o.err != nil {
		return fmt.Sprintf("%s: %v", o.kind, o.err)
	}
	return o.kind.String()
}

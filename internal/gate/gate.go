// Package gate 定义启动检查向编排器报告的唯一结果。
package gate

// Verdict 是一次检查的结论。
type Verdict int

const (
	// Pass 允许继续启动。
	Pass Verdict = iota
	// Abort 拒绝启动。
	Abort
)

func (v Verdict) String() string {
	if v == Abort {
		return "abort"
	}
	return "pass"
}

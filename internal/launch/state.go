package launch

import "warden/internal/gate"

// State 是编排器的生命周期状态。
type State int32

const (
	// NotLaunched 尚未开始启动。
	NotLaunched State = iota
	// Launching 流水线执行中。
	Launching
	// LaunchedProxy 控制权已移交给被代理程序。
	LaunchedProxy
	// LaunchedTool 以工具模式完成检查，不移交控制权。
	LaunchedTool
)

func (s State) String() string {
	switch s {
	case NotLaunched:
		return "not-launched"
	case Launching:
		return "launching"
	case LaunchedProxy:
		return "launched-proxy"
	case LaunchedTool:
		return "launched-tool"
	default:
		return "unknown"
	}
}

// Verdict 是检查步骤返回给编排器的唯一结论。
type Verdict = gate.Verdict

// 检查结论
const (
	Pass  = gate.Pass
	Abort = gate.Abort
)

package i18n

const (
	StartupWorkDir        Key = "startup.workDir"
	StartupNoArgs1        Key = "startup.noArgs.line1"
	StartupNoArgs2        Key = "startup.noArgs.line2"
	StartupNoArgs3        Key = "startup.noArgs.line3"
	PayloadNotExists      Key = "startup.payload.notExists"
	PayloadIsDir          Key = "startup.payload.isDir"
	PayloadCantRead       Key = "startup.payload.cantRead"
	AmbiguousInstall1     Key = "startup.ambiguous.line1"
	AmbiguousInstall2     Key = "startup.ambiguous.line2"
	IndexAbort1           Key = "index.abort.line1"
	IndexAbort2           Key = "index.abort.line2"
	IntegrityAbort1       Key = "integrity.abort.line1"
	IntegrityAbort2       Key = "integrity.abort.line2"
	AnalysisAbort1        Key = "analysis.abort.line1"
	AnalysisAbort2        Key = "analysis.abort.line2"
	AnalysisElapsed       Key = "analysis.elapsed"
	HandoffBegin          Key = "handoff.begin"
	HandoffStats          Key = "handoff.stats"
	HandoffFailed1        Key = "handoff.failed.line1"
	HandoffFailed2        Key = "handoff.failed.line2"
	Fatal1                Key = "fatal.line1"
	Fatal2                Key = "fatal.line2"
	ShutdownBye           Key = "shutdown.bye"
	ToolReport            Key = "tool.report"
	UpdateAvailable       Key = "update.available"
	UpdateStaged          Key = "update.staged"
	IntegrityWarnContinue Key = "integrity.warnContinue"
)

var english = map[Key]string{
	StartupWorkDir:        "Working directory: %s",
	StartupNoArgs1:        "No payload executable was specified.",
	StartupNoArgs2:        "Usage: warden [flags] <path to payload executable>",
	StartupNoArgs3:        "Pass the path of the program that warden should inspect and launch.",
	PayloadNotExists:      "The payload executable %s does not exist.",
	PayloadIsDir:          "The payload path %s is a directory, not an executable.",
	PayloadCantRead:       "The payload executable %s cannot be read; check its permissions.",
	AmbiguousInstall1:     "Ambiguous installation: %s and %s are both warden executables in the same directory.",
	AmbiguousInstall2:     "Remove one of them and start again.",
	IndexAbort1:           "No valid extensions were found in %s, so startup was aborted.",
	IndexAbort2:           "Make sure the extensions directory exists, is readable and contains at least one extension.",
	IntegrityAbort1:       "The integrity of one or more extensions has been violated, so startup was aborted.",
	IntegrityAbort2:       "Check the log for details, then restore the affected extensions or unpin them in integrity.yml.",
	IntegrityWarnContinue: "Integrity violations were found, but the configuration allows startup to continue.",
	AnalysisAbort1:        "Static analysis failed or produced blocking findings, so startup was aborted.",
	AnalysisAbort2:        "Check the log for details and remove or replace the affected extensions.",
	AnalysisElapsed:       "Static analysis finished in %s seconds.",
	HandoffBegin:          "Launching payload entry point %s.",
	HandoffStats:          "Loader statistics: %d loaded, %d failed.",
	HandoffFailed1:        "The payload could not be launched.",
	HandoffFailed2:        "Check the log for details; the payload may be corrupt or unsupported.",
	Fatal1:                "Startup failed: %s",
	Fatal2:                "This is not an expected policy outcome; check the log and report it if it persists.",
	ShutdownBye:           "Bye!",
	ToolReport:            "Dry run complete: %d extensions passed every gate.",
	UpdateAvailable:       "A newer build is available: %s (running %s).",
	UpdateStaged:          "Build %s was downloaded to %s; replace the current executable to update.",
}

var chinese = map[Key]string{
	StartupWorkDir:        "工作目录: %s",
	StartupNoArgs1:        "未指定需要启动的程序。",
	StartupNoArgs2:        "用法: warden [参数] <被代理程序的路径>",
	StartupNoArgs3:        "请传入需要 warden 检查并启动的程序路径。",
	PayloadNotExists:      "被代理程序 %s 不存在。",
	PayloadIsDir:          "路径 %s 是一个目录，而不是可执行文件。",
	PayloadCantRead:       "无法读取被代理程序 %s，请检查文件权限。",
	AmbiguousInstall1:     "安装存在歧义: %s 与 %s 都是同一目录下的 warden 可执行文件。",
	AmbiguousInstall2:     "请删除其中一个后重新启动。",
	IndexAbort1:           "在 %s 中没有找到有效的扩展，启动已中止。",
	IndexAbort2:           "请确认扩展目录存在、可读，并且至少包含一个扩展。",
	IntegrityAbort1:       "一个或多个扩展的完整性校验未通过，启动已中止。",
	IntegrityAbort2:       "请查看日志，恢复受影响的扩展，或在 integrity.yml 中取消固定。",
	IntegrityWarnContinue: "发现完整性问题，但当前配置允许继续启动。",
	AnalysisAbort1:        "静态分析失败或发现了阻断级别的问题，启动已中止。",
	AnalysisAbort2:        "请查看日志，移除或替换受影响的扩展。",
	AnalysisElapsed:       "静态分析耗时 %s 秒。",
	HandoffBegin:          "正在启动入口 %s。",
	HandoffStats:          "加载统计: 成功 %d，失败 %d。",
	HandoffFailed1:        "无法启动被代理程序。",
	HandoffFailed2:        "请查看日志，被代理程序可能已损坏或格式不受支持。",
	Fatal1:                "启动失败: %s",
	Fatal2:                "这不是预期的策略结果，请查看日志，若持续出现请反馈。",
	ShutdownBye:           "再见！",
	ToolReport:            "演练完成: %d 个扩展通过了全部检查。",
	UpdateAvailable:       "发现新版本: %s (当前版本 %s)。",
	UpdateStaged:          "版本 %s 已下载到 %s，替换当前可执行文件即可完成更新。",
}

package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	xerrors "warden/internal/errors"
	"warden/internal/i18n"
	"warden/pkg/logger"
)

// Settings 是命令行解析出的启动参数。
type Settings struct {
	DryRun bool
	Stdout io.Writer
}

// Main 是顶层驱动：校验参数、执行流水线，并把结果转换为退出码。
func Main(ctx context.Context, args []string, settings Settings, opts ...Option) int {
	out := settings.Stdout
	if out == nil {
		out = os.Stdout
	}
	if len(args) == 0 {
		logUsage(xerrors.New(xerrors.CodeUsage, "缺少被代理程序参数"))
		printLines(out, Say(i18n.StartupNoArgs1), Say(i18n.StartupNoArgs2), Say(i18n.StartupNoArgs3))
		return 1
	}
	payload := strings.Join(args, " ")
	if line, err := CheckPayload(payload); err != nil {
		logUsage(err)
		printLines(out, line)
		return 1
	}

	o, err := New(payload, append([]Option{WithOutput(out)}, opts...)...)
	if err != nil {
		printLines(out, Fatal(err).Lines()...)
		return 1
	}
	defer o.Shutdown()
	stop := context.AfterFunc(ctx, o.Shutdown)
	defer stop()

	var outcome Outcome
	if settings.DryRun {
		outcome = o.Verify(ctx)
	} else {
		outcome = o.Launch(ctx)
	}
	if ctx.Err() != nil {
		return 1
	}
	return outcome.ExitCode()
}

// CheckPayload 依次检查路径存在、不是目录、可读。失败时返回对应提示与 USAGE 错误。
func CheckPayload(path string) (Line, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Say(i18n.PayloadNotExists, path), usageError("被代理程序不存在", path, err)
	case err != nil:
		return Say(i18n.PayloadCantRead, path), usageError("无法读取被代理程序", path, err)
	case info.IsDir():
		return Say(i18n.PayloadIsDir, path), usageError("被代理程序是目录", path, nil)
	}
	file, err := os.Open(path)
	if err != nil {
		return Say(i18n.PayloadCantRead, path), usageError("无法读取被代理程序", path, err)
	}
	file.Close()
	return Line{}, nil
}

func usageError(message, path string, cause error) error {
	return xerrors.Wrap(xerrors.CodeUsage, cause, message, xerrors.WithMetadata("payload", path))
}

func logUsage(err error) {
	logger.Named("launch").Warn("调用参数无效", slog.String("code", string(xerrors.CodeOf(err))), slog.Any("error", err))
}

// Banner 输出版本与工作目录。
func (o *Orchestrator) Banner() {
	o.outMu.Lock()
	defer o.outMu.Unlock()
	if o.farewell {
		return
	}
	fmt.Fprintf(o.out, "warden %s\n", o.build)
	fmt.Fprintln(o.out, Say(i18n.StartupWorkDir, o.installer.WorkDir()).String())
}

func printLines(w io.Writer, lines ...Line) {
	for _, line := range lines {
		fmt.Fprintln(w, line.String())
	}
}

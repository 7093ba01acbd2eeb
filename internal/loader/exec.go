package loader

import (
	"context"
	"os"
	"path/filepath"
)

// ExecEntryPoint 以替换当前进程(或在不支持时启动子进程)的方式运行程序。
type ExecEntryPoint struct {
	Path string
	// Dir 非空时作为工作目录。
	Dir string
}

// Name 返回程序文件名。
func (e *ExecEntryPoint) Name() string { return filepath.Base(e.Path) }

// Invoke 运行程序，argv[0] 为程序路径。
func (e *ExecEntryPoint) Invoke(ctx context.Context, args []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Dir != "" {
		if err := os.Chdir(e.Dir); err != nil {
			return err
		}
	}
	argv := append([]string{e.Path}, args...)
	return execProgram(ctx, e.Path, argv, os.Environ())
}

package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	xerrors "warden/internal/errors"
)

type nativeLoader struct {
	path string
}

func openNative(path string) (*nativeLoader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeHandoffFailure, err, "读取程序信息失败")
	}
	if !info.Mode().IsRegular() {
		return nil, xerrors.New(xerrors.CodeHandoffFailure, fmt.Sprintf("%s 不是普通文件", path))
	}
	if info.Mode().Perm()&0o111 == 0 {
		return nil, xerrors.New(xerrors.CodeHandoffFailure, fmt.Sprintf("%s 没有可执行权限", path))
	}
	return &nativeLoader{path: path}, nil
}

func (l *nativeLoader) EntryPoint() string { return filepath.Base(l.path) }

func (l *nativeLoader) Resolve(context.Context) (EntryPoint, error) {
	return &ExecEntryPoint{Path: l.path}, nil
}

func (l *nativeLoader) LoadResult() LoadResult { return LoadResult{Successes: 1} }

func (l *nativeLoader) Close() error { return nil }

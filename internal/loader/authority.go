package loader

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	xerrors "warden/internal/errors"
)

var zipMagic = []byte("PK\x03\x04")

type defaultAuthority struct{}

func (*defaultAuthority) Name() string { return "system" }

// Wrap 根据文件头选择 bundle 或原生可执行文件加载方式。
func (*defaultAuthority) Wrap(path string, opts ...WrapOption) (Loader, error) {
	cfg := wrapConfig{runtimeDir: filepath.Join(os.TempDir(), "warden-runtime")}
	for _, opt := range opts {
		opt(&cfg)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeHandoffFailure, err, "解析程序路径失败")
	}
	head, err := readHead(abs, len(zipMagic))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeHandoffFailure, err, fmt.Sprintf("读取程序 %s 失败", abs))
	}
	if bytes.Equal(head, zipMagic) {
		return openBundle(abs, cfg.runtimeDir)
	}
	return openNative(abs)
}

func readHead(path string, n int) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(file, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

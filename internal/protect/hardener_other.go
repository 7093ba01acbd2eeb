//go:build !linux

package protect

import "errors"

var errUnsupported = errors.New("当前平台不支持该限制")

type platformHardener struct{}

func (platformHardener) NoNewPrivileges() error { return errUnsupported }

func (platformHardener) DisableCoreDumps() error { return errUnsupported }

func (platformHardener) LimitOpenFiles(uint64) error { return errUnsupported }

//go:build unix

package loader

import (
	"context"

	"golang.org/x/sys/unix"
)

// execProgram 成功时不会返回。
var execProgram = func(_ context.Context, path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}

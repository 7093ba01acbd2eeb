//go:build !unix

package loader

import (
	"context"
	"os"
	"os/exec"
)

var execProgram = func(ctx context.Context, path string, argv, env []string) error {
	cmd := exec.CommandContext(ctx, path, argv[1:]...)
	cmd.Env = env
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}

//go:build linux

package attest

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// procStatusProbe 读取 /proc/self/status 中的 TracerPid 与 Seccomp 字段。
type procStatusProbe struct {
	path string
}

func defaultProbe() Probe {
	return procStatusProbe{path: "/proc/self/status"}
}

func (p procStatusProbe) SandboxLayer() (string, error) {
	file, err := os.Open(p.path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "TracerPid":
			if value != "0" {
				return fmt.Sprintf("tracer (pid %s)", value), nil
			}
		case "Seccomp":
			if value == "1" {
				return "seccomp strict mode", nil
			}
		}
	}
	return "", scanner.Err()
}

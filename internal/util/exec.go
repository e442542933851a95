package util

import (
	"context"
	"os"
	"os/exec"
	"strings"
)

// Command builds an exec.Cmd inheriting the process environment plus extra
// KEY=VALUE entries.
func Command(ctx context.Context, name string, args []string, extraEnv []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(append([]string{}, os.Environ()...), extraEnv...)
	return cmd
}

// CommandLine renders name and args the way an operator would type them.
func CommandLine(name string, args []string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

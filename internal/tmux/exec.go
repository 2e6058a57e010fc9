package tmux

import (
	"bytes"
	"context"
	"os/exec"
)

// LocalExecutor runs commands through sh on this host.
type LocalExecutor struct{}

// Exec runs cmd with sh -c.
func (LocalExecutor) Exec(ctx context.Context, cmd string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

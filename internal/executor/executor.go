package executor

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// RealCommandExecutor runs commands as subprocesses.
type RealCommandExecutor struct{}

// ExecuteCommand executes a command and returns the stdout, stderr, and error.
// A nil env runs the command with an empty environment.
//
//nolint:gocritic
func (r *RealCommandExecutor) ExecuteCommand(ctx context.Context, name string, args []string,
	env []string) (stdout string, stderr string, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	var outb, errb bytes.Buffer
	cmd.Stdout = &outb
	cmd.Stderr = &errb
	err = cmd.Run()
	return outb.String(), errb.String(), err
}

// NewCommandExecutor creates a new instance of the RealCommandExecutor.
func NewCommandExecutor() types.CommandExecutor {
	return &RealCommandExecutor{}
}

package executor

import (
	"context"
	"os/exec"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

var _ Executor = BinaryFileExecutor{}

//counterfeiter:generate . Executor
type Executor interface {
	Command(ctx context.Context, name string, args ...string) Command
}

//counterfeiter:generate . Command
type Command interface {
	SetDir(dir string)
	CombinedOutput() ([]byte, error)
}

// BinaryFileExecutor runs real binaries on the host. The process is killed
// if ctx is done before it exits.
type BinaryFileExecutor struct{}

func (BinaryFileExecutor) Command(ctx context.Context, name string, args ...string) Command {
	return &binaryCommand{cmd: exec.CommandContext(ctx, name, args...)}
}

type binaryCommand struct {
	cmd *exec.Cmd
}

func (b *binaryCommand) SetDir(dir string) {
	b.cmd.Dir = dir
}

func (b *binaryCommand) CombinedOutput() ([]byte, error) {
	return b.cmd.CombinedOutput()
}

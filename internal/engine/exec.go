package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// ExecEngine shells out to an external libFuzzer-style binary. The target is
// compiled into that binary, so the in-process test callback is ignored;
// findings surface through the binary's exit status and the artifacts it
// writes under -artifact_prefix.
type ExecEngine struct {
	// Path is the engine binary to execute.
	Path string

	// Stdout and Stderr receive the engine's output; nil defaults to the
	// driver's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// Log defaults to a nop logger.
	Log *zap.Logger
}

// Run executes the binary with args[1:] (args[0] is the argv0 placeholder)
// and returns its exit status. A non-zero exit is reported through the exit
// code, not the error; the error is reserved for failures to launch.
func (e *ExecEngine) Run(ctx context.Context, args []string, _ TestOneFunc) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("engine: empty argument vector")
	}
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, e.Path, args[1:]...)
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	log.Info("engine: starting", zap.String("binary", e.Path), zap.Strings("args", args[1:]))
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Info("engine: exited", zap.Int("status", exitErr.ExitCode()))
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("engine: running %s: %w", e.Path, err)
}

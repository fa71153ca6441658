package process

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Spec describes one external command invocation.
type Spec struct {
	Bin  string
	Args []string
	// Env entries are appended to the current environment.
	Env []string
	// ExtraFiles are inherited by the child as fd 3, 4, ...
	ExtraFiles []*os.File
}

// Result содержит данные о выполненной команде.
type Result struct {
	Cmd      string
	Args     []string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
	Err      error
}

// Failed returns nil for a successful run, otherwise an error carrying the
// exit code and the tail of stderr.
func (r Result) Failed() error {
	if r.Err == nil {
		return nil
	}
	msg := strings.TrimSpace(string(r.Stderr))
	if len(msg) > 2048 {
		msg = "..." + msg[len(msg)-2048:]
	}
	if msg == "" {
		return fmt.Errorf("%s exited with code %d: %w", r.Cmd, r.ExitCode, r.Err)
	}
	return fmt.Errorf("%s exited with code %d: %w\n%s", r.Cmd, r.ExitCode, r.Err, msg)
}

// Runner executes external commands. Exec is the production implementation;
// tests substitute recorders.
type Runner interface {
	Run(ctx context.Context, spec Spec) Result
}

// Exec runs commands with os/exec.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, spec Spec) Result {
	cmd := exec.CommandContext(ctx, spec.Bin, spec.Args...)
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.ExtraFiles = spec.ExtraFiles
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	slog.Info("exec start", "cmd", spec.Bin, "args", spec.Args)
	start := time.Now()

	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	slog.Info("exec done", "cmd", spec.Bin, "code", exitCode, "dur", duration, "err", err)

	return Result{
		Cmd:      spec.Bin,
		Args:     spec.Args,
		Stdout:   outBuf.Bytes(),
		Stderr:   errBuf.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
		Err:      err,
	}
}

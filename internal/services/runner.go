package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// commandResult is the captured outcome of one process run.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability. When onLine is
// set, stdout is streamed to it line by line instead of being captured.
type commandRunner interface {
	Run(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, onLine func(string), name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	var err error
	if onLine == nil {
		cmd.Stdout = &stdout
		err = cmd.Run()
	} else {
		err = runStreaming(cmd, onLine)
	}

	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

func runStreaming(cmd *exec.Cmd, onLine func(string)) error {
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	sc := bufio.NewScanner(pipe)
	for sc.Scan() {
		onLine(sc.Text())
	}
	// drain so the process never blocks on a full pipe
	_, _ = io.Copy(io.Discard, pipe)

	return cmd.Wait()
}

// tail keeps the end of noisy ffmpeg stderr for error messages.
func tail(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

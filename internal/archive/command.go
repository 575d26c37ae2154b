package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// maxStderrBytes caps the amount of stderr kept as the failure detail.
	maxStderrBytes = 64 * 1024

	// defaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	defaultGracePeriod = 5 * time.Second

	defaultListTimeout = 60 * time.Second
)

// DefaultCommand is the JDK tool invocation used to list an archive.
var DefaultCommand = []string{"jar", "tf"}

// CommandLister lists an archive by running an external tool with the
// archive path appended to Command. Any stderr output counts as failure
// and the stdout listing is discarded.
type CommandLister struct {
	Command     []string
	Suffixes    []string
	Timeout     time.Duration
	GracePeriod time.Duration
}

func (c CommandLister) List(ctx context.Context, path string) (Listing, error) {
	if path == "" {
		return Listing{}, ErrEmptyPath
	}
	command := c.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultListTimeout
	}
	grace := c.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}

	stdout, stderr, err := run(ctx, command, path, timeout, grace)
	if err != nil {
		detail := err.Error()
		if stderr != "" {
			detail = detail + ": " + stderr
		}
		return Listing{}, &ListError{Path: path, Detail: detail, Err: err}
	}
	if stderr != "" {
		return Listing{}, &ListError{Path: path, Detail: stderr}
	}

	return Listing{Path: path, Entries: filterEntries(strings.Split(stdout, "\n"), c.Suffixes)}, nil
}

// run spawns the tool and waits for it, enforcing timeout with SIGTERM and
// then SIGKILL once grace has passed.
func run(ctx context.Context, command []string, path string, timeout, grace time.Duration) (string, string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Not CommandContext: termination is managed here.
	cmd := exec.Command(command[0], append(append([]string(nil), command[1:]...), path)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start %s: %w", command[0], err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var cause error
	select {
	case err := <-waitErr:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return stdout.String(), truncate(stderr.String()), fmt.Errorf("%s exited with status %d", command[0], exitErr.ExitCode())
			}
			return "", truncate(stderr.String()), fmt.Errorf("wait for %s: %w", command[0], err)
		}
		return stdout.String(), truncate(stderr.String()), nil
	case <-timer.C:
		cause = context.DeadlineExceeded
	case <-ctx.Done():
		cause = ctx.Err()
	}

	terminate(cmd, waitErr, grace)
	return "", truncate(stderr.String()), fmt.Errorf("%s did not finish: %w", command[0], cause)
}

func terminate(cmd *exec.Cmd, waitErr <-chan error, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-waitErr:
	case <-t.C:
		_ = cmd.Process.Kill()
		<-waitErr
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}

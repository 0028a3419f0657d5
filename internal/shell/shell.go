// Package shell runs model-requested commands inside a scratch
// directory with a denylist and a hard timeout. Disabled unless the
// configuration turns it on.
package shell

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

const (
	defaultTimeout = 30 * time.Second
	maxTimeout     = 5 * time.Minute
	maxOutputBytes = 64 * 1024
)

// defaultDenied blocks the obviously destructive patterns even when
// the operator supplies no list of their own.
var defaultDenied = []string{
	"rm -rf /",
	"mkfs",
	"dd if=",
	"shutdown",
	"reboot",
	":(){",
}

// Sandbox executes commands in a private scratch directory.
type Sandbox struct {
	logger  *slog.Logger
	enabled bool
	denied  []string
	timeout time.Duration
	workDir string
}

// Config controls the sandbox.
type Config struct {
	Enabled        bool
	DeniedPatterns []string
	TimeoutSec     int
}

// New creates a sandbox. The scratch directory is created lazily on
// the first run.
func New(logger *slog.Logger, cfg Config) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}
	denied := cfg.DeniedPatterns
	if len(denied) == 0 {
		denied = defaultDenied
	}
	return &Sandbox{
		logger:  logger.With("component", "shell"),
		enabled: cfg.Enabled,
		denied:  denied,
		timeout: timeout,
	}
}

// Enabled reports whether the sandbox will run anything at all.
func (s *Sandbox) Enabled() bool {
	return s.enabled
}

// Result is one command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Run executes a command line through sh in the scratch directory.
func (s *Sandbox) Run(ctx context.Context, command string) (*Result, error) {
	if !s.enabled {
		return nil, fmt.Errorf("shell execution is disabled")
	}
	lowered := strings.ToLower(command)
	for _, pattern := range s.denied {
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return nil, fmt.Errorf("command blocked: matches denied pattern %q", pattern)
		}
	}

	if s.workDir == "" {
		dir, err := os.MkdirTemp("", "marlowe-shell-")
		if err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		s.workDir = dir
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Info("running command", "command", command)
	err := cmd.Run()

	result := &Result{
		Stdout: clip(stdout.String()),
		Stderr: clip(stderr.String()),
	}
	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("run command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

func clip(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n[output truncated]"
}

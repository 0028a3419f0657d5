package shell

import (
	"context"
	"strings"
	"testing"
)

func TestDisabledByDefault(t *testing.T) {
	s := New(nil, Config{})
	if s.Enabled() {
		t.Error("sandbox should be disabled by default")
	}
	if _, err := s.Run(context.Background(), "true"); err == nil {
		t.Fatal("disabled sandbox should refuse to run")
	}
}

func TestRun(t *testing.T) {
	s := New(nil, Config{Enabled: true})
	result, err := s.Run(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d", result.ExitCode)
	}
}

func TestExitCode(t *testing.T) {
	s := New(nil, Config{Enabled: true})
	result, err := s.Run(context.Background(), "exit 3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
}

func TestDeniedPattern(t *testing.T) {
	s := New(nil, Config{Enabled: true})
	if _, err := s.Run(context.Background(), "rm -rf / --no-preserve-root"); err == nil {
		t.Fatal("denied pattern should be blocked")
	}

	custom := New(nil, Config{Enabled: true, DeniedPatterns: []string{"curl"}})
	if _, err := custom.Run(context.Background(), "CURL http://example.com"); err == nil {
		t.Fatal("custom denied pattern should match case-insensitively")
	}
}

func TestRunsInScratchDir(t *testing.T) {
	s := New(nil, Config{Enabled: true})
	result, err := s.Run(context.Background(), "pwd")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Stdout, "marlowe-shell-") {
		t.Errorf("working dir = %q, want a scratch directory", result.Stdout)
	}
}

func TestTimeout(t *testing.T) {
	s := New(nil, Config{Enabled: true, TimeoutSec: 1})
	result, err := s.Run(context.Background(), "sleep 5")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.TimedOut {
		t.Error("long command should time out")
	}
}

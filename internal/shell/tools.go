package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marlowe-agent/marlowe/internal/tools"
)

// Toolset exposes the sandbox to the model.
type Toolset struct {
	sandbox *Sandbox
}

func NewToolset(sandbox *Sandbox) *Toolset {
	return &Toolset{sandbox: sandbox}
}

// Methods implements tools.Toolset.
func (t *Toolset) Methods() []tools.Method {
	return []tools.Method{
		{
			Name: "sandbox_exec",
			Doc: `Run a shell command in a scratch directory and return its output.

Args:
    command: The command line to run.`,
			Args: execArgs{},
			Call: t.exec,
		},
	}
}

type execArgs struct {
	Command string `json:"command"`
}

func (t *Toolset) exec(ctx context.Context, inv *tools.Invocation, args json.RawMessage) (any, error) {
	var a execArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(a.Command) == "" {
		return nil, fmt.Errorf("command is required")
	}

	result, err := t.sandbox.Run(ctx, a.Command)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	if result.TimedOut {
		b.WriteString("command timed out\n")
	}
	fmt.Fprintf(&b, "exit code: %d\n", result.ExitCode)
	if result.Stdout != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", result.Stderr)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

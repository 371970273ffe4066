// Package handlers defines the contract shared by handler sets and the
// helpers they use to reach external programs.
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/tools"
)

// Set is a named group of tools and resources enabled together
type Set interface {
	Name() string
	Tools() []tools.Tool
	Resources() []resources.Resource
}

// Checker is implemented by sets that depend on something outside the
// process. Check runs once at startup; an error aborts the server.
type Checker interface {
	Check(ctx context.Context) error
}

// Register adds every tool and resource of sets to the builders
func Register(tb *tools.Builder, rb *resources.Builder, sets ...Set) error {
	for _, set := range sets {
		if err := tb.RegisterAll(set.Tools()...); err != nil {
			return fmt.Errorf("handler set %s: %w", set.Name(), err)
		}
		for _, r := range set.Resources() {
			if err := rb.RegisterResource(r); err != nil {
				return fmt.Errorf("handler set %s: %w", set.Name(), err)
			}
		}
	}
	return nil
}

// Runner executes an external program and returns its stdout
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec
type ExecRunner struct{}

// Run executes name with args. A non-zero exit returns an error carrying
// the trimmed stderr output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", name, firstArg(args), ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s %s failed: %s", name, firstArg(args), msg)
	}
	return stdout.Bytes(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// CheckArgument rejects values that a command line would treat as a flag
func CheckArgument(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if strings.HasPrefix(value, "-") {
		return fmt.Errorf("%s cannot start with '-'", field)
	}
	return nil
}

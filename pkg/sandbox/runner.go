// Package sandbox runs external infrastructure tools against a throwaway
// workspace.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/telemetry"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 2 * time.Minute

// ErrToolNotFound is returned when the tool binary is not on PATH.
var ErrToolNotFound = errors.New("tool not found on PATH")

// Command describes one tool invocation.
type Command struct {
	// Name is the binary to run (e.g. "terraform").
	Name string

	Args []string

	// Dir is the working directory.
	Dir string

	// Env is added to the inherited environment.
	Env map[string]string

	// Timeout overrides the runner timeout when positive.
	Timeout time.Duration
}

// Result is the outcome of a tool invocation that started.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the tool exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Output returns stderr when present, stdout otherwise.
func (r *Result) Output() string {
	if r.Stderr != "" {
		return r.Stderr
	}
	return r.Stdout
}

// Runner executes tools with a timeout inside a telemetry span.
type Runner struct {
	timeout   time.Duration
	telemetry *telemetry.Telemetry
	logger    zerolog.Logger
	lookPath  func(string) (string, error)
}

// NewRunner creates a runner. A non-positive timeout uses DefaultTimeout.
func NewRunner(timeout time.Duration, tel *telemetry.Telemetry, logger zerolog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		timeout:   timeout,
		telemetry: tel,
		logger:    telemetry.ComponentLogger(logger, "sandbox"),
		lookPath:  exec.LookPath,
	}
}

// Available reports whether the named tool can be executed.
func (r *Runner) Available(name string) bool {
	_, err := r.lookPath(name)
	return err == nil
}

// Run executes cmd. A non-zero exit status is reported through Result, not
// as an error; errors are reserved for tools that could not run or timed out.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("command name is required")
	}
	path, err := r.lookPath(cmd.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, cmd.Name)
	}

	timeout := r.timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	var result *Result
	err = r.telemetry.ToolRun(ctx, cmd.Name, cmd.Args, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		c := exec.CommandContext(ctx, path, cmd.Args...)
		c.Dir = cmd.Dir
		if len(cmd.Env) > 0 {
			c.Env = append(os.Environ(), envList(cmd.Env)...)
		}

		var stdout, stderr bytes.Buffer
		c.Stdout = &stdout
		c.Stderr = &stderr

		start := time.Now()
		runErr := c.Run()
		result = &Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Duration: time.Since(start),
		}

		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %s", cmd.Name, timeout)
		}
		if runErr != nil {
			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) {
				result.ExitCode = exitErr.ExitCode()
				return nil
			}
			return fmt.Errorf("failed to execute %s: %w", cmd.Name, runErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("tool", cmd.Name).
		Strs("args", cmd.Args).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Tool finished")

	return result, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}

// Workspace is a private temporary directory for one tool invocation.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a workspace under the system temp directory.
func NewWorkspace(prefix string) (*Workspace, error) {
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

// WriteFile writes content to name inside the workspace.
func (w *Workspace) WriteFile(name, content string) (string, error) {
	if filepath.IsAbs(name) || filepath.Clean(name) != filepath.Base(name) {
		return "", fmt.Errorf("invalid workspace file name: %s", name)
	}
	path := filepath.Join(w.Dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.Dir)
}

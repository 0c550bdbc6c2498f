package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRunner(timeout time.Duration) *Runner {
	return NewRunner(timeout, nil, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestRunner_Run_CapturesOutput(t *testing.T) {
	r := newTestRunner(0)
	if !r.Available("sh") {
		t.Skip("sh not available")
	}

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err 1>&2; echo $INFRAFORGE_TEST; exit 3"},
		Env:  map[string]string{"INFRAFORGE_TEST": "value"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.ExitCode != 3 || res.Success() {
		t.Errorf("Expected exit code 3, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "out") || !strings.Contains(res.Stdout, "value") {
		t.Errorf("Unexpected stdout: %q", res.Stdout)
	}
	if strings.TrimSpace(res.Output()) != "err" {
		t.Errorf("Expected stderr to win in Output, got %q", res.Output())
	}
}

func TestRunner_Run_ToolNotFound(t *testing.T) {
	r := newTestRunner(0)
	_, err := r.Run(context.Background(), Command{Name: "infraforge-no-such-tool"})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("Expected ErrToolNotFound, got %v", err)
	}
}

func TestRunner_Run_Timeout(t *testing.T) {
	r := newTestRunner(50 * time.Millisecond)
	if !r.Available("sleep") {
		t.Skip("sleep not available")
	}

	_, err := r.Run(context.Background(), Command{Name: "sleep", Args: []string{"5"}})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("Expected a timeout error, got %v", err)
	}
}

func TestWorkspace(t *testing.T) {
	ws, err := NewWorkspace("infraforge-test")
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	path, err := ws.WriteFile("main.tf", "resource \"null_resource\" \"x\" {}\n")
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if filepath.Dir(path) != ws.Dir {
		t.Errorf("File written outside the workspace: %s", path)
	}

	if _, err := ws.WriteFile("../escape.tf", "x"); err == nil {
		t.Error("Expected an error for a path outside the workspace")
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Error("Workspace directory should be removed")
	}
}

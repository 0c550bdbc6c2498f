package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/infraforge/pkg/plan"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--log-level", "disabled"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTF(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.tf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand("test", "none", "today")
	want := map[string]bool{"generate": false, "scan": false, "policies": false, "serve": false, "config": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("Missing subcommand %s", name)
		}
	}
}

func TestScanCommand(t *testing.T) {
	path := writeTF(t, `resource "aws_security_group" "web" {
  ingress {
    from_port   = 22
    to_port     = 22
    protocol    = "tcp"
    cidr_blocks = ["0.0.0.0/0"]
  }
}
`)

	out, err := execute(t, "scan", path)
	if err == nil {
		t.Fatal("Expected the scan to fail on an open SSH port")
	}
	if !strings.Contains(out, "IF_AWS_SG_001") {
		t.Errorf("Expected the finding in the output:\n%s", out)
	}
}

func TestScanCommand_Threshold(t *testing.T) {
	path := writeTF(t, `resource "aws_vpc" "main" {
  cidr_block = "10.0.0.0/16"
}
`)

	if _, err := execute(t, "scan", path, "--fail-on", "high"); err != nil {
		t.Errorf("Expected a low finding to pass a high threshold, got %v", err)
	}
	if _, err := execute(t, "scan", path, "--fail-on", "low"); err == nil {
		t.Error("Expected the missing-tags finding to fail a low threshold")
	}
}

func TestScanCommand_SyntaxError(t *testing.T) {
	path := writeTF(t, `resource "aws_vpc" "main" {`)
	_, err := execute(t, "scan", path)
	if err == nil || !strings.Contains(err.Error(), "syntax error") {
		t.Errorf("Expected a syntax error, got %v", err)
	}
}

func TestPoliciesCommand(t *testing.T) {
	out, err := execute(t, "policies")
	if err != nil {
		t.Fatalf("policies failed: %v", err)
	}
	for _, name := range []string{"aws-s3", "aws-network", "tagging"} {
		if !strings.Contains(out, name) {
			t.Errorf("Expected policy %s in the output:\n%s", name, out)
		}
	}

	out, err = execute(t, "policies", "--show", "aws-s3")
	if err != nil {
		t.Fatalf("policies --show failed: %v", err)
	}
	if !strings.Contains(out, "package infraforge.aws.s3") {
		t.Errorf("Expected the Rego source, got:\n%s", out)
	}
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-secret")

	out, err := execute(t, "config")
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if strings.Contains(out, "sk-secret") {
		t.Error("API key must be redacted")
	}
	if !strings.Contains(out, redacted) || !strings.Contains(out, "max_concurrent_runs") {
		t.Errorf("Unexpected config output:\n%s", out)
	}
}

func TestWritePlanDOT(t *testing.T) {
	p := &plan.Plan{
		Components: []plan.Component{
			{Name: "vpc", ResourceType: "aws_vpc"},
			{Name: "subnet", ResourceType: "aws_subnet", Dependencies: []string{"vpc"}},
		},
	}
	path := filepath.Join(t.TempDir(), "plan.dot")
	if err := writePlanDOT(p, path); err != nil {
		t.Fatalf("writePlanDOT failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read DOT: %v", err)
	}
	if !strings.HasPrefix(string(data), "digraph") {
		t.Errorf("Unexpected DOT output:\n%s", data)
	}
	if len(p.ExecutionOrder) != 0 {
		t.Error("writePlanDOT must not modify the run's plan")
	}
}

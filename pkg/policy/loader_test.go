package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const denyNothing = "package custom.none\n\ndeny contains msg if {\n\tfalse\n\tmsg := \"never\"\n}\n"

func writePolicyFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func quietLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestParseFile_Rego(t *testing.T) {
	policyFile := filepath.Join(t.TempDir(), "bucket-logging.rego")
	regoContent := `# Buckets must ship access logs
# to the central logging bucket.
# severity: high
# checks: ORG_S3_LOG_001
package org.s3.logging

deny contains finding if {
	some r in input.resources
	r.type == "aws_s3_bucket"
	not r.attributes.logging
	finding := {"id": "ORG_S3_LOG_001", "title": "Bucket access logging disabled", "resource": r.address}
}
`
	writePolicyFile(t, policyFile, regoContent)

	policies, err := quietLoader().parseFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Expected one policy, got %d", len(policies))
	}
	policy := policies[0]

	if policy.Name != "bucket-logging" {
		t.Errorf("Expected name 'bucket-logging', got '%s'", policy.Name)
	}
	if policy.Rego != regoContent {
		t.Error("Rego content doesn't match")
	}
	if policy.Description != "Buckets must ship access logs to the central logging bucket." {
		t.Errorf("Unexpected description %q", policy.Description)
	}
	if policy.Severity != SeverityHigh {
		t.Errorf("Expected severity HIGH from the header, got %s", policy.Severity)
	}
	if !reflect.DeepEqual(policy.Checks, []string{"ORG_S3_LOG_001"}) {
		t.Errorf("Unexpected checks %v", policy.Checks)
	}
	if !policy.Enabled {
		t.Error("Policy should be enabled by default")
	}
}

func TestParseFile_JSON(t *testing.T) {
	policyFile := filepath.Join(t.TempDir(), "test-policy.json")
	data, err := json.Marshal(Policy{
		Name:     "test-json-policy",
		Rego:     denyNothing,
		Severity: SeverityCritical,
		Enabled:  true,
	})
	if err != nil {
		t.Fatalf("Failed to marshal policy: %v", err)
	}
	writePolicyFile(t, policyFile, string(data))

	policies, err := quietLoader().parseFile(policyFile)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "test-json-policy" {
		t.Fatalf("Unexpected policies %+v", policies)
	}
	if policies[0].Severity != SeverityCritical {
		t.Errorf("Expected severity CRITICAL, got %s", policies[0].Severity)
	}
	if policies[0].CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be defaulted")
	}
}

func TestParseFile_Bundle(t *testing.T) {
	bundleFile := filepath.Join(t.TempDir(), "baseline.json")
	writePolicyFile(t, bundleFile, `{
  "name": "org-baseline",
  "version": "1.0.0",
  "policies": [
    {"name": "first", "rego": "package first", "enabled": true, "severity": "HIGH"},
    {"name": "second", "rego": "package second", "enabled": true}
  ]
}`)

	policies, err := quietLoader().parseFile(bundleFile)
	if err != nil {
		t.Fatalf("Failed to load bundle: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Severity != SeverityHigh || policies[1].Severity != SeverityMedium {
		t.Errorf("Unexpected severities %s, %s", policies[0].Severity, policies[1].Severity)
	}
}

func TestParseFile_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"malformed json", "broken.json", "{not json"},
		{"unnamed policy", "anon.json", `{"rego":"package anon"}`},
		{"unnamed bundle member", "bundle.json", `{"policies":[{"rego":"package x"}]}`},
		{"unsupported extension", "notes.txt", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writePolicyFile(t, path, tt.content)
			if _, err := quietLoader().parseFile(path); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestParseFile_Cached(t *testing.T) {
	loader := quietLoader()
	path := filepath.Join(t.TempDir(), "cached.rego")
	writePolicyFile(t, path, "# first\n"+denyNothing)

	if _, err := loader.parseFile(path); err != nil {
		t.Fatalf("parseFile failed: %v", err)
	}
	writePolicyFile(t, path, "# second\n"+denyNothing)

	policies, _ := loader.parseFile(path)
	if policies[0].Description != "first" {
		t.Errorf("Expected the cached parse, got %q", policies[0].Description)
	}

	loader.forget(path)
	policies, _ = loader.parseFile(path)
	if policies[0].Description != "second" {
		t.Errorf("Expected a fresh parse after forget, got %q", policies[0].Description)
	}
}

func TestLoadFromPaths(t *testing.T) {
	tmpDir := t.TempDir()
	dir1 := filepath.Join(tmpDir, "dir1")
	subDir := filepath.Join(dir1, "nested")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	writePolicyFile(t, filepath.Join(dir1, "policy1.rego"), denyNothing)
	writePolicyFile(t, filepath.Join(subDir, "policy2.rego"), denyNothing)
	writePolicyFile(t, filepath.Join(dir1, "README.md"), "# Policies")
	writePolicyFile(t, filepath.Join(dir1, "broken.json"), "{not json")
	file1 := filepath.Join(tmpDir, "policy3.rego")
	writePolicyFile(t, file1, denyNothing)

	loader := quietLoader()
	loaded, err := loader.LoadFromPaths(context.Background(), []string{dir1, file1})
	if err != nil {
		t.Fatalf("Failed to load paths: %v", err)
	}

	var names []string
	for _, p := range loaded {
		names = append(names, p.Name)
	}
	if want := []string{"policy2", "policy1", "policy3"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Loaded %v, want %v", names, want)
	}

	if _, err := loader.LoadFromPaths(context.Background(), []string{filepath.Join(tmpDir, "missing")}); err == nil {
		t.Error("Expected an error for a missing path")
	}

	broken := filepath.Join(tmpDir, "explicit.json")
	writePolicyFile(t, broken, "{not json")
	if _, err := loader.LoadFromPaths(context.Background(), []string{broken}); err == nil {
		t.Error("Expected an error for an explicitly named broken file")
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		wantDesc       string
		wantDirectives map[string]string
	}{
		{
			name:           "single line comment",
			content:        "# This is a test policy\npackage test",
			wantDesc:       "This is a test policy",
			wantDirectives: map[string]string{},
		},
		{
			name:           "comments with empty lines",
			content:        "# First line\n#\n# Second line\npackage test",
			wantDesc:       "First line Second line",
			wantDirectives: map[string]string{},
		},
		{
			name:           "directives",
			content:        "# Checks encryption\n# Severity: critical\n# checks: A, B\npackage test",
			wantDesc:       "Checks encryption",
			wantDirectives: map[string]string{"severity": "critical", "checks": "A, B"},
		},
		{
			name:           "unknown key stays in the description",
			content:        "# owner: platform\npackage test",
			wantDesc:       "owner: platform",
			wantDirectives: map[string]string{},
		},
		{
			name:           "comments after code are ignored",
			content:        "package test\n\n# severity: low\ndeny contains 1 if false",
			wantDesc:       "",
			wantDirectives: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, directives := parseHeader(tt.content)
			if desc != tt.wantDesc {
				t.Errorf("Expected description '%s', got '%s'", tt.wantDesc, desc)
			}
			if !reflect.DeepEqual(directives, tt.wantDirectives) {
				t.Errorf("Expected directives %v, got %v", tt.wantDirectives, directives)
			}
		})
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	loader := quietLoader()

	dir := t.TempDir()
	writePolicyFile(t, filepath.Join(dir, "first.rego"), denyNothing)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []Policy, 4)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		reloaded <- policies
		return nil
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	writePolicyFile(t, filepath.Join(dir, "second.rego"), denyNothing)

	select {
	case policies := <-reloaded:
		if len(policies) != 2 {
			t.Errorf("Expected 2 policies after reload, got %d", len(policies))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

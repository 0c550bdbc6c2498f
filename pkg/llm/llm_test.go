package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/config"
	"github.com/openfroyo/infraforge/pkg/plan"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

type fakeModel struct {
	reply string
	err   error
	calls [][]*schema.Message
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func (f *fakeModel) lastUserPrompt() string {
	if len(f.calls) == 0 {
		return ""
	}
	msgs := f.calls[len(f.calls)-1]
	return msgs[len(msgs)-1].Content
}

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "resource \"a\" \"b\" {}", "resource \"a\" \"b\" {}"},
		{"fenced with language", "```hcl\nresource \"a\" \"b\" {}\n```", "resource \"a\" \"b\" {}"},
		{"fenced without closing", "```\n---\n- hosts: all", "---\n- hosts: all"},
		{"surrounding whitespace", "\n\n```yaml\nkey: v\n```\n", "key: v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	got, err := ExtractJSON("Here you go:\n```json\n{\"proceed\": true, \"a\": {\"b\": 1}}\n```")
	if err != nil {
		t.Fatalf("ExtractJSON failed: %v", err)
	}
	if string(got) != `{"proceed": true, "a": {"b": 1}}` {
		t.Errorf("Unexpected JSON: %s", got)
	}

	if _, err := ExtractJSON("no json here"); !errors.Is(err, ErrNoJSONObject) {
		t.Errorf("Expected ErrNoJSONObject, got %v", err)
	}
}

func TestNewChatModel_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewChatModel(ctx, ModelConfig{Provider: ProviderOpenAI, Model: "gpt-4o"}); !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("Expected ErrAPIKeyMissing for openai, got %v", err)
	}
	if _, err := NewChatModel(ctx, ModelConfig{Provider: ProviderClaude, Model: "claude"}); !errors.Is(err, ErrAPIKeyMissing) {
		t.Errorf("Expected ErrAPIKeyMissing for claude, got %v", err)
	}
	if _, err := NewChatModel(ctx, ModelConfig{Provider: "bard"}); err == nil {
		t.Error("Expected an error for an unknown provider")
	}
}

func TestClarifier_Clarify(t *testing.T) {
	fm := &fakeModel{reply: "```json\n" + `{
  "proceed": true,
  "missing_info": [],
  "assumptions": {"cloud_provider": "aws", "region": "eu-west-1", "instance_count": 2, "public": false},
  "clarification_questions": []
}` + "\n```"}

	c := NewClarifier(fm, config.NewSchemaRegistry(), testLogger())
	got, err := c.Clarify(context.Background(), "Create a web server")
	if err != nil {
		t.Fatalf("Clarify failed: %v", err)
	}
	if !got.Proceed {
		t.Error("Expected proceed")
	}
	want := map[string]string{
		"cloud_provider": "aws",
		"region":         "eu-west-1",
		"instance_count": "2",
		"public":         "false",
	}
	if len(got.Assumptions) != len(want) {
		t.Fatalf("Assumptions = %v, want %v", got.Assumptions, want)
	}
	for k, v := range want {
		if got.Assumptions[k] != v {
			t.Errorf("Assumption %s = %q, want %q", k, got.Assumptions[k], v)
		}
	}
	if !strings.Contains(fm.lastUserPrompt(), "Create a web server") {
		t.Error("Expected the request in the prompt")
	}
}

func TestClarifier_NeedsInformation(t *testing.T) {
	fm := &fakeModel{reply: `{"proceed": false, "missing_info": ["workload"], "clarification_questions": ["What should it run?"]}`}
	got, err := NewClarifier(fm, config.NewSchemaRegistry(), testLogger()).Clarify(context.Background(), "something")
	if err != nil {
		t.Fatalf("Clarify failed: %v", err)
	}
	if got.Proceed || len(got.Questions) != 1 || got.MissingInfo[0] != "workload" {
		t.Errorf("Unexpected result: %+v", got)
	}
}

func TestClarifier_Errors(t *testing.T) {
	tests := []struct {
		name string
		fm   *fakeModel
	}{
		{"model error", &fakeModel{err: errors.New("rate limited")}},
		{"empty reply", &fakeModel{reply: "  "}},
		{"no json", &fakeModel{reply: "I cannot help with that"}},
		{"schema mismatch", &fakeModel{reply: `{"proceed": "yes"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClarifier(tt.fm, config.NewSchemaRegistry(), testLogger())
			if _, err := c.Clarify(context.Background(), "request"); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestStringifyValues(t *testing.T) {
	got := stringifyValues(map[string]interface{}{
		"s":    "x",
		"n":    1.5,
		"b":    true,
		"null": nil,
		"list": []interface{}{"a", "b"},
	})
	want := map[string]string{"s": "x", "n": "1.5", "b": "true", "list": `["a","b"]`}
	if len(got) != len(want) {
		t.Fatalf("stringifyValues() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestPlanner_Plan(t *testing.T) {
	fm := &fakeModel{reply: `{
  "infrastructure_type": "web_server",
  "cloud_provider": "aws",
  "components": [
    {"name": "web", "resource_type": "aws_instance", "dependencies": ["sg", "subnet", "ghost"]},
    {"name": "sg", "resource_type": "aws_security_group", "dependencies": ["vpc"]},
    {"name": "subnet", "resource_type": "aws_subnet", "dependencies": ["vpc"]},
    {"name": "vpc", "resource_type": "aws_vpc"}
  ],
  "execution_order": ["web", "sg", "subnet", "vpc"],
  "assumptions": {"instance_type": "t3.micro"}
}`}

	p := NewPlanner(fm, config.NewSchemaRegistry(), testLogger())
	got, err := p.Plan(context.Background(), "web server", map[string]string{"region": "us-east-1"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	pl := got.Plan
	if pl.InfrastructureType != "web_server" || len(pl.Components) != 4 {
		t.Fatalf("Unexpected plan: %+v", pl)
	}
	if pl.ExecutionOrder[0] != "vpc" || pl.ExecutionOrder[3] != "web" {
		t.Errorf("Expected the order recomputed from dependencies, got %v", pl.ExecutionOrder)
	}
	if len(pl.Components[0].Dependencies) != 2 {
		t.Errorf("Expected the dangling dependency pruned, got %v", pl.Components[0].Dependencies)
	}
	if pl.Assumptions["instance_type"] != "t3.micro" {
		t.Errorf("Unexpected plan assumptions: %v", pl.Assumptions)
	}
	if !strings.Contains(fm.lastUserPrompt(), "- region: us-east-1") {
		t.Error("Expected assumptions in the prompt")
	}
}

func TestPlanner_Errors(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"unknown provider", `{"infrastructure_type": "x", "cloud_provider": "oracle", "components": []}`},
		{"invalid resource type", `{"infrastructure_type": "x", "cloud_provider": "aws", "components": [{"name": "a", "resource_type": "Bucket"}]}`},
		{"dependency cycle", `{"infrastructure_type": "x", "cloud_provider": "aws", "components": [
			{"name": "a", "resource_type": "aws_vpc", "dependencies": ["b"]},
			{"name": "b", "resource_type": "aws_subnet", "dependencies": ["a"]}]}`},
		{"duplicate component", `{"infrastructure_type": "x", "cloud_provider": "aws", "components": [
			{"name": "a", "resource_type": "aws_vpc"},
			{"name": "a", "resource_type": "aws_subnet"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner(&fakeModel{reply: tt.reply}, config.NewSchemaRegistry(), testLogger())
			if _, err := p.Plan(context.Background(), "request", nil); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestGenerator_Creation(t *testing.T) {
	fm := &fakeModel{reply: "```hcl\nresource \"aws_s3_bucket\" \"data\" {}\n```"}
	g := NewGenerator(fm, testLogger())

	got, err := g.Generate(context.Background(), workflow.GenerationContext{
		Mode:        workflow.ModeCreation,
		Attempt:     1,
		Request:     "Create an S3 bucket",
		Assumptions: map[string]string{"cloud_provider": "aws"},
		Plan: &plan.Plan{
			Components: []plan.Component{
				{Name: "data", ResourceType: "aws_s3_bucket", Description: "storage"},
			},
			ExecutionOrder: []string{"data"},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got.Artifact != "resource \"aws_s3_bucket\" \"data\" {}\n" {
		t.Errorf("Unexpected artifact: %q", got.Artifact)
	}

	prompt := fm.lastUserPrompt()
	for _, want := range []string{"Create an S3 bucket", "- data (aws_s3_bucket): storage", "Write the complete"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Previous configuration") {
		t.Error("Creation prompt must not carry a prior artifact")
	}
}

func TestGenerator_Remediation(t *testing.T) {
	prior := "resource \"aws_s3_bucket\" \"data\" {}\n"
	fm := &fakeModel{reply: prior}
	g := NewGenerator(fm, testLogger())

	_, err := g.Generate(context.Background(), workflow.GenerationContext{
		Mode:          workflow.ModeRemediation,
		Attempt:       2,
		Request:       "Create an S3 bucket",
		PriorArtifact: &prior,
		SyntaxError:   &workflow.SyntaxError{Kind: workflow.SyntaxKindDeepValidation, Message: "plan failed"},
		Violations: []workflow.ViolationRecord{{
			ID:               "IF_AWS_S3_003",
			Title:            "S3 bucket versioning disabled",
			AffectedResource: "aws_s3_bucket.data",
			Severity:         workflow.SeverityMedium,
			Guidance:         "Enable versioning",
		}},
		CompletenessGap: []string{"Missing required components: aws_kms_key"},
		Directive: &workflow.ModificationDirective{
			PreserveResources:     []string{"aws_s3_bucket.data"},
			TargetResources:       []string{"aws_s3_bucket.data"},
			ForbidDerivativeNames: true,
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	prompt := fm.lastUserPrompt()
	for _, want := range []string{
		"attempt 2",
		"plan failed",
		"Missing required components: aws_kms_key",
		"[MEDIUM] IF_AWS_S3_003 on aws_s3_bucket.data",
		"fix: Enable versioning",
		"Keep these resources with the same type and name: aws_s3_bucket.data",
		"<name>_fixed",
		"Previous configuration:\n" + prior,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}

func TestGenerator_Errors(t *testing.T) {
	g := NewGenerator(&fakeModel{reply: "```\n```"}, testLogger())
	if _, err := g.Generate(context.Background(), workflow.GenerationContext{Mode: workflow.ModeCreation}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse, got %v", err)
	}

	if _, err := g.Generate(context.Background(), workflow.GenerationContext{Mode: workflow.ModeRemediation}); err == nil {
		t.Error("Expected an invalid remediation context to be rejected")
	}
}

func TestNormalizePlaybook(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "adds document marker",
			in:   "- hosts: all\n  tasks: []",
			want: "---\n- hosts: all\n  tasks: []\n",
		},
		{
			name: "strips fences",
			in:   "```yaml\n---\n- hosts: web\n```",
			want: "---\n- hosts: web\n",
		},
		{name: "mapping instead of plays", in: "hosts: all", wantErr: true},
		{name: "play without hosts", in: "- name: x", wantErr: true},
		{name: "not yaml", in: "- [unclosed", wantErr: true},
		{name: "empty document", in: "---", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePlaybook(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePlaybook() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("NormalizePlaybook() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfigWriter_GenerateConfig(t *testing.T) {
	fm := &fakeModel{reply: "- hosts: all\n  become: yes\n  tasks: []"}
	w := NewConfigWriter(fm, testLogger())

	got, err := w.GenerateConfig(context.Background(), workflow.ArtifactInput{
		Artifact: "resource \"aws_instance\" \"web\" {}\n",
		Request:  "web server",
	})
	if err != nil {
		t.Fatalf("GenerateConfig failed: %v", err)
	}
	if got.Fallback || !strings.HasPrefix(got.ConfigArtifact, "---\n") {
		t.Errorf("Unexpected result: %+v", got)
	}
	if !strings.Contains(fm.lastUserPrompt(), "aws_instance") {
		t.Error("Expected the artifact in the prompt")
	}
}

func TestConfigWriter_Fallback(t *testing.T) {
	for _, fm := range []*fakeModel{
		{err: errors.New("timeout")},
		{reply: "Sorry, I can't do that."},
	} {
		got, err := NewConfigWriter(fm, testLogger()).GenerateConfig(context.Background(), workflow.ArtifactInput{})
		if err != nil {
			t.Fatalf("GenerateConfig failed: %v", err)
		}
		if !got.Fallback || got.ConfigArtifact != FallbackPlaybook {
			t.Errorf("Expected the fallback playbook, got %+v", got)
		}
	}
}

func TestFallbackPlaybook_Parses(t *testing.T) {
	if _, err := NormalizePlaybook(FallbackPlaybook); err != nil {
		t.Fatalf("Fallback playbook does not parse: %v", err)
	}
	if !strings.Contains(FallbackPlaybook, "/sbin/shutdown -h now") {
		t.Error("Fallback playbook must carry the shutdown cron")
	}
}

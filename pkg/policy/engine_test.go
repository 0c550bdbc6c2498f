package policy

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/terraform"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine
}

func evaluateArtifact(t *testing.T, engine *Engine, artifact string) *Report {
	t.Helper()
	module, diags := terraform.ParseString(artifact)
	if diags.HasErrors() {
		t.Fatalf("Test artifact does not parse: %s", diags.Error())
	}
	report, err := engine.Evaluate(context.Background(), &Input{Resources: module.Resources})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	return report
}

func findingKeys(report *Report) []string {
	keys := make([]string, 0, len(report.Findings))
	for _, f := range report.Findings {
		keys = append(keys, f.CheckID+"@"+f.Resource)
	}
	sort.Strings(keys)
	return keys
}

const secureBucket = `
resource "aws_s3_bucket" "data" {
  bucket = "infraforge-data"
  tags = {
    Environment = "development"
  }
}

resource "aws_s3_bucket_server_side_encryption_configuration" "data" {
  bucket = aws_s3_bucket.data.id
  rule {
    apply_server_side_encryption_by_default {
      sse_algorithm = "aws:kms"
    }
  }
}

resource "aws_s3_bucket_versioning" "data" {
  bucket = aws_s3_bucket.data.id
  versioning_configuration {
    status = "Enabled"
  }
}
`

func TestNewEngine_LoadsBuiltins(t *testing.T) {
	engine := newTestEngine(t)

	policies := engine.ListPolicies()
	if len(policies) != len(GetBuiltinPolicies()) {
		t.Fatalf("Expected %d built-in policies, got %d", len(GetBuiltinPolicies()), len(policies))
	}
	for i := 1; i < len(policies); i++ {
		if policies[i-1].Name > policies[i].Name {
			t.Error("ListPolicies must be sorted by name")
		}
	}
}

func TestEvaluate_BuiltinPolicies(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name     string
		artifact string
		want     []string
	}{
		{
			name:     "secure bucket",
			artifact: secureBucket,
			want:     []string{},
		},
		{
			name: "public unencrypted bucket",
			artifact: `
resource "aws_s3_bucket" "logs" {
  bucket = "public-logs"
  acl    = "public-read"
}
`,
			want: []string{
				"IF_AWS_S3_001@aws_s3_bucket.logs",
				"IF_AWS_S3_002@aws_s3_bucket.logs",
				"IF_AWS_S3_003@aws_s3_bucket.logs",
				"IF_GEN_TAG_001@aws_s3_bucket.logs",
			},
		},
		{
			name: "inline encryption and versioning",
			artifact: `
resource "aws_s3_bucket" "legacy" {
  bucket = "legacy"
  tags   = { Name = "legacy" }

  versioning {
    enabled = true
  }

  server_side_encryption_configuration {
    rule {
      apply_server_side_encryption_by_default {
        sse_algorithm = "AES256"
      }
    }
  }
}
`,
			want: []string{},
		},
		{
			name: "security group open to the world",
			artifact: `
resource "aws_security_group" "web" {
  name = "web"
  tags = { Name = "web" }

  ingress {
    from_port   = 22
    to_port     = 22
    protocol    = "tcp"
    cidr_blocks = ["0.0.0.0/0"]
  }

  ingress {
    from_port   = 443
    to_port     = 443
    protocol    = "tcp"
    cidr_blocks = ["0.0.0.0/0"]
  }

  egress {
    from_port   = 0
    to_port     = 0
    protocol    = "-1"
    cidr_blocks = ["0.0.0.0/0"]
  }
}
`,
			want: []string{
				"IF_AWS_SG_001@aws_security_group.web",
				"IF_AWS_SG_003@aws_security_group.web",
			},
		},
		{
			name: "standalone rdp rule",
			artifact: `
resource "aws_security_group_rule" "rdp" {
  type              = "ingress"
  from_port         = 3000
  to_port           = 4000
  protocol          = "tcp"
  cidr_blocks       = ["0.0.0.0/0"]
  security_group_id = "sg-123"
}
`,
			want: []string{"IF_AWS_SG_002@aws_security_group_rule.rdp"},
		},
		{
			name: "public unencrypted database",
			artifact: `
resource "aws_db_instance" "main" {
  engine              = "postgres"
  instance_class      = "db.t3.micro"
  publicly_accessible = true
  tags                = { Name = "db" }
}
`,
			want: []string{
				"IF_AWS_RDS_001@aws_db_instance.main",
				"IF_AWS_RDS_002@aws_db_instance.main",
			},
		},
		{
			name: "hardened instance",
			artifact: `
resource "aws_instance" "web" {
  ami           = "ami-0c55b159cbfafe1f0"
  instance_type = "t3.micro"
  tags          = { Name = "web" }

  metadata_options {
    http_tokens = "required"
  }

  root_block_device {
    encrypted = true
  }
}
`,
			want: []string{},
		},
		{
			name: "default instance and volume",
			artifact: `
resource "aws_instance" "web" {
  ami           = "ami-0c55b159cbfafe1f0"
  instance_type = "t3.micro"
  tags          = { Name = "web" }
}

resource "aws_ebs_volume" "data" {
  availability_zone = "us-east-1a"
  size              = 20
}
`,
			want: []string{
				"IF_AWS_EBS_001@aws_ebs_volume.data",
				"IF_AWS_EC2_001@aws_instance.web",
				"IF_AWS_EC2_002@aws_instance.web",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := evaluateArtifact(t, engine, tt.artifact)
			got := findingKeys(report)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Findings = %v, want %v", got, tt.want)
			}
			if len(report.Warnings) != 0 {
				t.Errorf("Unexpected warnings: %v", report.Warnings)
			}
		})
	}
}

func TestEvaluate_FindingFields(t *testing.T) {
	engine := newTestEngine(t)
	report := evaluateArtifact(t, engine, `
resource "aws_db_instance" "main" {
  engine              = "mysql"
  storage_encrypted   = true
  publicly_accessible = true
  tags                = { Name = "db" }
}
`)

	if len(report.Findings) != 1 {
		t.Fatalf("Expected 1 finding, got %+v", report.Findings)
	}
	f := report.Findings[0]
	if f.CheckID != "IF_AWS_RDS_002" || f.Severity != SeverityCritical || f.Policy != "aws-rds" {
		t.Errorf("Unexpected finding %+v", f)
	}
	if f.CheckName == "" || f.Guideline == "" {
		t.Error("Expected a title and guidance")
	}
	if report.CountBySeverity()[SeverityCritical] != 1 {
		t.Errorf("Unexpected counts %v", report.CountBySeverity())
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	engine := newTestEngine(t)
	artifact := `
resource "aws_s3_bucket" "logs" {
  bucket = "logs"
}
`

	if err := engine.DisablePolicy("tagging"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}
	for _, f := range evaluateArtifact(t, engine, artifact).Findings {
		if f.Policy == "tagging" {
			t.Errorf("Disabled policy reported %s", f.CheckID)
		}
	}

	if err := engine.EnablePolicy("tagging"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	found := false
	for _, f := range evaluateArtifact(t, engine, artifact).Findings {
		found = found || f.CheckID == "IF_GEN_TAG_001"
	}
	if !found {
		t.Error("Expected the tagging finding once re-enabled")
	}

	if err := engine.DisablePolicy("missing"); err == nil {
		t.Error("Expected an error for an unknown policy")
	}
}

func TestLoadPolicies_Custom(t *testing.T) {
	engine := newTestEngine(t)

	dir := t.TempDir()
	writePolicyFile(t, dir+"/instance-size.rego", `# Instance types are limited to the t3 family.
# severity: medium
package org.compute.size

deny contains finding if {
	some r in input.resources
	r.type == "aws_instance"
	not startswith(r.attributes.instance_type, "t3.")
	finding := {"id": "ORG_EC2_SIZE", "title": "Instance type not allowed", "resource": r.address}
}
`)

	if err := engine.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies failed: %v", err)
	}

	p, err := engine.GetPolicy("instance-size")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Severity != SeverityMedium {
		t.Errorf("Expected MEDIUM, got %s", p.Severity)
	}

	report := evaluateArtifact(t, engine, `
resource "aws_instance" "big" {
  ami           = "ami-1"
  instance_type = "m5.24xlarge"
  tags          = { Name = "big" }
  metadata_options {
    http_tokens = "required"
  }
  root_block_device {
    encrypted = true
  }
}
`)
	keys := findingKeys(report)
	if len(keys) != 1 || keys[0] != "ORG_EC2_SIZE@aws_instance.big" {
		t.Fatalf("Unexpected findings %v", keys)
	}
	if report.Findings[0].Severity != SeverityMedium {
		t.Errorf("Expected the policy default severity, got %s", report.Findings[0].Severity)
	}
}

func TestLoadPolicies_InvalidRego(t *testing.T) {
	engine := newTestEngine(t)

	dir := t.TempDir()
	writePolicyFile(t, dir+"/broken.rego", "package broken\n\ndeny contains x if {\n")

	if err := engine.LoadPolicies(context.Background(), []string{dir}); err == nil {
		t.Error("Expected a compile error")
	}
}

func TestReplaceCustomPolicies(t *testing.T) {
	engine := newTestEngine(t)
	builtins := len(engine.ListPolicies())

	custom := []Policy{{Name: "none", Rego: denyNothing, Severity: SeverityLow, Enabled: true}}
	if err := engine.ReplaceCustomPolicies(context.Background(), custom); err != nil {
		t.Fatalf("ReplaceCustomPolicies failed: %v", err)
	}
	if got := len(engine.ListPolicies()); got != builtins+1 {
		t.Fatalf("Expected %d policies, got %d", builtins+1, got)
	}

	if err := engine.ReplaceCustomPolicies(context.Background(), nil); err != nil {
		t.Fatalf("ReplaceCustomPolicies failed: %v", err)
	}
	if got := len(engine.ListPolicies()); got != builtins {
		t.Errorf("Expected custom policies to be dropped, got %d", got)
	}

	broken := []Policy{{Name: "broken", Rego: "package broken\ndeny contains", Enabled: true}}
	if err := engine.ReplaceCustomPolicies(context.Background(), broken); err == nil {
		t.Error("Expected a compile error")
	}
	if got := len(engine.ListPolicies()); got != builtins {
		t.Errorf("A failed replace must not change the policy set, got %d", got)
	}
}

func TestScanner_Scan(t *testing.T) {
	scanner := NewScanner(newTestEngine(t), zerolog.New(nil).Level(zerolog.Disabled))

	in := workflow.ArtifactInput{
		Artifact:    `resource "aws_s3_bucket" "data" {}`,
		Request:     "Create an S3 bucket",
		Assumptions: map[string]string{"environment": "production"},
	}
	result, err := scanner.Scan(context.Background(), in)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.RawFindings) != 3 {
		t.Fatalf("Expected 3 raw findings, got %+v", result.RawFindings)
	}
	for _, f := range result.RawFindings {
		if f.Resource != "aws_s3_bucket.data" || f.Severity == "" {
			t.Errorf("Unexpected raw finding %+v", f)
		}
	}

	in.Artifact = `resource "aws_s3_bucket" "data" {`
	if _, err := scanner.Scan(context.Background(), in); err == nil {
		t.Error("Expected a parse error")
	}
}

package completeness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/plan"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// artifactOf renders one empty resource block per type, numbering repeats.
func artifactOf(types ...string) string {
	var b strings.Builder
	seen := map[string]int{}
	for _, t := range types {
		seen[t]++
		fmt.Fprintf(&b, "resource %q \"r%d\" {}\n\n", t, seen[t])
	}
	return b.String()
}

func check(t *testing.T, c *Checker, in workflow.ArtifactInput) []string {
	t.Helper()
	res, err := c.CheckCompleteness(context.Background(), in)
	if err != nil {
		t.Fatalf("CheckCompleteness failed: %v", err)
	}
	return res.Missing
}

func TestChecker_Patterns(t *testing.T) {
	c := NewChecker(testLogger())

	completeEKS := []string{
		"aws_vpc", "aws_subnet", "aws_subnet", "aws_internet_gateway", "aws_route_table",
		"aws_iam_role", "aws_iam_role", "aws_eks_cluster", "aws_eks_node_group", "aws_security_group",
	}

	tests := []struct {
		name     string
		request  string
		artifact string
		want     []string
	}{
		{
			name:     "vpc only for a kubernetes request",
			request:  "Create a Kubernetes cluster for staging",
			artifact: artifactOf("aws_vpc", "aws_subnet"),
			want: []string{
				"Missing required components: EKS cluster, EKS node group, Subnets (1/2), IAM roles (0/2)",
				"Only 2 resources generated (need at least 10 for a complete kubernetes)",
			},
		},
		{
			name:     "complete eks",
			request:  "Create an EKS cluster",
			artifact: artifactOf(completeEKS...),
		},
		{
			name:     "database alternatives on azure",
			request:  "Postgres database for the billing service",
			artifact: artifactOf("azurerm_resource_group", "azurerm_postgresql_flexible_server", "azurerm_virtual_network"),
		},
		{
			name:     "load balancer below minimum total",
			request:  "Application load balancer in front of two instances",
			artifact: artifactOf("aws_lb", "aws_lb_target_group", "aws_lb_listener"),
			want: []string{
				"Missing required components: Security group",
				"Only 3 resources generated (need at least 4 for a complete load_balancer)",
			},
		},
		{
			name:     "no pattern",
			request:  "An S3 bucket for logs",
			artifact: artifactOf("aws_s3_bucket"),
		},
		{
			name:     "pattern without requirements for the provider",
			request:  "Web server with nginx",
			artifact: artifactOf("google_compute_instance"),
		},
		{
			name:     "no recognizable provider",
			request:  "A container service",
			artifact: artifactOf("random_pet"),
			want:     []string{MessageUnknownProvider},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := check(t, c, workflow.ArtifactInput{Artifact: tt.artifact, Request: tt.request})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Missing = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChecker_ProviderFromAssumptions(t *testing.T) {
	c := NewChecker(testLogger())

	got := check(t, c, workflow.ArtifactInput{
		Artifact:    artifactOf("random_pet"),
		Request:     "A container service",
		Assumptions: map[string]string{"cloud_provider": "aws"},
	})
	if len(got) != 2 || !strings.HasPrefix(got[0], "Missing required components: ECS cluster") {
		t.Errorf("Expected the aws container requirements, got %q", got)
	}
}

func TestChecker_PlanTypeAndComponents(t *testing.T) {
	c := NewChecker(testLogger())

	p := &plan.Plan{
		InfrastructureType: "database",
		CloudProvider:      "aws",
		Components: []plan.Component{
			{Name: "db", ResourceType: "aws_db_instance"},
			{Name: "subnets", ResourceType: "aws_db_subnet_group"},
			{Name: "sg", ResourceType: "aws_security_group"},
			{Name: "key", ResourceType: "aws_kms_key"},
		},
	}

	got := check(t, c, workflow.ArtifactInput{
		Artifact: artifactOf("aws_db_instance", "aws_db_subnet_group", "aws_security_group", "aws_vpc"),
		Request:  "Something for storing orders",
		Plan:     p,
	})
	want := []string{"Planned components not generated: aws_kms_key"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Missing = %q, want %q", got, want)
	}
}

func TestChecker_DetectPattern(t *testing.T) {
	c := NewChecker(testLogger())

	tests := []struct {
		request   string
		infraType string
		want      string
	}{
		{"Deploy a K8S platform", "", "kubernetes"},
		{"ECS Fargate service", "", "container"},
		{"Nginx web server", "", "web_server"},
		{"anything", "load_balancer", "load_balancer"},
		{"a MySQL cluster", "", "kubernetes"},
		{"an S3 bucket", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			got := ""
			if p := c.DetectPattern(tt.request, tt.infraType); p != nil {
				got = p.Name
			}
			if got != tt.want {
				t.Errorf("DetectPattern(%q, %q) = %q, want %q", tt.request, tt.infraType, got, tt.want)
			}
		})
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		types map[string]int
		want  string
	}{
		{map[string]int{"aws_vpc": 1, "tls_private_key": 1}, "aws"},
		{map[string]int{"azurerm_resource_group": 2, "aws_s3_bucket": 1}, "azure"},
		{map[string]int{"google_compute_network": 1, "aws_s3_bucket": 1}, "aws"},
		{map[string]int{"random_pet": 1}, ""},
		{map[string]int{}, ""},
	}
	for _, tt := range tests {
		if got := DetectProvider(tt.types); got != tt.want {
			t.Errorf("DetectProvider(%v) = %q, want %q", tt.types, got, tt.want)
		}
	}
}

func TestChecker_StarlarkRules(t *testing.T) {
	dir := t.TempDir()
	rules := map[string]string{
		"encryption.star": `
def _gaps():
    out = []
    if resource_types.get("aws_s3_bucket", 0) > 0 and resource_types.get("aws_kms_key", 0) == 0:
        out.append("Missing required components: KMS key for bucket encryption")
    return out

missing = _gaps()
`,
		"noop.star":   "missing = []\n",
		"broken.star": "missing = [\n",
		"README.md":   "not a rule",
	}
	for name, src := range rules {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0644); err != nil {
			t.Fatalf("Failed to write rule: %v", err)
		}
	}

	c := NewChecker(testLogger())
	if err := c.LoadRules([]string{dir}); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if len(c.Rules()) != 3 {
		t.Fatalf("Expected 3 rules, got %d", len(c.Rules()))
	}

	got := check(t, c, workflow.ArtifactInput{
		Artifact: artifactOf("aws_s3_bucket"),
		Request:  "A bucket",
	})
	want := []string{"Missing required components: KMS key for bucket encryption"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Missing = %q, want %q", got, want)
	}

	if err := c.LoadRules([]string{filepath.Join(dir, "absent")}); err == nil {
		t.Error("Expected an error for a missing rule path")
	}
}

func TestChecker_RuleWithWrongOutput(t *testing.T) {
	c := NewChecker(testLogger())
	c.AddRule(Rule{Name: "wrong.star", Source: "missing = \"a string\"\n"})
	c.AddRule(Rule{Name: "numbers.star", Source: "missing = [1, 2]\n"})

	got := check(t, c, workflow.ArtifactInput{Artifact: artifactOf("aws_s3_bucket"), Request: "bucket"})
	if len(got) != 0 {
		t.Errorf("Malformed rules must be skipped, got %q", got)
	}
}

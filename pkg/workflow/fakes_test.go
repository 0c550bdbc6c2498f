package workflow

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/plan"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

const bucketArtifact = `resource "aws_s3_bucket" "data" {
  bucket = "app-data"
}
`

const encryptedBucketArtifact = `resource "aws_s3_bucket" "data" {
  bucket = "app-data"

  server_side_encryption_configuration {
    rule {
      apply_server_side_encryption_by_default {
        sse_algorithm = "aws:kms"
      }
    }
  }
}
`

// fakeGenerator returns artifacts produced by fn and records every context.
type fakeGenerator struct {
	mu       sync.Mutex
	fn       func(gen GenerationContext) (string, error)
	contexts []GenerationContext
}

func (g *fakeGenerator) Generate(_ context.Context, gen GenerationContext) (GenerateResult, error) {
	g.mu.Lock()
	g.contexts = append(g.contexts, gen)
	g.mu.Unlock()

	artifact, err := g.fn(gen)
	if err != nil {
		return GenerateResult{}, err
	}
	return GenerateResult{Artifact: artifact}, nil
}

func (g *fakeGenerator) calls() []GenerationContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GenerationContext(nil), g.contexts...)
}

func staticGenerator(artifact string) *fakeGenerator {
	return &fakeGenerator{fn: func(GenerationContext) (string, error) { return artifact, nil }}
}

type syntaxFunc func(artifact string) (string, error)

func (f syntaxFunc) ValidateSyntax(_ context.Context, in ArtifactInput) (SyntaxResult, error) {
	msg, err := f(in.Artifact)
	return SyntaxResult{Error: msg}, err
}

type completenessFunc func(artifact string) []string

func (f completenessFunc) CheckCompleteness(_ context.Context, in ArtifactInput) (CompletenessResult, error) {
	return CompletenessResult{Missing: f(in.Artifact)}, nil
}

type deepFunc func(artifact string) DeepResult

func (f deepFunc) ValidateDeep(_ context.Context, in ArtifactInput) (DeepResult, error) {
	return f(in.Artifact), nil
}

// fakeScanner returns findings produced by fn and counts its invocations.
type fakeScanner struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, artifact string) ([]RawFinding, error)
}

func (s *fakeScanner) Scan(_ context.Context, in ArtifactInput) (ScanResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	findings, err := s.fn(call, in.Artifact)
	return ScanResult{RawFindings: findings}, err
}

type clarifierFunc func(request string) (ClarifyResult, error)

func (f clarifierFunc) Clarify(_ context.Context, request string) (ClarifyResult, error) {
	return f(request)
}

type plannerFunc func(request string, assumptions map[string]string) (PlanResult, error)

func (f plannerFunc) Plan(_ context.Context, request string, assumptions map[string]string) (PlanResult, error) {
	return f(request, assumptions)
}

type costFunc func() (CostResult, error)

func (f costFunc) EstimateCost(context.Context, ArtifactInput) (CostResult, error) {
	return f()
}

type configFunc func(artifact string) (ConfigResult, error)

func (f configFunc) GenerateConfig(_ context.Context, in ArtifactInput) (ConfigResult, error) {
	return f(in.Artifact)
}

type parserFunc func(artifact string) (ParseResult, error)

func (f parserFunc) ParseGraph(_ context.Context, in ArtifactInput) (ParseResult, error) {
	return f(in.Artifact)
}

// unencryptedBucketFinding reports aws_s3_bucket.data while its own block has
// no encryption configuration.
func unencryptedBucketFinding(artifact string) []RawFinding {
	block := resourceBlockText(artifact, `resource "aws_s3_bucket" "data" {`)
	if block == "" || strings.Contains(block, "sse_algorithm") {
		return nil
	}
	return []RawFinding{{
		CheckID:   "CKV_AWS_19",
		CheckName: "Ensure the S3 bucket has server-side encryption enabled",
		Resource:  "aws_s3_bucket.data",
		Severity:  "HIGH",
		Guideline: "Add server_side_encryption_configuration to the bucket.",
	}}
}

func resourceBlockText(artifact, header string) string {
	start := strings.Index(artifact, header)
	if start < 0 {
		return ""
	}
	rest := artifact[start:]
	if end := strings.Index(rest, "\n}\n"); end >= 0 {
		return rest[:end]
	}
	return rest
}

func newTestEngine(c Collaborators, cfg Config) (*Engine, error) {
	registry, err := NewStageRegistry(c)
	if err != nil {
		return nil, err
	}
	return NewEngine(registry, cfg, testLogger()), nil
}

func testPlan() *plan.Plan {
	return &plan.Plan{
		InfrastructureType: "storage",
		CloudProvider:      "aws",
		Components: []plan.Component{
			{Name: "data", ResourceType: "aws_s3_bucket"},
		},
		ExecutionOrder: []string{"data"},
	}
}

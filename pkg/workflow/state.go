package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openfroyo/infraforge/pkg/plan"
)

// ViolationRecord is one normalized policy finding against one resource.
type ViolationRecord struct {
	// ID is the policy check identifier (e.g. "IF_AWS_S3_002").
	ID string `json:"id"`

	// Title is the human-readable check name.
	Title string `json:"title"`

	// AffectedResource is the resource address the finding is about (e.g. "aws_s3_bucket.logs").
	AffectedResource string `json:"affected_resource"`

	// Severity is the normalized severity.
	Severity Severity `json:"severity"`

	// Guidance explains how to fix the finding.
	Guidance string `json:"guidance,omitempty"`
}

// ViolationIdentity is the comparable identity of a violation across scans.
type ViolationIdentity struct {
	ID               string
	AffectedResource string
}

// String returns the identity as "id@resource".
func (i ViolationIdentity) String() string {
	return i.ID + "@" + i.AffectedResource
}

// Identity returns the (ID, AffectedResource) identity of the record.
func (v ViolationRecord) Identity() ViolationIdentity {
	return ViolationIdentity{ID: v.ID, AffectedResource: v.AffectedResource}
}

// SyntaxError is the single syntax-level error of the current attempt.
type SyntaxError struct {
	Kind    SyntaxErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// Graph is the resource graph produced by the parse stage.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphNode is one resource in the graph.
type GraphNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// GraphEdge connects two resources.
type GraphEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// State is the single record threaded through every stage of one run.
// It is owned by exactly one Engine.Run invocation and mutated only by the
// engine's merge step.
type State struct {
	RunID string `json:"run_id"`

	// Request is the original natural-language intent.
	Request string `json:"request"`

	// Assumptions are the defaults made explicit by clarification. Append-only.
	Assumptions map[string]string `json:"assumptions"`

	// Plan is set once by the planning stage.
	Plan *plan.Plan `json:"plan,omitempty"`

	// Artifact is the current generated infrastructure definition.
	Artifact string `json:"artifact"`

	// ConfigArtifact is the generated configuration-management script.
	ConfigArtifact string `json:"config_artifact"`

	SyntaxError     *SyntaxError      `json:"syntax_error,omitempty"`
	Violations      []ViolationRecord `json:"violations"`
	CompletenessGap []string          `json:"completeness_gap,omitempty"`

	// RetryCount counts generation attempts. It never decreases.
	RetryCount int `json:"retry_count"`

	// StageFailures counts failures per stage.
	StageFailures map[Stage]int `json:"stage_failures"`

	// Streaks counts consecutive scans that reported the same violation identity.
	Streaks map[string]int `json:"streaks,omitempty"`

	// Checked records the stages already run against the current artifact.
	Checked map[Stage]bool `json:"-"`

	PlannedResources int      `json:"planned_resources"`
	Graph            *Graph   `json:"graph,omitempty"`
	MonthlyCost      string   `json:"monthly_cost,omitempty"`
	Logs             []string `json:"logs"`

	Status  Status         `json:"status"`
	Failure *WorkflowError `json:"failure,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewState creates the initial state for a request.
func NewState(request string) *State {
	return &State{
		RunID:         uuid.New().String(),
		Request:       request,
		Assumptions:   map[string]string{},
		Violations:    []ViolationRecord{},
		StageFailures: map[Stage]int{},
		Streaks:       map[string]int{},
		Checked:       map[Stage]bool{},
		Logs:          []string{},
		Status:        StatusRunning,
		StartedAt:     time.Now(),
	}
}

// HasArtifact reports whether a generation attempt has produced an artifact.
func (s *State) HasArtifact() bool {
	return s.Artifact != ""
}

// NeedsRemediation reports whether the current artifact has unresolved errors.
func (s *State) NeedsRemediation() bool {
	return s.SyntaxError != nil || len(s.Violations) > 0 || len(s.CompletenessGap) > 0
}

// Logf appends a human-readable event to the run log.
func (s *State) Logf(stage Stage, format string, args ...interface{}) {
	s.Logs = append(s.Logs, fmt.Sprintf("[%s] %s", stage, fmt.Sprintf(format, args...)))
}

// fail moves the state to failed with the given reason.
func (s *State) fail(reason *WorkflowError) {
	s.Status = StatusFailed
	s.Failure = reason
}

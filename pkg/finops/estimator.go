// Package finops estimates the monthly cloud cost of generated Terraform with
// infracost. Every failure degrades to an "unavailable" estimate.
package finops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/infraforge/pkg/sandbox"
	"github.com/openfroyo/infraforge/pkg/telemetry"
	"github.com/openfroyo/infraforge/pkg/terraform"
	"github.com/openfroyo/infraforge/pkg/workflow"
)

// Messages reported in place of a cost when no estimate could be made.
const (
	MessageAPIKeyMissing = "Cost estimation unavailable (API key missing)"
	MessageToolError     = "Unable to estimate cost (Infracost error)"
	MessageParseError    = "Unable to estimate cost (parse error)"
)

const defaultTimeout = 60 * time.Second

// ErrAPIKeyMissing is returned by Estimate when no infracost API key is set.
var ErrAPIKeyMissing = errors.New("infracost api key missing")

// ResourceCost is the monthly cost of one resource.
type ResourceCost struct {
	Name        string  `json:"name"`
	MonthlyCost float64 `json:"monthly_cost"`
}

// Breakdown is a parsed infracost estimate.
type Breakdown struct {
	TotalMonthlyCost  float64        `json:"total_monthly_cost"`
	Currency          string         `json:"currency"`
	DetectedResources int            `json:"detected_resources"`
	Resources         []ResourceCost `json:"resources"`
}

// Formatted renders the total as "$12.34/mo".
func (b *Breakdown) Formatted() string {
	return FormatMonthly(b.TotalMonthlyCost)
}

// FormatMonthly renders a monthly amount in dollars.
func FormatMonthly(amount float64) string {
	return fmt.Sprintf("$%.2f/mo", amount)
}

// Estimator implements workflow.CostEstimator by running
// "infracost breakdown --format json" in a private workspace.
type Estimator struct {
	runner  *sandbox.Runner
	binary  string
	apiKey  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEstimator creates an estimator. An empty binary uses "infracost".
func NewEstimator(runner *sandbox.Runner, binary, apiKey string, logger zerolog.Logger) *Estimator {
	if binary == "" {
		binary = "infracost"
	}
	return &Estimator{
		runner:  runner,
		binary:  binary,
		apiKey:  apiKey,
		timeout: defaultTimeout,
		logger:  telemetry.ComponentLogger(logger, "finops"),
	}
}

// EstimateCost returns the formatted monthly cost. Tool and parse failures
// are reported as unavailable results; an error means infracost could not
// run at all.
func (e *Estimator) EstimateCost(ctx context.Context, in workflow.ArtifactInput) (workflow.CostResult, error) {
	b, err := e.Estimate(ctx, in.Artifact)
	switch {
	case err == nil:
		e.logger.Info().
			Str("cost", b.Formatted()).
			Int("resources", b.DetectedResources).
			Msg("Cost estimate calculated")
		return workflow.CostResult{MonthlyCost: b.Formatted()}, nil
	case errors.Is(err, ErrAPIKeyMissing):
		e.logger.Warn().Msg("Infracost API key not set, cost estimation unavailable")
		return workflow.CostResult{MonthlyCost: MessageAPIKeyMissing, Unavailable: true}, nil
	case errors.Is(err, errToolFailed):
		e.logger.Error().Err(err).Msg("Infracost failed")
		return workflow.CostResult{MonthlyCost: MessageToolError, Unavailable: true}, nil
	case errors.Is(err, errParse):
		e.logger.Error().Err(err).Msg("Failed to parse infracost output")
		return workflow.CostResult{MonthlyCost: MessageParseError, Unavailable: true}, nil
	default:
		return workflow.CostResult{}, err
	}
}

var (
	errToolFailed = errors.New("infracost failed")
	errParse      = errors.New("invalid infracost output")
)

// Estimate runs infracost over the artifact and returns the parsed breakdown.
func (e *Estimator) Estimate(ctx context.Context, artifact string) (*Breakdown, error) {
	if e.apiKey == "" {
		return nil, ErrAPIKeyMissing
	}

	ws, err := sandbox.NewWorkspace("infraforge-cost")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			e.logger.Warn().Err(err).Str("dir", ws.Dir).Msg("Failed to clean up workspace")
		}
	}()

	if _, err := ws.WriteFile(terraform.DefaultFilename, artifact); err != nil {
		return nil, err
	}

	res, err := e.runner.Run(ctx, sandbox.Command{
		Name:    e.binary,
		Args:    []string{"breakdown", "--path", ".", "--format", "json"},
		Dir:     ws.Dir,
		Env:     map[string]string{"INFRACOST_API_KEY": e.apiKey},
		Timeout: e.timeout,
	})
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, fmt.Errorf("%w: exit code %d: %s", errToolFailed, res.ExitCode, truncate(res.Stderr, 300))
	}
	return ParseBreakdown([]byte(res.Stdout))
}

type infracostOutput struct {
	Currency string `json:"currency"`
	Projects []struct {
		Breakdown *struct {
			TotalMonthlyCost       *string `json:"totalMonthlyCost"`
			TotalDetectedResources int     `json:"totalDetectedResources"`
			Resources              []struct {
				Name        string  `json:"name"`
				MonthlyCost *string `json:"monthlyCost"`
			} `json:"resources"`
		} `json:"breakdown"`
	} `json:"projects"`
}

// ParseBreakdown parses "infracost breakdown --format json" output. Costs of
// all projects are summed; resources without a cost are omitted.
func ParseBreakdown(data []byte) (*Breakdown, error) {
	var out infracostOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", errParse, err)
	}

	b := &Breakdown{Currency: out.Currency, Resources: []ResourceCost{}}
	if b.Currency == "" {
		b.Currency = "USD"
	}
	for _, p := range out.Projects {
		if p.Breakdown == nil {
			continue
		}
		total, err := parseAmount(p.Breakdown.TotalMonthlyCost)
		if err != nil {
			return nil, err
		}
		b.TotalMonthlyCost += total
		b.DetectedResources += p.Breakdown.TotalDetectedResources

		for _, r := range p.Breakdown.Resources {
			if r.MonthlyCost == nil {
				continue
			}
			cost, err := parseAmount(r.MonthlyCost)
			if err != nil {
				return nil, err
			}
			b.Resources = append(b.Resources, ResourceCost{Name: r.Name, MonthlyCost: cost})
		}
	}

	sort.SliceStable(b.Resources, func(i, j int) bool {
		if b.Resources[i].MonthlyCost != b.Resources[j].MonthlyCost {
			return b.Resources[i].MonthlyCost > b.Resources[j].MonthlyCost
		}
		return b.Resources[i].Name < b.Resources[j].Name
	})
	return b, nil
}

func parseAmount(s *string) (float64, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cost %q", errParse, *s)
	}
	return v, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package workflow

import (
	"fmt"
	"sort"
)

const (
	// DefaultMaxRetries bounds the total number of generation attempts.
	DefaultMaxRetries = 5

	// DefaultStreakThreshold is the highest streak a violation identity may
	// reach before the run gives up on it.
	DefaultStreakThreshold = 2
)

// RetryBudget decides whether another generation attempt is permitted.
// It holds only limits; all counters live in State so Admit stays pure.
type RetryBudget struct {
	// MaxRetries is the global ceiling on generation attempts.
	MaxRetries int

	// StreakThreshold is the highest tolerated streak per violation identity.
	StreakThreshold int

	// MaxStageFailures is the per-stage failure ceiling. Zero disables it.
	MaxStageFailures int
}

// NewRetryBudget creates a budget. Non-positive maxRetries and streakThreshold
// fall back to their defaults.
func NewRetryBudget(maxRetries, streakThreshold, maxStageFailures int) *RetryBudget {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if streakThreshold <= 0 {
		streakThreshold = DefaultStreakThreshold
	}
	if maxStageFailures < 0 {
		maxStageFailures = 0
	}
	return &RetryBudget{
		MaxRetries:       maxRetries,
		StreakThreshold:  streakThreshold,
		MaxStageFailures: maxStageFailures,
	}
}

// Admit reports whether stage may run given the counters in s.
func (b *RetryBudget) Admit(s *State, stage Stage) bool {
	return b.Check(s, stage) == nil
}

// Check returns the budget-exhausted error that blocks stage, or nil.
// Only generation attempts are metered.
func (b *RetryBudget) Check(s *State, stage Stage) *WorkflowError {
	if stage != StageGenerate {
		return nil
	}

	if s.RetryCount >= b.MaxRetries {
		return NewBudgetExhaustedError(
			fmt.Sprintf("retry budget exhausted after %d generation attempts", s.RetryCount),
		).WithCode(ErrCodeMaxRetries).WithStage(stage)
	}

	for _, key := range sortedKeys(s.Streaks) {
		if streak := s.Streaks[key]; streak > b.StreakThreshold {
			return NewBudgetExhaustedError(
				fmt.Sprintf("violation %s persisted across %d consecutive remediation attempts", key, streak),
			).WithCode(ErrCodeViolationStreak).WithStage(stage).WithDetail("identity", key)
		}
	}

	if b.MaxStageFailures > 0 {
		for _, st := range AllStages {
			if n := s.StageFailures[st]; n >= b.MaxStageFailures {
				return NewBudgetExhaustedError(
					fmt.Sprintf("stage %s failed %d times without converging", st, n),
				).WithCode(ErrCodeStageCeiling).WithStage(st)
			}
		}
	}

	return nil
}

// Observe updates the violation streaks after a scan. An identity reported by
// the previous scan and again by this one has its streak incremented; a new
// identity starts at zero; an identity no longer reported is forgotten.
func (b *RetryBudget) Observe(s *State, violations []ViolationRecord) {
	next := make(map[string]int, len(violations))
	for _, v := range violations {
		key := v.Identity().String()
		if _, done := next[key]; done {
			continue
		}
		if prev, ok := s.Streaks[key]; ok {
			next[key] = prev + 1
		} else {
			next[key] = 0
		}
	}
	s.Streaks = next
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

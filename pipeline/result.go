package pipeline

import (
	"sync"
	"time"

	"github.com/conveyr/conveyr-go/rules"
)

// StageStatus is the terminal status of one stage
type StageStatus string

const (
	StatusPassed          StageStatus = "passed"
	StatusFailedTerminate StageStatus = "failed-terminate"
	StatusFailedWarn      StageStatus = "failed-warn"
	StatusFailedReview    StageStatus = "failed-review"
	StatusSkipped         StageStatus = "skipped"
)

// RunStatus is the overall status of a run
type RunStatus string

const (
	RunCompleted  RunStatus = "completed"
	RunTerminated RunStatus = "terminated"
)

// StageResult records the terminal outcome of one stage.
type StageResult struct {
	StageName string                `json:"stageName"`
	Status    StageStatus           `json:"status"`
	Duration  time.Duration         `json:"duration"`
	Attempts  int                   `json:"attempts"`
	Error     string                `json:"error,omitempty"`
	Triggered []rules.TriggeredRule `json:"triggeredRules,omitempty"`
}

// RunResult is the terminal, inspectable summary of one orchestration run.
// Results appears in completion order.
type RunResult struct {
	RunID          string         `json:"runId"`
	PipelineName   string         `json:"pipelineName"`
	Status         RunStatus      `json:"status"`
	Terminated     bool           `json:"terminated"`
	RequiresReview bool           `json:"requiresReview"`
	Warnings       []string       `json:"warnings,omitempty"`
	ReviewFlags    []string       `json:"reviewFlags,omitempty"`
	Results        []*StageResult `json:"stageResults"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        time.Time      `json:"endTime"`
	Duration       time.Duration  `json:"duration"`
}

// Stage returns the result recorded for name, nil when the stage never
// reached a terminal state (which only happens for runs that are still in
// flight).
func (r *RunResult) Stage(name string) *StageResult {
	for _, res := range r.Results {
		if res.StageName == name {
			return res
		}
	}
	return nil
}

// aggregator accumulates stage results into the single RunResult. It is
// shared by all workers of a wave, so every mutation takes the lock.
type aggregator struct {
	mu      sync.Mutex
	result  *RunResult
	aborted bool
}

func newAggregator(runID, pipelineName string, start time.Time) *aggregator {
	return &aggregator{
		result: &RunResult{
			RunID:        runID,
			PipelineName: pipelineName,
			Results:      make([]*StageResult, 0),
			StartTime:    start,
		},
	}
}

// apply records a stage result and folds its policy decision into the run.
func (a *aggregator) apply(res *StageResult, decision Decision) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.result.Results = append(a.result.Results, res)

	switch decision.Kind {
	case DecisionProceedWithWarning:
		a.result.Warnings = append(a.result.Warnings, decision.Message)
	case DecisionProceedFlagged:
		a.result.ReviewFlags = append(a.result.ReviewFlags, decision.Message)
		a.result.RequiresReview = true
	case DecisionAbort:
		a.aborted = true
	}
}

// skip records a stage that never started
func (a *aggregator) skip(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result.Results = append(a.result.Results, &StageResult{
		StageName: name,
		Status:    StatusSkipped,
	})
}

func (a *aggregator) isAborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.aborted
}

// finalize computes the overall status: Terminated iff any stage resolved to
// Abort, Completed otherwise, independent of warnings and review flags.
func (a *aggregator) finalize(end time.Time) *RunResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.result.EndTime = end
	a.result.Duration = end.Sub(a.result.StartTime)
	if a.aborted {
		a.result.Status = RunTerminated
		a.result.Terminated = true
	} else {
		a.result.Status = RunCompleted
	}
	return a.result
}

package pipeline

import (
	"fmt"

	"github.com/conveyr/conveyr-go/rules"
)

// DecisionKind is the failure policy resolver's verdict for one stage
type DecisionKind string

const (
	DecisionProceed            DecisionKind = "proceed"
	DecisionProceedWithWarning DecisionKind = "proceed-with-warning"
	DecisionProceedFlagged     DecisionKind = "proceed-flagged"
	DecisionAbort              DecisionKind = "abort"
)

// Decision tells the scheduler how a stage's outcome affects the run
type Decision struct {
	Kind    DecisionKind
	Message string
}

// ResolveFailure is the failure policy state machine. A stage has failed
// when its operation errored after exhausting retries, or when its rule gate
// failed with Error severity. An optional stage's failure always downgrades
// to a warning, regardless of the declared policy; otherwise the stage's
// failure policy decides between aborting the run, continuing with a
// warning, and continuing flagged for manual review.
//
// The function is pure: it inspects its arguments and touches nothing else.
func ResolveFailure(stage *StageDefinition, outcome *rules.Outcome, opErr error) Decision {
	failed := opErr != nil || (outcome != nil && outcome.Failed())
	if !failed {
		return Decision{Kind: DecisionProceed}
	}

	msg := failureMessage(stage, outcome, opErr)

	if stage.Optional {
		return Decision{Kind: DecisionProceedWithWarning, Message: msg}
	}

	switch stage.FailurePolicy {
	case PolicyTerminate:
		return Decision{Kind: DecisionAbort, Message: msg}
	case PolicyFlagForReview:
		return Decision{Kind: DecisionProceedFlagged, Message: msg}
	default:
		return Decision{Kind: DecisionProceedWithWarning, Message: msg}
	}
}

func failureMessage(stage *StageDefinition, outcome *rules.Outcome, opErr error) string {
	if opErr != nil {
		return fmt.Sprintf("stage %q failed: %v", stage.Name, opErr)
	}
	if outcome.Message != "" {
		return fmt.Sprintf("stage %q failed validation: %s", stage.Name, outcome.Message)
	}
	return fmt.Sprintf("stage %q failed validation", stage.Name)
}

// statusFor maps a decision onto the stage's terminal status
func statusFor(kind DecisionKind) StageStatus {
	switch kind {
	case DecisionProceedWithWarning:
		return StatusFailedWarn
	case DecisionProceedFlagged:
		return StatusFailedReview
	case DecisionAbort:
		return StatusFailedTerminate
	default:
		return StatusPassed
	}
}

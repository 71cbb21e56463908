package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conveyr/conveyr-go/internal/reliability"
	"github.com/conveyr/conveyr-go/rules"
)

// stageExecutor runs a single stage: typed operation dispatch, bounded
// retry, rule gate, timing. No error escapes execute; every failure is
// folded into the StageResult and the policy decision.
type stageExecutor struct {
	sources    map[string]DataSource
	sinks      map[string]DataSink
	transforms map[string]TransformFunc
	evaluator  rules.Evaluator
	logger     *slog.Logger
}

// execute runs one stage against the shared context and returns its terminal
// result together with the failure policy decision.
func (x *stageExecutor) execute(ctx context.Context, runID string, p *Pipeline, stage *StageDefinition, ec *ExecutionContext) (*StageResult, Decision) {
	start := time.Now()

	x.logger.Info("executing stage",
		"pipeline", p.Name,
		"runId", runID,
		"stage", stage.Name,
		"kind", stage.Kind)

	var opErr error
	attempts, err := reliability.Retry(ctx, p.retryFor(stage).policy(), func() error {
		return x.runOperation(ctx, p, stage, ec)
	})
	if err != nil {
		opErr = &OperationError{Stage: stage.Name, Kind: stage.Kind, Attempts: attempts, Err: err}
	}

	// Gate failures are deterministic for a given context, so they are never
	// retried.
	var outcome *rules.Outcome
	if opErr == nil && stage.Rules != nil {
		o := stage.Rules.Evaluate(ctx, x.evaluator, ec.Snapshot())
		outcome = &o
	}

	decision := ResolveFailure(stage, outcome, opErr)
	duration := time.Since(start)

	result := &StageResult{
		StageName: stage.Name,
		Status:    statusFor(decision.Kind),
		Duration:  duration,
		Attempts:  attempts,
	}
	if opErr != nil {
		result.Error = opErr.Error()
	}
	if outcome != nil {
		result.Triggered = outcome.Triggered
	}

	switch decision.Kind {
	case DecisionProceed:
		x.logger.Info("stage passed",
			"pipeline", p.Name,
			"runId", runID,
			"stage", stage.Name,
			"attempts", attempts,
			"duration", duration)
	case DecisionAbort:
		x.logger.Error("stage failed, terminating run",
			"pipeline", p.Name,
			"runId", runID,
			"stage", stage.Name,
			"attempts", attempts,
			"duration", duration,
			"reason", decision.Message)
	default:
		x.logger.Warn("stage failed, continuing",
			"pipeline", p.Name,
			"runId", runID,
			"stage", stage.Name,
			"decision", decision.Kind,
			"duration", duration,
			"reason", decision.Message)
	}

	return result, decision
}

// runOperation dispatches on the stage kind. The closed set keeps dispatch
// in one place; adapters plug in through the engine registries.
func (x *stageExecutor) runOperation(ctx context.Context, p *Pipeline, stage *StageDefinition, ec *ExecutionContext) error {
	switch stage.Kind {
	case KindExtract:
		value, err := x.sources[stage.Source].Read(ctx, stage.Operation)
		if err != nil {
			return err
		}
		ec.Set(stage.Key(), value)
		return nil

	case KindLoad:
		value, ok := ec.Get(stage.Key())
		if !ok {
			// Missing input is a configuration-shaped problem; retrying
			// cannot make the key appear.
			return reliability.Permanent(fmt.Errorf("no data in context under key %q", stage.Key()))
		}
		return x.sinks[stage.Sink].Write(ctx, stage.Operation, value)

	case KindTransform:
		return x.transforms[stage.Operation](ctx, ec)

	case KindAudit:
		value, _ := ec.Get(stage.Key())
		record := auditRecord(p.Name, stage.Name, value)
		return x.sinks[stage.Sink].Write(ctx, stage.Operation, record)

	default:
		return reliability.Permanent(fmt.Errorf("unknown stage kind %q", stage.Kind))
	}
}

// auditRecord wraps the audited value in a side-channel envelope. Audit
// stages never mutate the primary context.
func auditRecord(pipelineName, stageName string, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"originalData": value,
		"pipelineName": pipelineName,
		"stageName":    stageName,
		"timestamp":    time.Now().UnixMilli(),
		"status":       "processed",
	}
}

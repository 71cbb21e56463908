package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/conveyr/conveyr-go/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySource struct {
	mu       sync.Mutex
	failures int
	value    interface{}
	calls    int
}

func (s *flakySource) Read(_ context.Context, _ string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("transient read failure")
	}
	return s.value, nil
}

type recordingSink struct {
	mu     sync.Mutex
	writes []struct {
		op    string
		value interface{}
	}
	err error
}

func (s *recordingSink) Write(_ context.Context, operation string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, struct {
		op    string
		value interface{}
	}{operation, value})
	return nil
}

type countingEvaluator struct {
	mu     sync.Mutex
	calls  int
	result bool
	err    error
}

func (e *countingEvaluator) Evaluate(_ context.Context, _ string, _ map[string]interface{}) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.result, e.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor() *stageExecutor {
	return &stageExecutor{
		sources:    make(map[string]DataSource),
		sinks:      make(map[string]DataSink),
		transforms: make(map[string]TransformFunc),
		logger:     testLogger(),
	}
}

func TestExecutorDispatch(t *testing.T) {
	p := &Pipeline{Name: "test"}

	t.Run("extract stores value under context key", func(t *testing.T) {
		x := newTestExecutor()
		x.sources["db"] = &flakySource{value: []int{1, 2, 3}}
		ec := NewExecutionContext(nil)
		stage := &StageDefinition{
			Name:          "pull",
			Kind:          KindExtract,
			FailurePolicy: PolicyTerminate,
			Source:        "db",
			Operation:     "getAll",
			ContextKey:    "records",
		}

		res, decision := x.execute(context.Background(), "run-1", p, stage, ec)

		assert.Equal(t, DecisionProceed, decision.Kind)
		assert.Equal(t, StatusPassed, res.Status)
		assert.Equal(t, 1, res.Attempts)
		v, ok := ec.Get("records")
		require.True(t, ok)
		assert.Equal(t, []int{1, 2, 3}, v)
	})

	t.Run("context key defaults to stage name", func(t *testing.T) {
		x := newTestExecutor()
		x.sources["db"] = &flakySource{value: "v"}
		ec := NewExecutionContext(nil)
		stage := &StageDefinition{Name: "pull", Kind: KindExtract, FailurePolicy: PolicyTerminate, Source: "db"}

		x.execute(context.Background(), "run-1", p, stage, ec)

		_, ok := ec.Get("pull")
		assert.True(t, ok)
	})

	t.Run("load writes context value to sink", func(t *testing.T) {
		x := newTestExecutor()
		sink := &recordingSink{}
		x.sinks["warehouse"] = sink
		ec := NewExecutionContext(map[string]interface{}{"records": "payload"})
		stage := &StageDefinition{
			Name:          "push",
			Kind:          KindLoad,
			FailurePolicy: PolicyTerminate,
			Sink:          "warehouse",
			Operation:     "insert",
			ContextKey:    "records",
		}

		res, decision := x.execute(context.Background(), "run-1", p, stage, ec)

		assert.Equal(t, DecisionProceed, decision.Kind)
		assert.Equal(t, StatusPassed, res.Status)
		require.Len(t, sink.writes, 1)
		assert.Equal(t, "insert", sink.writes[0].op)
		assert.Equal(t, "payload", sink.writes[0].value)
	})

	t.Run("load with missing context key fails without retrying", func(t *testing.T) {
		x := newTestExecutor()
		x.sinks["warehouse"] = &recordingSink{}
		ec := NewExecutionContext(nil)
		stage := &StageDefinition{
			Name:          "push",
			Kind:          KindLoad,
			FailurePolicy: PolicyTerminate,
			Sink:          "warehouse",
			ContextKey:    "absent",
			Retry:         &RetryConfig{MaxRetries: 3, RetryDelay: time.Millisecond},
		}

		res, decision := x.execute(context.Background(), "run-1", p, stage, ec)

		assert.Equal(t, DecisionAbort, decision.Kind)
		assert.Equal(t, StatusFailedTerminate, res.Status)
		assert.Equal(t, 1, res.Attempts, "missing input is permanent, no retries")
		assert.Contains(t, res.Error, "no data in context")
	})

	t.Run("transform mutates context in place", func(t *testing.T) {
		x := newTestExecutor()
		x.transforms["double"] = func(_ context.Context, ec *ExecutionContext) error {
			v, _ := ec.Get("n")
			ec.Set("n", v.(int)*2)
			return nil
		}
		ec := NewExecutionContext(map[string]interface{}{"n": 21})
		stage := &StageDefinition{Name: "calc", Kind: KindTransform, FailurePolicy: PolicyTerminate, Operation: "double"}

		res, _ := x.execute(context.Background(), "run-1", p, stage, ec)

		assert.Equal(t, StatusPassed, res.Status)
		v, _ := ec.Get("n")
		assert.Equal(t, 42, v)
	})

	t.Run("audit writes envelope without touching context", func(t *testing.T) {
		x := newTestExecutor()
		sink := &recordingSink{}
		x.sinks["compliance"] = sink
		ec := NewExecutionContext(map[string]interface{}{"records": "payload"})
		stage := &StageDefinition{
			Name:          "trace",
			Kind:          KindAudit,
			FailurePolicy: PolicyContinueWithWarnings,
			Sink:          "compliance",
			Operation:     "append",
			ContextKey:    "records",
		}

		res, _ := x.execute(context.Background(), "run-1", p, stage, ec)

		assert.Equal(t, StatusPassed, res.Status)
		require.Len(t, sink.writes, 1)
		record, ok := sink.writes[0].value.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "payload", record["originalData"])
		assert.Equal(t, "test", record["pipelineName"])
		assert.Equal(t, "trace", record["stageName"])
		assert.Equal(t, "processed", record["status"])
		assert.Equal(t, 1, ec.Len(), "audit must not mutate the primary context")
	})
}

func TestExecutorRetry(t *testing.T) {
	p := &Pipeline{Name: "test"}

	t.Run("transient failures are retried until success", func(t *testing.T) {
		src := &flakySource{failures: 2, value: "ok"}
		x := newTestExecutor()
		x.sources["db"] = src
		stage := &StageDefinition{
			Name:          "pull",
			Kind:          KindExtract,
			FailurePolicy: PolicyTerminate,
			Source:        "db",
			Retry:         &RetryConfig{MaxRetries: 3, RetryDelay: time.Millisecond},
		}

		res, decision := x.execute(context.Background(), "run-1", p, stage, NewExecutionContext(nil))

		assert.Equal(t, DecisionProceed, decision.Kind)
		assert.Equal(t, 3, res.Attempts)
	})

	t.Run("exhausted retries hand the failure to the policy", func(t *testing.T) {
		src := &flakySource{failures: 10, value: "ok"}
		x := newTestExecutor()
		x.sources["db"] = src
		stage := &StageDefinition{
			Name:          "pull",
			Kind:          KindExtract,
			FailurePolicy: PolicyContinueWithWarnings,
			Source:        "db",
			Retry:         &RetryConfig{MaxRetries: 2, RetryDelay: time.Millisecond},
		}

		res, decision := x.execute(context.Background(), "run-1", p, stage, NewExecutionContext(nil))

		assert.Equal(t, DecisionProceedWithWarning, decision.Kind)
		assert.Equal(t, StatusFailedWarn, res.Status)
		assert.Equal(t, 3, res.Attempts)
		assert.Contains(t, res.Error, "after 3 attempts")
	})

	t.Run("pipeline retry default applies when stage has none", func(t *testing.T) {
		src := &flakySource{failures: 1, value: "ok"}
		x := newTestExecutor()
		x.sources["db"] = src
		withDefault := &Pipeline{
			Name:         "test",
			RetryDefault: &RetryConfig{MaxRetries: 1, RetryDelay: time.Millisecond},
		}
		stage := &StageDefinition{Name: "pull", Kind: KindExtract, FailurePolicy: PolicyTerminate, Source: "db"}

		res, decision := x.execute(context.Background(), "run-1", withDefault, stage, NewExecutionContext(nil))

		assert.Equal(t, DecisionProceed, decision.Kind)
		assert.Equal(t, 2, res.Attempts)
	})
}

func TestExecutorGate(t *testing.T) {
	p := &Pipeline{Name: "test"}
	group := rules.NewRuleGroup("g", rules.OperatorAnd, false, []rules.RuleRef{
		{Rule: &rules.Rule{ID: "r1", Condition: "c", Severity: rules.SeverityError, Message: "bad data"}, Sequence: 1},
	})

	t.Run("failing gate fails the stage", func(t *testing.T) {
		x := newTestExecutor()
		x.sources["db"] = &flakySource{value: "v"}
		x.evaluator = &countingEvaluator{result: false}
		stage := &StageDefinition{
			Name:          "pull",
			Kind:          KindExtract,
			FailurePolicy: PolicyFlagForReview,
			Source:        "db",
			Rules:         group,
		}

		res, decision := x.execute(context.Background(), "run-1", p, stage, NewExecutionContext(nil))

		assert.Equal(t, DecisionProceedFlagged, decision.Kind)
		assert.Equal(t, StatusFailedReview, res.Status)
		require.Len(t, res.Triggered, 1)
		assert.Equal(t, "r1", res.Triggered[0].RuleID)
	})

	t.Run("gate runs once even with retries configured", func(t *testing.T) {
		ev := &countingEvaluator{result: false}
		x := newTestExecutor()
		x.sources["db"] = &flakySource{value: "v"}
		x.evaluator = ev
		stage := &StageDefinition{
			Name:          "pull",
			Kind:          KindExtract,
			FailurePolicy: PolicyContinueWithWarnings,
			Source:        "db",
			Rules:         group,
			Retry:         &RetryConfig{MaxRetries: 5, RetryDelay: time.Millisecond},
		}

		x.execute(context.Background(), "run-1", p, stage, NewExecutionContext(nil))

		assert.Equal(t, 1, ev.calls)
	})

	t.Run("gate is skipped when the operation fails", func(t *testing.T) {
		ev := &countingEvaluator{result: true}
		x := newTestExecutor()
		x.sources["db"] = &flakySource{failures: 10}
		x.evaluator = ev
		stage := &StageDefinition{
			Name:          "pull",
			Kind:          KindExtract,
			FailurePolicy: PolicyTerminate,
			Source:        "db",
			Rules:         group,
		}

		_, decision := x.execute(context.Background(), "run-1", p, stage, NewExecutionContext(nil))

		assert.Equal(t, DecisionAbort, decision.Kind)
		assert.Equal(t, 0, ev.calls)
	})

	t.Run("passing gate attaches info annotations", func(t *testing.T) {
		infoGroup := rules.NewRuleGroup("g2", rules.OperatorAnd, false, []rules.RuleRef{
			{Rule: &rules.Rule{ID: "note", Condition: "c", Severity: rules.SeverityInfo, Message: "fyi"}, Sequence: 1},
		})
		x := newTestExecutor()
		x.sources["db"] = &flakySource{value: "v"}
		x.evaluator = &countingEvaluator{result: false}
		stage := &StageDefinition{
			Name:          "pull",
			Kind:          KindExtract,
			FailurePolicy: PolicyTerminate,
			Source:        "db",
			Rules:         infoGroup,
		}

		res, decision := x.execute(context.Background(), "run-1", p, stage, NewExecutionContext(nil))

		assert.Equal(t, DecisionProceed, decision.Kind)
		assert.Equal(t, StatusPassed, res.Status)
		require.Len(t, res.Triggered, 1)
		assert.Equal(t, rules.SeverityInfo, res.Triggered[0].Severity)
	})
}

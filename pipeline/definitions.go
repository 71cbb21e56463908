package pipeline

import (
	"context"
	"time"

	"github.com/conveyr/conveyr-go/internal/reliability"
	"github.com/conveyr/conveyr-go/rules"
)

// StageKind is the closed set of typed stage operations
type StageKind string

const (
	KindExtract   StageKind = "extract"
	KindLoad      StageKind = "load"
	KindTransform StageKind = "transform"
	KindAudit     StageKind = "audit"
)

// ValidKind reports whether k is one of the known stage kinds
func ValidKind(k StageKind) bool {
	switch k {
	case KindExtract, KindLoad, KindTransform, KindAudit:
		return true
	}
	return false
}

// FailurePolicy configures how a failed stage affects the run
type FailurePolicy string

const (
	PolicyTerminate            FailurePolicy = "terminate"
	PolicyContinueWithWarnings FailurePolicy = "continue-with-warnings"
	PolicyFlagForReview        FailurePolicy = "flag-for-review"
)

// ValidFailurePolicy reports whether p is one of the known policies
func ValidFailurePolicy(p FailurePolicy) bool {
	switch p {
	case PolicyTerminate, PolicyContinueWithWarnings, PolicyFlagForReview:
		return true
	}
	return false
}

// ExecutionMode defines how eligible stages are dispatched
type ExecutionMode string

const (
	Sequential ExecutionMode = "sequential"
	Parallel   ExecutionMode = "parallel"
)

// RetryConfig bounds retries of a stage's source/sink/transform call. The
// backoff curve is a policy setting, not engine logic.
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	// Exponential switches from a fixed delay to exponential backoff with
	// RetryDelay as the initial interval.
	Exponential bool
}

// policy converts the config into a reliability policy, nil when no retries
// are configured.
func (r *RetryConfig) policy() reliability.RetryPolicy {
	if r == nil || r.MaxRetries <= 0 {
		return nil
	}
	if r.Exponential {
		return reliability.NewExponentialBackoff(r.RetryDelay, 10*r.RetryDelay, 2.0, r.MaxRetries)
	}
	return reliability.NewFixedDelay(r.RetryDelay, r.MaxRetries)
}

// StageDefinition is one named unit of pipeline work. Definitions are
// compiled once from configuration and immutable afterwards; configuration
// reload produces a wholly new Pipeline rather than mutating in place.
type StageDefinition struct {
	Name          string
	Kind          StageKind
	DependsOn     []string
	Optional      bool
	FailurePolicy FailurePolicy

	// Rules gates the stage's success when non-nil.
	Rules *rules.RuleGroup

	// Retry applies to the stage's operation only; nil falls back to the
	// pipeline's retry defaults.
	Retry *RetryConfig

	// Source and Sink name adapters registered on the engine; Operation is
	// the opaque operation name passed through to the adapter.
	Source    string
	Sink      string
	Operation string

	// ContextKey is where an extract stage stores its value and where load
	// and audit stages read theirs. Empty defaults to the stage name.
	ContextKey string
}

// Key returns the context key the stage reads or writes
func (s *StageDefinition) Key() string {
	if s.ContextKey != "" {
		return s.ContextKey
	}
	return s.Name
}

// Pipeline is a compiled, immutable set of stage definitions plus execution
// settings.
type Pipeline struct {
	Name         string
	Mode         ExecutionMode
	Stages       []*StageDefinition
	RetryDefault *RetryConfig
}

// retryFor resolves the retry config for a stage, falling back to the
// pipeline default.
func (p *Pipeline) retryFor(stage *StageDefinition) *RetryConfig {
	if stage.Retry != nil {
		return stage.Retry
	}
	return p.RetryDefault
}

// DataSource reads values from an external system by operation name.
// Implementations may block; transient failures should be retryable (see
// internal/reliability).
type DataSource interface {
	Read(ctx context.Context, operation string) (interface{}, error)
}

// DataSink writes values to an external system by operation name.
type DataSink interface {
	Write(ctx context.Context, operation string, value interface{}) error
}

// TransformFunc mutates context data in place
type TransformFunc func(ctx context.Context, ec *ExecutionContext) error

// DataSourceFunc is a function adapter for DataSource
type DataSourceFunc func(ctx context.Context, operation string) (interface{}, error)

func (f DataSourceFunc) Read(ctx context.Context, operation string) (interface{}, error) {
	return f(ctx, operation)
}

// DataSinkFunc is a function adapter for DataSink
type DataSinkFunc func(ctx context.Context, operation string, value interface{}) error

func (f DataSinkFunc) Write(ctx context.Context, operation string, value interface{}) error {
	return f(ctx, operation, value)
}

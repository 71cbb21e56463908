package pipeline

import (
	"fmt"
	"strings"
)

// ConfigErrorCode classifies build-time configuration failures
type ConfigErrorCode string

const (
	ErrDuplicateStage     ConfigErrorCode = "duplicate-stage"
	ErrUnknownDependency  ConfigErrorCode = "unknown-dependency"
	ErrCircularDependency ConfigErrorCode = "circular-dependency"
	ErrUnknownReference   ConfigErrorCode = "unknown-reference"
	ErrInvalidStage       ConfigErrorCode = "invalid-stage"
)

// ConfigError is a fatal build-time error. It always surfaces to the caller
// before any stage executes; a pipeline is never partially applied.
type ConfigError struct {
	Code    ConfigErrorCode
	Stage   string   // offending stage, when there is a single one
	Cycle   []string // full cycle for ErrCircularDependency
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Code == ErrCircularDependency && len(e.Cycle) > 0:
		return fmt.Sprintf("pipeline config: circular dependency: %s", strings.Join(e.Cycle, " -> "))
	case e.Stage != "":
		return fmt.Sprintf("pipeline config: %s: stage %q: %s", e.Code, e.Stage, e.Message)
	default:
		return fmt.Sprintf("pipeline config: %s: %s", e.Code, e.Message)
	}
}

// OperationError wraps the failure of a stage's source/sink/transform call
// after retries were exhausted.
type OperationError struct {
	Stage    string
	Kind     StageKind
	Attempts int
	Err      error
}

func (e *OperationError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("stage %q: %s operation failed after %d attempts: %v", e.Stage, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("stage %q: %s operation failed: %v", e.Stage, e.Kind, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

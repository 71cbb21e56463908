package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conveyr/conveyr-go/rules"
	"github.com/google/uuid"
)

// Engine executes compiled pipelines. Adapters and the rule evaluator are
// injected; the engine owns nothing but the orchestration.
type Engine struct {
	mu         sync.RWMutex
	sources    map[string]DataSource
	sinks      map[string]DataSink
	transforms map[string]TransformFunc
	evaluator  rules.Evaluator
	logger     *slog.Logger
	maxWorkers int
}

// EngineOption configures the engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEvaluator sets the predicate evaluator used by rule gates
func WithEvaluator(evaluator rules.Evaluator) EngineOption {
	return func(e *Engine) {
		e.evaluator = evaluator
	}
}

// WithMaxWorkers caps how many stages of a parallel wave run simultaneously
func WithMaxWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxWorkers = n
		}
	}
}

// NewEngine creates an engine with defaults: slog.Default() and a pool of 10
// workers for parallel waves.
func NewEngine(opts ...EngineOption) *Engine {
	engine := &Engine{
		sources:    make(map[string]DataSource),
		sinks:      make(map[string]DataSink),
		transforms: make(map[string]TransformFunc),
		logger:     slog.Default(),
		maxWorkers: 10,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// RegisterSource registers a named data source adapter
func (e *Engine) RegisterSource(name string, source DataSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[name] = source
}

// RegisterSink registers a named data sink adapter
func (e *Engine) RegisterSink(name string, sink DataSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks[name] = sink
}

// RegisterTransform registers a named transform operation
func (e *Engine) RegisterTransform(name string, fn TransformFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transforms[name] = fn
}

// Execute runs a compiled pipeline against a fresh execution context seeded
// with initial. The only error return is a build-time *ConfigError: once
// execution begins, every failure is contained in the RunResult. A
// terminated run still returns a complete result describing how far
// execution proceeded and why it stopped.
func (e *Engine) Execute(ctx context.Context, p *Pipeline, initial map[string]interface{}) (*RunResult, error) {
	if p == nil {
		return nil, &ConfigError{Code: ErrInvalidStage, Message: "pipeline is nil"}
	}

	graph, err := BuildGraph(p.Stages)
	if err != nil {
		return nil, err
	}

	executor, err := e.buildExecutor(graph)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	start := time.Now()
	ec := NewExecutionContext(initial)
	agg := newAggregator(runID, p.Name, start)

	e.logger.Info("starting pipeline run",
		"pipeline", p.Name,
		"runId", runID,
		"mode", p.Mode,
		"stages", len(p.Stages))

	workers := e.maxWorkers
	if p.Mode != Parallel {
		workers = 1
	}
	sched := &scheduler{
		graph:    graph,
		executor: executor,
		agg:      agg,
		logger:   e.logger,
		workers:  workers,
	}
	sched.run(ctx, runID, p, ec)

	result := agg.finalize(time.Now())

	e.logger.Info("pipeline run finished",
		"pipeline", p.Name,
		"runId", runID,
		"status", result.Status,
		"stages", len(result.Results),
		"warnings", len(result.Warnings),
		"reviewFlags", len(result.ReviewFlags),
		"duration", result.Duration)

	return result, nil
}

// buildExecutor snapshots the registries and verifies every reference the
// graph makes resolves to a registered adapter. Resolution failures are
// ConfigErrors raised before any stage executes.
func (e *Engine) buildExecutor(graph *Graph) (*stageExecutor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	executor := &stageExecutor{
		sources:    make(map[string]DataSource, len(e.sources)),
		sinks:      make(map[string]DataSink, len(e.sinks)),
		transforms: make(map[string]TransformFunc, len(e.transforms)),
		evaluator:  e.evaluator,
		logger:     e.logger,
	}
	for k, v := range e.sources {
		executor.sources[k] = v
	}
	for k, v := range e.sinks {
		executor.sinks[k] = v
	}
	for k, v := range e.transforms {
		executor.transforms[k] = v
	}

	for _, stage := range graph.Stages() {
		switch stage.Kind {
		case KindExtract:
			if _, ok := executor.sources[stage.Source]; !ok {
				return nil, unknownRef(stage, "source", stage.Source)
			}
		case KindLoad, KindAudit:
			if _, ok := executor.sinks[stage.Sink]; !ok {
				return nil, unknownRef(stage, "sink", stage.Sink)
			}
		case KindTransform:
			if _, ok := executor.transforms[stage.Operation]; !ok {
				return nil, unknownRef(stage, "transform", stage.Operation)
			}
		}
		if stage.Rules != nil && executor.evaluator == nil {
			return nil, &ConfigError{
				Code:    ErrUnknownReference,
				Stage:   stage.Name,
				Message: "stage has validation rules but no evaluator is configured",
			}
		}
	}
	return executor, nil
}

func unknownRef(stage *StageDefinition, what, name string) *ConfigError {
	return &ConfigError{
		Code:    ErrUnknownReference,
		Stage:   stage.Name,
		Message: fmt.Sprintf("references unregistered %s %q", what, name),
	}
}

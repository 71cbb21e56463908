package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// scheduler orders and dispatches stages by Kahn's algorithm over in-degree
// counts. Ties between simultaneously eligible stages are broken by original
// declaration order so runs are reproducible. Sequential mode is a worker
// pool of size one; parallel mode dispatches an entire wave of eligible
// stages and blocks at a join barrier before computing the next wave.
type scheduler struct {
	graph    *Graph
	executor *stageExecutor
	agg      *aggregator
	logger   *slog.Logger
	workers  int
}

// run drives the whole pipeline over the shared context. Once any stage
// resolves to Abort the scheduler stops dispatching immediately; stages
// already in flight finish and their results are still recorded. Stages that
// never started are marked Skipped at the end.
func (s *scheduler) run(ctx context.Context, runID string, p *Pipeline, ec *ExecutionContext) {
	indegree := make(map[string]int, len(s.graph.Stages()))
	for _, stage := range s.graph.Stages() {
		indegree[stage.Name] = len(stage.DependsOn)
	}
	started := make(map[string]bool, len(s.graph.Stages()))

	for !s.agg.isAborted() {
		var wave []*StageDefinition
		for _, stage := range s.graph.Stages() {
			if !started[stage.Name] && indegree[stage.Name] == 0 {
				wave = append(wave, stage)
			}
		}
		if len(wave) == 0 {
			break
		}

		s.logger.Debug("dispatching wave",
			"pipeline", p.Name,
			"runId", runID,
			"stages", len(wave))

		type slot struct {
			res *StageResult
			dec Decision
			ran bool
		}
		slots := make([]slot, len(wave))

		var abort atomic.Bool
		var wg sync.WaitGroup
		sem := make(chan struct{}, s.workers)

		for i, stage := range wave {
			sem <- struct{}{}
			if abort.Load() {
				// Stop dispatching; this stage never starts.
				<-sem
				break
			}
			started[stage.Name] = true
			slots[i].ran = true
			wg.Add(1)
			go func(i int, stage *StageDefinition) {
				defer wg.Done()
				defer func() { <-sem }()
				res, dec := s.executor.execute(ctx, runID, p, stage, ec)
				slots[i].res, slots[i].dec = res, dec
				if dec.Kind == DecisionAbort {
					abort.Store(true)
				}
			}(i, stage)
		}

		// Join barrier: the next wave is only computed from terminal states.
		wg.Wait()

		// Apply results in declaration order so warnings and review flags
		// are recorded deterministically regardless of wave interleaving.
		for i := range slots {
			if !slots[i].ran {
				continue
			}
			s.agg.apply(slots[i].res, slots[i].dec)
			for _, dep := range s.graph.Dependents(wave[i].Name) {
				indegree[dep]--
			}
		}
	}

	if s.agg.isAborted() {
		for _, stage := range s.graph.Stages() {
			if !started[stage.Name] {
				s.logger.Info("skipping stage after termination",
					"pipeline", p.Name,
					"runId", runID,
					"stage", stage.Name)
				s.agg.skip(stage.Name)
			}
		}
	}
}

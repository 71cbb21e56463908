// Package pipeline implements the stage orchestration engine: it executes a
// configured set of named extract/transform/load/audit stages as a
// dependency graph, applying per-stage severity-driven failure policies.
//
// A compiled Pipeline is validated into a DAG, scheduled with Kahn's
// algorithm (sequentially or in parallel waves with a join barrier), and
// each stage runs its typed operation with bounded retries before its rule
// gate is evaluated. The failure policy resolver then decides whether the
// run proceeds, records a warning, flags for manual review, or terminates.
//
// Runtime failures never escape as errors: Engine.Execute returns an error
// only for build-time configuration problems. Everything that happens after
// execution begins, up to and including a policy-driven termination, is
// described by the returned RunResult.
//
// Example:
//
//	engine := pipeline.NewEngine(
//	    pipeline.WithEvaluator(expr.New()),
//	    pipeline.WithMaxWorkers(4),
//	)
//	engine.RegisterSource("customers", source)
//	engine.RegisterSink("warehouse", sink)
//
//	result, err := engine.Execute(ctx, compiled, map[string]interface{}{
//	    "batchDate": "2025-11-03",
//	})
//	if err != nil {
//	    // configuration problem, nothing ran
//	}
//	if result.Terminated {
//	    // inspect result.Results, result.Warnings, result.ReviewFlags
//	}
package pipeline

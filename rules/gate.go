package rules

import "context"

// Evaluator evaluates a condition expression against a snapshot of run data.
// Implementations may block (remote lookups, interpreters); they must never
// panic. A returned error marks the rule as failing with Error severity, it
// is not propagated further.
type Evaluator interface {
	Evaluate(ctx context.Context, condition string, data map[string]interface{}) (bool, error)
}

// EvaluatorFunc is a function adapter for Evaluator
type EvaluatorFunc func(ctx context.Context, condition string, data map[string]interface{}) (bool, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, condition string, data map[string]interface{}) (bool, error) {
	return f(ctx, condition, data)
}

// TriggeredRule records one rule that failed (or errored) during group
// evaluation.
type TriggeredRule struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Outcome is the result of evaluating a rule group against a data snapshot.
type Outcome struct {
	Passed    bool
	Severity  Severity // highest severity among failing rules, "" if none failed
	Message   string   // message of the highest-severity failing rule
	Triggered []TriggeredRule
}

// Failed reports whether the group failed with Error severity. Only an
// Error-severity failure counts as a stage failure; Warning and Info
// failures annotate the stage result without failing the stage.
func (o Outcome) Failed() bool {
	return !o.Passed && o.Severity == SeverityError
}

// Evaluate runs the group's rules in sequence order against data and
// aggregates the outcome.
//
// For AND groups the group fails when any Error- or Warning-severity rule
// evaluates false; with stop-on-first-failure the remaining rules are not
// evaluated. For OR groups the group passes as soon as any rule evaluates
// true; with stop-on-first-failure evaluation stops there, otherwise the
// remaining rules are still evaluated so their triggered records are
// complete. Info rules never fail a group on their own; when they evaluate
// false they only contribute annotations.
//
// An evaluator error downgrades to a failing rule of Error severity with the
// raw error attached.
func (g *RuleGroup) Evaluate(ctx context.Context, evaluator Evaluator, data map[string]interface{}) Outcome {
	var (
		triggered  []TriggeredRule
		anyPassed  bool
		hardFailed bool // a non-Info rule failed (AND) or could have passed (OR)
		nonInfo    int
		best       *RuleRef // highest-severity failing rule, for the message
		bestSev    Severity
	)

	for i := range g.refs {
		ref := g.refs[i]
		rule := ref.Rule
		if rule.Severity != SeverityInfo {
			nonInfo++
		}

		passed, err := evaluator.Evaluate(ctx, rule.Condition, data)

		if err != nil {
			// Contained: the rule fails at Error severity, the run does not crash.
			triggered = append(triggered, TriggeredRule{
				RuleID:   rule.ID,
				Severity: SeverityError,
				Message:  rule.Message,
				Error:    err.Error(),
			})
			hardFailed = true
			if better(SeverityError, ref, bestSev, best) {
				best, bestSev = &g.refs[i], SeverityError
			}
			if g.operator == OperatorAnd && g.stopOnFirstFailure {
				break
			}
			continue
		}

		if passed {
			anyPassed = true
			if g.operator == OperatorOr && g.stopOnFirstFailure {
				break
			}
			continue
		}

		triggered = append(triggered, TriggeredRule{
			RuleID:   rule.ID,
			Severity: rule.Severity,
			Message:  rule.Message,
		})
		if better(rule.Severity, ref, bestSev, best) {
			best, bestSev = &g.refs[i], rule.Severity
		}
		if rule.Severity != SeverityInfo {
			hardFailed = true
			if g.operator == OperatorAnd && g.stopOnFirstFailure {
				break
			}
		}
	}

	groupPassed := true
	switch g.operator {
	case OperatorAnd:
		groupPassed = !hardFailed
	case OperatorOr:
		// An all-Info group cannot fail by itself.
		groupPassed = anyPassed || nonInfo == 0
	}

	outcome := Outcome{
		Passed:    groupPassed,
		Severity:  bestSev,
		Triggered: triggered,
	}
	if best != nil {
		outcome.Message = best.Rule.Message
	}
	return outcome
}

// better reports whether a failing rule at severity sev should replace the
// current message candidate. Severity wins first, then lower effective
// priority, then earlier sequence (the incumbent).
func better(sev Severity, ref RuleRef, curSev Severity, cur *RuleRef) bool {
	if cur == nil {
		return true
	}
	if sev.rank() != curSev.rank() {
		return sev.rank() > curSev.rank()
	}
	return ref.EffectivePriority < cur.EffectivePriority
}

// Package rules implements severity-tagged validation rules and rule groups.
//
// A Rule is a single predicate with a severity (ERROR, WARNING, INFO), a
// message, and a priority. Rules are combined into immutable RuleGroups under
// AND/OR semantics with optional short-circuiting. Evaluating a group against
// a data snapshot produces an Outcome: pass/fail, the highest severity among
// failing rules, and the full list of triggered rules.
//
// Condition evaluation is delegated to an injected Evaluator so the gate
// logic stays independent of any expression language. Evaluator errors are
// contained: the affected rule fails with Error severity and the raw error
// is attached to its triggered record.
package rules

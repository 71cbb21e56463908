package rules

import "sort"

// Operator combines the rules of a group
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// ValidOperator reports whether op is one of the known operators
func ValidOperator(op Operator) bool {
	return op == OperatorAnd || op == OperatorOr
}

// RuleRef binds a rule into a group at a position. EffectivePriority is the
// rule's own priority unless the reference overrode it at compile time.
type RuleRef struct {
	Rule              *Rule
	Sequence          int
	EffectivePriority int
}

// RuleGroup is an immutable combination of rules under AND/OR semantics.
// Build it once at configuration-compile time with NewRuleGroup.
type RuleGroup struct {
	id                 string
	operator           Operator
	stopOnFirstFailure bool
	refs               []RuleRef
}

// NewRuleGroup creates a rule group. References are ordered by ascending
// sequence; the input slice is not retained.
func NewRuleGroup(id string, operator Operator, stopOnFirstFailure bool, refs []RuleRef) *RuleGroup {
	ordered := make([]RuleRef, len(refs))
	copy(ordered, refs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})
	return &RuleGroup{
		id:                 id,
		operator:           operator,
		stopOnFirstFailure: stopOnFirstFailure,
		refs:               ordered,
	}
}

// ID returns the group identifier
func (g *RuleGroup) ID() string { return g.id }

// Operator returns the group combinator
func (g *RuleGroup) Operator() Operator { return g.operator }

// StopOnFirstFailure reports whether short-circuit evaluation is enabled
func (g *RuleGroup) StopOnFirstFailure() bool { return g.stopOnFirstFailure }

// Rules returns the group's references in evaluation order
func (g *RuleGroup) Rules() []RuleRef {
	out := make([]RuleRef, len(g.refs))
	copy(out, g.refs)
	return out
}

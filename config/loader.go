// Package config parses declarative pipeline documents and compiles them
// into the immutable stage and rule model the engine consumes. Compilation
// resolves rule references, priority overrides, and retry defaults up front;
// a reload produces a wholly new Pipeline rather than mutating in place.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/conveyr/conveyr-go/pipeline"
	"github.com/conveyr/conveyr-go/rules"
	"gopkg.in/yaml.v3"
)

const defaultRulePriority = 100

// Load reads and compiles a pipeline configuration file
func Load(path string) (*pipeline.Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return p, nil
}

// Parse compiles a YAML pipeline document
func Parse(raw []byte) (*pipeline.Pipeline, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return Compile(&doc)
}

// Compile turns a parsed document into a compiled pipeline. Enum violations
// and dangling references are *pipeline.ConfigError values; the stage graph
// itself (duplicates, unknown dependencies, cycles) is validated by the
// engine at execute time.
func Compile(doc *Document) (*pipeline.Pipeline, error) {
	ruleIndex, err := compileRules(doc.Rules)
	if err != nil {
		return nil, err
	}
	groups, err := compileGroups(doc.RuleGroups, ruleIndex)
	if err != nil {
		return nil, err
	}

	mode := pipeline.Sequential
	switch doc.Pipeline.Execution.Mode {
	case "", string(pipeline.Sequential):
	case string(pipeline.Parallel):
		mode = pipeline.Parallel
	default:
		return nil, &pipeline.ConfigError{
			Code:    pipeline.ErrInvalidStage,
			Message: fmt.Sprintf("unknown execution mode %q", doc.Pipeline.Execution.Mode),
		}
	}

	defaultPolicy := pipeline.PolicyTerminate
	switch doc.Pipeline.Execution.ErrorHandling {
	case "", "stop-on-error":
	case "continue-on-error":
		defaultPolicy = pipeline.PolicyContinueWithWarnings
	default:
		return nil, &pipeline.ConfigError{
			Code:    pipeline.ErrInvalidStage,
			Message: fmt.Sprintf("unknown error-handling mode %q", doc.Pipeline.Execution.ErrorHandling),
		}
	}

	retryDefault, err := compileRetry(doc.Pipeline.Execution.RetryDefault, "execution")
	if err != nil {
		return nil, err
	}

	stages := make([]*pipeline.StageDefinition, 0, len(doc.Pipeline.Stages))
	for _, sd := range doc.Pipeline.Stages {
		stage, err := compileStage(sd, defaultPolicy, groups)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}

	return &pipeline.Pipeline{
		Name:         doc.Pipeline.Name,
		Mode:         mode,
		Stages:       stages,
		RetryDefault: retryDefault,
	}, nil
}

func compileStage(sd StageDoc, defaultPolicy pipeline.FailurePolicy, groups map[string]*rules.RuleGroup) (*pipeline.StageDefinition, error) {
	policy := pipeline.FailurePolicy(sd.FailurePolicy)
	if sd.FailurePolicy == "" {
		policy = defaultPolicy
	}
	if !pipeline.ValidFailurePolicy(policy) {
		return nil, &pipeline.ConfigError{
			Code:    pipeline.ErrInvalidStage,
			Stage:   sd.Name,
			Message: fmt.Sprintf("unknown failure policy %q", sd.FailurePolicy),
		}
	}

	kind := pipeline.StageKind(sd.Type)
	if !pipeline.ValidKind(kind) {
		return nil, &pipeline.ConfigError{
			Code:    pipeline.ErrInvalidStage,
			Stage:   sd.Name,
			Message: fmt.Sprintf("unknown stage type %q", sd.Type),
		}
	}

	retry, err := compileRetry(sd.Retry, sd.Name)
	if err != nil {
		return nil, err
	}

	stage := &pipeline.StageDefinition{
		Name:          sd.Name,
		Kind:          kind,
		DependsOn:     sd.DependsOn,
		Optional:      sd.Optional,
		FailurePolicy: policy,
		Retry:         retry,
		Source:        sd.Source,
		Sink:          sd.Sink,
		Operation:     sd.Operation,
		ContextKey:    sd.ContextKey,
	}

	if sd.Rules != "" {
		group, ok := groups[sd.Rules]
		if !ok {
			return nil, &pipeline.ConfigError{
				Code:    pipeline.ErrUnknownReference,
				Stage:   sd.Name,
				Message: fmt.Sprintf("references undeclared rule group %q", sd.Rules),
			}
		}
		stage.Rules = group
	}
	return stage, nil
}

func compileRetry(rd *RetryDoc, where string) (*pipeline.RetryConfig, error) {
	if rd == nil {
		return nil, nil
	}
	switch rd.Backoff {
	case "", "fixed", "exponential":
	default:
		return nil, &pipeline.ConfigError{
			Code:    pipeline.ErrInvalidStage,
			Stage:   where,
			Message: fmt.Sprintf("unknown backoff curve %q", rd.Backoff),
		}
	}
	return &pipeline.RetryConfig{
		MaxRetries:  rd.MaxRetries,
		RetryDelay:  time.Duration(rd.RetryDelayMs) * time.Millisecond,
		Exponential: rd.Backoff == "exponential",
	}, nil
}

func compileRules(docs []RuleDoc) (map[string]*rules.Rule, error) {
	index := make(map[string]*rules.Rule, len(docs))
	for _, rd := range docs {
		if rd.ID == "" {
			return nil, fmt.Errorf("config: rule without id")
		}
		if _, exists := index[rd.ID]; exists {
			return nil, fmt.Errorf("config: rule %q declared more than once", rd.ID)
		}
		severity := rules.Severity(rd.Severity)
		if !rules.ValidSeverity(severity) {
			return nil, fmt.Errorf("config: rule %q: unknown severity %q", rd.ID, rd.Severity)
		}
		priority := rd.Priority
		if priority == 0 {
			priority = defaultRulePriority
		}
		index[rd.ID] = &rules.Rule{
			ID:        rd.ID,
			Condition: rd.Condition,
			Severity:  severity,
			Message:   rd.Message,
			Priority:  priority,
		}
	}
	return index, nil
}

func compileGroups(docs []RuleGroupDoc, ruleIndex map[string]*rules.Rule) (map[string]*rules.RuleGroup, error) {
	groups := make(map[string]*rules.RuleGroup, len(docs))
	for _, gd := range docs {
		if gd.ID == "" {
			return nil, fmt.Errorf("config: rule group without id")
		}
		if _, exists := groups[gd.ID]; exists {
			return nil, fmt.Errorf("config: rule group %q declared more than once", gd.ID)
		}
		operator := rules.Operator(gd.Operator)
		if !rules.ValidOperator(operator) {
			return nil, fmt.Errorf("config: rule group %q: unknown operator %q", gd.ID, gd.Operator)
		}

		refs := make([]rules.RuleRef, 0, len(gd.RuleReferences))
		for i, ref := range gd.RuleReferences {
			if ref.Enabled != nil && !*ref.Enabled {
				continue
			}
			rule, ok := ruleIndex[ref.RuleID]
			if !ok {
				return nil, fmt.Errorf("config: rule group %q references undeclared rule %q", gd.ID, ref.RuleID)
			}
			sequence := ref.Sequence
			if sequence == 0 {
				sequence = i + 1
			}
			priority := rule.Priority
			if ref.OverridePriority != nil {
				priority = *ref.OverridePriority
			}
			refs = append(refs, rules.RuleRef{
				Rule:              rule,
				Sequence:          sequence,
				EffectivePriority: priority,
			})
		}
		groups[gd.ID] = rules.NewRuleGroup(gd.ID, operator, gd.StopOnFirstFailure, refs)
	}
	return groups, nil
}

package config

// Document is the root of a pipeline configuration file.
type Document struct {
	Pipeline   PipelineDoc    `yaml:"pipeline"`
	Rules      []RuleDoc      `yaml:"rules,omitempty"`
	RuleGroups []RuleGroupDoc `yaml:"rule-groups,omitempty"`
}

// PipelineDoc describes the pipeline and its stages.
type PipelineDoc struct {
	Name      string       `yaml:"name"`
	Execution ExecutionDoc `yaml:"execution,omitempty"`
	Stages    []StageDoc   `yaml:"stages"`
}

// ExecutionDoc carries run-wide execution settings, including retry defaults
// applied to stages that declare no retry block of their own. ErrorHandling
// sets the default failure policy for stages that declare none:
// stop-on-error maps to terminate, continue-on-error to
// continue-with-warnings.
type ExecutionDoc struct {
	Mode          string    `yaml:"mode,omitempty"`           // sequential | parallel
	ErrorHandling string    `yaml:"error-handling,omitempty"` // stop-on-error | continue-on-error
	RetryDefault  *RetryDoc `yaml:"retry,omitempty"`
}

// StageDoc is one stage declaration.
type StageDoc struct {
	Name          string    `yaml:"name"`
	Type          string    `yaml:"type"` // extract | load | transform | audit
	Source        string    `yaml:"source,omitempty"`
	Sink          string    `yaml:"sink,omitempty"`
	Operation     string    `yaml:"operation,omitempty"`
	ContextKey    string    `yaml:"context-key,omitempty"`
	DependsOn     []string  `yaml:"depends-on,omitempty"`
	Optional      bool      `yaml:"optional,omitempty"`
	FailurePolicy string    `yaml:"failure-policy,omitempty"`
	Retry         *RetryDoc `yaml:"retry,omitempty"`
	Rules         string    `yaml:"rules,omitempty"` // rule group id
}

// RetryDoc is a retry block.
type RetryDoc struct {
	MaxRetries   int    `yaml:"max-retries"`
	RetryDelayMs int    `yaml:"retry-delay-ms"`
	Backoff      string `yaml:"backoff,omitempty"` // fixed | exponential
}

// RuleDoc declares one reusable rule.
type RuleDoc struct {
	ID        string `yaml:"id"`
	Condition string `yaml:"condition"`
	Severity  string `yaml:"severity"` // ERROR | WARNING | INFO
	Message   string `yaml:"message,omitempty"`
	Priority  int    `yaml:"priority,omitempty"`
}

// RuleGroupDoc combines rules under an operator.
type RuleGroupDoc struct {
	ID                 string       `yaml:"id"`
	Operator           string       `yaml:"operator"` // AND | OR
	StopOnFirstFailure bool         `yaml:"stop-on-first-failure,omitempty"`
	RuleReferences     []RuleRefDoc `yaml:"rule-references"`
}

// RuleRefDoc binds a rule into a group.
type RuleRefDoc struct {
	RuleID           string `yaml:"rule-id"`
	Sequence         int    `yaml:"sequence,omitempty"`
	Enabled          *bool  `yaml:"enabled,omitempty"` // default true
	OverridePriority *int   `yaml:"override-priority,omitempty"`
}

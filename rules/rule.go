package rules

// Severity classifies a rule outcome
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// rank orders severities for aggregation (higher is more severe)
func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// MoreSevereThan reports whether s outranks other
func (s Severity) MoreSevereThan(other Severity) bool {
	return s.rank() > other.rank()
}

// ValidSeverity reports whether s is one of the known severity values
func ValidSeverity(s Severity) bool {
	return s.rank() > 0
}

// Rule is a single severity-tagged predicate. Rules are compiled once from
// configuration and never mutated afterwards.
type Rule struct {
	ID        string
	Condition string
	Severity  Severity
	Message   string
	Priority  int // lower = higher precedence
}

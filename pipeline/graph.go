package pipeline

import "fmt"

// Graph is a validated stage dependency DAG. Build is all-or-nothing: no
// partial graph is ever returned.
type Graph struct {
	stages     []*StageDefinition
	byName     map[string]*StageDefinition
	dependents map[string][]string // stage -> stages that depend on it
}

// BuildGraph validates an ordered list of stage definitions and compiles it
// into a dependency graph. It verifies name uniqueness, resolves every
// depends-on entry, and rejects cycles with a ConfigError naming the full
// cycle.
func BuildGraph(stages []*StageDefinition) (*Graph, error) {
	if len(stages) == 0 {
		return nil, &ConfigError{Code: ErrInvalidStage, Message: "pipeline has no stages"}
	}

	byName := make(map[string]*StageDefinition, len(stages))
	for _, stage := range stages {
		if stage.Name == "" {
			return nil, &ConfigError{Code: ErrInvalidStage, Message: "stage name is required"}
		}
		if !ValidKind(stage.Kind) {
			return nil, &ConfigError{
				Code:    ErrInvalidStage,
				Stage:   stage.Name,
				Message: fmt.Sprintf("unknown stage kind %q", stage.Kind),
			}
		}
		if !ValidFailurePolicy(stage.FailurePolicy) {
			return nil, &ConfigError{
				Code:    ErrInvalidStage,
				Stage:   stage.Name,
				Message: fmt.Sprintf("unknown failure policy %q", stage.FailurePolicy),
			}
		}
		if _, exists := byName[stage.Name]; exists {
			return nil, &ConfigError{
				Code:    ErrDuplicateStage,
				Stage:   stage.Name,
				Message: "stage name declared more than once",
			}
		}
		byName[stage.Name] = stage
	}

	dependents := make(map[string][]string, len(stages))
	for _, stage := range stages {
		for _, dep := range stage.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, &ConfigError{
					Code:    ErrUnknownDependency,
					Stage:   stage.Name,
					Message: fmt.Sprintf("depends on undeclared stage %q", dep),
				}
			}
			dependents[dep] = append(dependents[dep], stage.Name)
		}
	}

	if cycle := findCycle(stages, byName); cycle != nil {
		return nil, &ConfigError{Code: ErrCircularDependency, Cycle: cycle}
	}

	return &Graph{
		stages:     stages,
		byName:     byName,
		dependents: dependents,
	}, nil
}

// findCycle runs a depth-first traversal tracking the current stack to
// detect back-edges. It returns the stages of the first cycle found, in
// dependency order, or nil for an acyclic graph.
func findCycle(stages []*StageDefinition, byName map[string]*StageDefinition) []string {
	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(stages))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		state[name] = onStack
		stack = append(stack, name)

		for _, dep := range byName[name].DependsOn {
			switch state[dep] {
			case onStack:
				// Back-edge: the cycle is everything on the stack from dep onward.
				for i, n := range stack {
					if n == dep {
						cycle = append([]string{}, stack[i:]...)
						return true
					}
				}
			case unvisited:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
		return false
	}

	for _, stage := range stages {
		if state[stage.Name] == unvisited {
			if visit(stage.Name) {
				return cycle
			}
		}
	}
	return nil
}

// Stages returns the stage definitions in declaration order
func (g *Graph) Stages() []*StageDefinition {
	return g.stages
}

// Stage returns the definition for name, nil when unknown
func (g *Graph) Stage(name string) *StageDefinition {
	return g.byName[name]
}

// Dependents returns the names of stages that directly depend on name
func (g *Graph) Dependents(name string) []string {
	return g.dependents[name]
}

// TransitiveDependents returns every stage reachable from name along
// dependency edges, not including name itself.
func (g *Graph) TransitiveDependents(name string) map[string]bool {
	out := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, d := range g.dependents[n] {
			if !out[d] {
				out[d] = true
				walk(d)
			}
		}
	}
	walk(name)
	return out
}

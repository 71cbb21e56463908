// Package expr provides the default predicate evaluator for rule gates.
//
// Conditions are Go boolean expressions interpreted with yaegi. The current
// context snapshot is exposed as data (a map[string]interface{}), with num
// and str helpers for untyped values:
//
//	num(data["amount"]) > 10000 && str(data["region"]) == "EMEA"
//
// The engine consumes this through the rules.Evaluator interface; any other
// evaluator can be injected in its place.
package expr

import (
	"context"
	"fmt"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// prelude is interpreted ahead of every condition. The helpers collapse the
// numeric types a YAML/JSON round-trip can produce.
const prelude = `
func num(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return 0
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func has(data map[string]interface{}, key string) bool {
	_, ok := data[key]
	return ok
}
`

// Evaluator interprets conditions as Go boolean expressions.
type Evaluator struct{}

// New creates an interpreted-expression evaluator
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate compiles and runs condition against data. A fresh interpreter is
// used per call: yaegi interpreters are not safe for the concurrent
// evaluation a parallel wave produces. Interpreter panics are recovered into
// errors; the gate downgrades them to failing rules.
func (e *Evaluator) Evaluate(_ context.Context, condition string, data map[string]interface{}) (passed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			passed = false
			err = fmt.Errorf("expr: condition %q panicked: %v", condition, r)
		}
	}()

	i := interp.New(interp.Options{})
	if useErr := i.Use(stdlib.Symbols); useErr != nil {
		return false, fmt.Errorf("expr: load stdlib symbols: %w", useErr)
	}
	if _, preErr := i.Eval(prelude); preErr != nil {
		return false, fmt.Errorf("expr: interpret prelude: %w", preErr)
	}

	src := fmt.Sprintf("func __cond(data map[string]interface{}) bool { return %s }", condition)
	if _, evalErr := i.Eval(src); evalErr != nil {
		return false, fmt.Errorf("expr: compile condition %q: %w", condition, evalErr)
	}

	v, evalErr := i.Eval("__cond")
	if evalErr != nil {
		return false, fmt.Errorf("expr: resolve condition %q: %w", condition, evalErr)
	}
	fn, ok := v.Interface().(func(map[string]interface{}) bool)
	if !ok {
		return false, fmt.Errorf("expr: condition %q did not compile to a boolean predicate", condition)
	}
	return fn(data), nil
}

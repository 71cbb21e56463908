package pipeline

import "sync"

// ExecutionContext is the shared, run-scoped data bag stages read from and
// write to. All access is serialized through a single RWMutex: stages within
// a parallel wave may touch it concurrently. Keys are added or overwritten,
// never removed, for the duration of a run. The context is owned exclusively
// by one run and discarded afterwards.
type ExecutionContext struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewExecutionContext creates a context seeded with initial data. The seed
// map is copied, not retained.
func NewExecutionContext(initial map[string]interface{}) *ExecutionContext {
	data := make(map[string]interface{}, len(initial))
	for k, v := range initial {
		data[k] = v
	}
	return &ExecutionContext{data: data}
}

// Get returns the value stored under key
func (ec *ExecutionContext) Get(key string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.data[key]
	return v, ok
}

// Set stores value under key, overwriting any previous value
func (ec *ExecutionContext) Set(key string, value interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.data[key] = value
}

// Len returns the number of keys
func (ec *ExecutionContext) Len() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return len(ec.data)
}

// Snapshot returns a shallow copy of the data for rule evaluation. The copy
// keeps the gate decoupled from the context's locking.
func (ec *ExecutionContext) Snapshot() map[string]interface{} {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]interface{}, len(ec.data))
	for k, v := range ec.data {
		out[k] = v
	}
	return out
}

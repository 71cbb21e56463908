package adapters

import (
	"context"
	"fmt"
	"sync"
)

// MemorySource serves seeded values by operation name. Useful for tests and
// for pipelines whose inputs are assembled in process.
type MemorySource struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewMemorySource creates a source seeded with operation -> value pairs
func NewMemorySource(data map[string]interface{}) *MemorySource {
	seeded := make(map[string]interface{}, len(data))
	for k, v := range data {
		seeded[k] = v
	}
	return &MemorySource{data: seeded}
}

// Seed stores a value under an operation name
func (s *MemorySource) Seed(operation string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[operation] = value
}

// Read implements pipeline.DataSource
func (s *MemorySource) Read(_ context.Context, operation string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[operation]
	if !ok {
		return nil, fmt.Errorf("memory source: no data for operation %q", operation)
	}
	return value, nil
}

// MemoryWrite is one recorded write
type MemoryWrite struct {
	Operation string
	Value     interface{}
}

// MemorySink records every write in order. Safe for concurrent use by a
// parallel wave.
type MemorySink struct {
	mu     sync.Mutex
	writes []MemoryWrite
}

// NewMemorySink creates an empty recording sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write implements pipeline.DataSink
func (s *MemorySink) Write(_ context.Context, operation string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, MemoryWrite{Operation: operation, Value: value})
	return nil
}

// Writes returns a copy of everything written so far
func (s *MemorySink) Writes() []MemoryWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MemoryWrite, len(s.writes))
	copy(out, s.writes)
	return out
}

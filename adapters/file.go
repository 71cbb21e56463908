package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSource reads JSON documents from a directory; the operation name is
// the file name (a .json extension is added when missing).
type FileSource struct {
	Dir string
}

// NewFileSource creates a file-backed source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Read implements pipeline.DataSource
func (s *FileSource) Read(_ context.Context, operation string) (interface{}, error) {
	name := operation
	if filepath.Ext(name) == "" {
		name += ".json"
	}
	raw, err := os.ReadFile(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("file source: read operation %q: %w", operation, err)
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("file source: decode operation %q: %w", operation, err)
	}
	return value, nil
}

// FileSink appends records to a file as JSON lines. Writes are serialized so
// lines from a parallel wave never interleave.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a sink appending to path
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Write implements pipeline.DataSink
func (s *FileSink) Write(_ context.Context, operation string, value interface{}) error {
	line, err := json.Marshal(map[string]interface{}{
		"operation": operation,
		"record":    value,
	})
	if err != nil {
		return fmt.Errorf("file sink: encode record for %q: %w", operation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("file sink: open %s: %w", s.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("file sink: write %s: %w", s.path, err)
	}
	return nil
}

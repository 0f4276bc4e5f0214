// Package history keeps an append-only log of every generation attempt,
// successful or not, in a JSON-lines file. Records are never rewritten;
// concurrent appends are serialized so each one lands as a complete line.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFileName is the log file created under the store directory.
const DefaultFileName = "history.jsonl"

// Record is one generation attempt.
type Record struct {
	ID         string        `json:"id"`
	ModelType  string        `json:"model_type"`
	ConfigName string        `json:"config_name"`
	Prompt     string        `json:"prompt"`
	JobID      string        `json:"job_id,omitempty"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	OutputDir  string        `json:"output_dir,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Succeeded reports whether the attempt completed with outputs.
func (r Record) Succeeded() bool { return r.Status == "succeeded" }

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	ModelType  string
	ConfigName string
	Since      time.Time
	Limit      int
}

func (f Filter) matches(r Record) bool {
	if f.ModelType != "" && r.ModelType != f.ModelType {
		return false
	}
	if f.ConfigName != "" && r.ConfigName != f.ConfigName {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// WriteError indicates a record could not be appended or read back.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("history: %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Store appends and reads attempt records.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore creates a store writing to dir/history.jsonl. The directory is
// created on first append.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, DefaultFileName), now: time.Now}
}

// Path returns the log file location.
func (s *Store) Path() string { return s.path }

// Append writes one record as a single JSON line. The record's ID and
// CreatedAt are assigned here when unset. Append never rewrites existing
// lines, so concurrent callers each land one complete record.
func (s *Store) Append(record Record) (Record, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}

	line, err := json.Marshal(record)
	if err != nil {
		return Record{}, &WriteError{Path: s.path, Err: err}
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return Record{}, &WriteError{Path: s.path, Err: err}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Record{}, &WriteError{Path: s.path, Err: err}
	}
	defer file.Close()

	if _, err := file.Write(line); err != nil {
		return Record{}, &WriteError{Path: s.path, Err: err}
	}
	return record, nil
}

// List returns records in append order, oldest first, narrowed by the
// filter; Limit keeps the most recent records. A missing log file is an
// empty history, not an error. Lines that fail to decode are skipped so one
// corrupt entry cannot hide the rest.
func (s *Store) List(filter Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &WriteError{Path: s.path, Err: err}
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if filter.matches(record) {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &WriteError{Path: s.path, Err: err}
	}

	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[len(records)-filter.Limit:]
	}
	return records, nil
}

package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// AnySerial matches every device.
const AnySerial = "*"

// Entry binds a device serial to a workflow file.
type Entry struct {
	DeviceSerial string `json:"device_serial"`
	WorkflowFile string `json:"workflow_file"`
	Enabled      bool   `json:"enabled"`

	// When is an optional CEL condition over device.
	When string `json:"when,omitempty"`
}

// Matches reports whether the entry applies to serial.
func (e Entry) Matches(serial string) bool {
	return e.Enabled && (e.DeviceSerial == AnySerial || e.DeviceSerial == serial)
}

// Document is the schedule file.
type Document struct {
	Tasks []Entry `json:"tasks"`
}

// Store reads and appends to the schedule file.
type Store struct {
	path         string
	workflowsDir string

	// serialises Add
	mu sync.Mutex
}

// NewStore creates a store for the file at path. Relative workflow files
// are resolved against workflowsDir.
func NewStore(path, workflowsDir string) *Store {
	return &Store{path: path, workflowsDir: workflowsDir}
}

// Path returns the schedule file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the schedule file. A missing file is an empty schedule.
func (s *Store) Load() (Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{Tasks: []Entry{}}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading schedule: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = []Entry{}
	}
	return doc, nil
}

// Add appends entry and rewrites the file atomically. Comments in the
// existing file are not preserved.
func (s *Store) Add(entry Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Load()
	if err != nil {
		return err
	}
	doc.Tasks = append(doc.Tasks, entry)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	return writeAtomic(s.path, append(data, '\n'))
}

// WorkflowPath resolves a workflow file name.
func (s *Store) WorkflowPath(file string) string {
	if filepath.IsAbs(file) || s.workflowsDir == "" {
		return file
	}
	return filepath.Join(s.workflowsDir, file)
}

func validateEntry(e Entry) error {
	if e.DeviceSerial == "" {
		return fmt.Errorf("%w: device_serial is required", ErrInvalidEntry)
	}
	if e.WorkflowFile == "" {
		return fmt.Errorf("%w: workflow_file is required", ErrInvalidEntry)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating schedule directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".schedules-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck,gosec // already failing
		os.Remove(tmpName) //nolint:errcheck,gosec // best effort
		return fmt.Errorf("writing schedule: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best effort
		return fmt.Errorf("closing schedule: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck,gosec // best effort
		return fmt.Errorf("replacing schedule: %w", err)
	}
	return nil
}

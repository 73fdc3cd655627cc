// Package state persists the last event identifier the robot successfully
// configured for. The state file is the only durable artifact the service
// owns: its absence means "never configured" and drives an unconditional
// reconfiguration on the next run.
package state

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hubrobotics/robot-config-service/interfaces"
)

// FileStore stores the event identifier in a single small text file.
// Writes go through a temp file in the same directory followed by a rename,
// so a crash mid-write can never leave a half-written file that would be
// mistaken for a valid identifier.
type FileStore struct {
	path string
	log  *slog.Logger
}

// NewFileStore creates a store backed by the given file path.
func NewFileStore(path string, log *slog.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Load reads the persisted event identifier. A missing file, an empty file,
// or a read failure all return interfaces.ErrNoStoredEvent: anything short
// of a readable, non-empty identifier is treated as "never configured"
// rather than an error, so the engine falls through to the unconditional
// reconfigure branch.
func (s *FileStore) Load() (interfaces.EventID, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Could not read state file, treating as never configured", "path", s.path, "err", err)
		}
		return "", interfaces.ErrNoStoredEvent
	}

	eventID := strings.TrimSpace(string(data))
	if eventID == "" {
		s.log.Warn("State file is empty, treating as never configured", "path", s.path)
		return "", interfaces.ErrNoStoredEvent
	}

	s.log.Info("Found cached event ID", "eventID", eventID)
	return interfaces.EventID(eventID), nil
}

// Save atomically overwrites the persisted event identifier.
func (s *FileStore) Save(event interfaces.EventID) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(event.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set state file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	s.log.Info("Cached event ID", "eventID", event, "path", s.path)
	return nil
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

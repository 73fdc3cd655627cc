package state

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubrobotics/robot-config-service/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_MissingFileMeansNeverConfigured(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "eventid"), testLogger())

	_, err := s.Load()
	assert.ErrorIs(t, err, interfaces.ErrNoStoredEvent)
}

func TestLoad_EmptyFileMeansNeverConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventid")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))
	s := NewFileStore(path, testLogger())

	_, err := s.Load()
	assert.ErrorIs(t, err, interfaces.ErrNoStoredEvent)
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventid")
	s := NewFileStore(path, testLogger())

	require.NoError(t, s.Save("evt-42"))

	eventID, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, interfaces.EventID("evt-42"), eventID)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "evt-42", string(content))
}

func TestSave_OverwritesPreviousEvent(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "eventid"), testLogger())

	require.NoError(t, s.Save("evt-42"))
	require.NoError(t, s.Save("evt-77"))

	eventID, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, interfaces.EventID("evt-77"), eventID)
}

func TestSave_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "eventid")
	s := NewFileStore(path, testLogger())

	require.NoError(t, s.Save("evt-42"))

	eventID, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, interfaces.EventID("evt-42"), eventID)
}

func TestSave_LeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "eventid"), testLogger())

	require.NoError(t, s.Save("evt-42"))
	require.NoError(t, s.Save("evt-77"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "eventid", entries[0].Name())
}

func TestLoad_TrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventid")
	require.NoError(t, os.WriteFile(path, []byte("evt-42\n"), 0644))
	s := NewFileStore(path, testLogger())

	eventID, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, interfaces.EventID("evt-42"), eventID)
}

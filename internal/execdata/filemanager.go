package execdata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is the execution data file written when no path is given.
const DefaultFileName = "probecov.exec"

// FileManager persists a store and its sessions to a single file.
type FileManager struct {
	mu       sync.Mutex
	filePath string
	format   Format
	store    *Store
	sessions []SessionInfo
}

// NewFileManager creates a FileManager for path. Records allocated through
// its store use mode.
func NewFileManager(path string, format Format, mode Mode) *FileManager {
	return &FileManager{
		filePath: path,
		format:   format,
		store:    NewStore(mode),
	}
}

// Load merges the file content into the store.
// A missing file leaves the store empty.
func (m *FileManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read execution data %s: %w", m.filePath, err)
	}

	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse execution data %s: %w", m.filePath, err)
	}
	if err := f.MergeInto(m.store); err != nil {
		return fmt.Errorf("%s: %w", m.filePath, err)
	}
	m.sessions = append(m.sessions, f.Sessions...)
	return nil
}

// Save writes the store to disk, replacing the file.
func (m *FileManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, NewFile(m.sessions, m.store), m.format); err != nil {
		return err
	}

	tmp := m.filePath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write execution data %s: %w", m.filePath, err)
	}
	if err := os.Rename(tmp, m.filePath); err != nil {
		return fmt.Errorf("failed to write execution data %s: %w", m.filePath, err)
	}
	return nil
}

// AddSession appends session info written with the next Save.
func (m *FileManager) AddSession(s SessionInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
}

// Sessions returns a copy of the known sessions.
func (m *FileManager) Sessions() []SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SessionInfo(nil), m.sessions...)
}

// Store returns the managed store.
func (m *FileManager) Store() *Store {
	return m.store
}

// GetFilePath returns the path of the managed file.
func (m *FileManager) GetFilePath() string {
	return m.filePath
}

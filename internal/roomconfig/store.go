package roomconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"eldercare-rules/internal/models"

	"go.uber.org/zap"
)

// ErrCorruptDocument is returned when the document exists but cannot be parsed.
var ErrCorruptDocument = errors.New("room config document is corrupt")

const filePermissions = 0o644

// FileStore persists the room config document as JSON and caches the
// last-known-good copy. The file is re-read when its modification time changes.
type FileStore struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	doc     models.RoomConfigDocument
	modTime time.Time
	loaded  bool
}

// NewFileStore creates a store for the document at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{
		path:   filepath.Clean(path),
		logger: logger,
	}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Document returns the current document. A missing file is initialised with
// the built-in defaults. When a changed file fails to parse, the last-known-good
// document is returned and the failure is logged; with nothing cached the
// error is returned.
func (s *FileStore) Document() (models.RoomConfigDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		doc := models.DefaultRoomConfigDocument()
		if err := s.writeLocked(doc); err != nil {
			return nil, err
		}
		s.logger.Info("Room config document initialised with defaults",
			zap.String("path", s.path),
		)
		return doc, nil
	}
	if err != nil {
		return s.fallbackLocked(fmt.Errorf("failed to stat room config: %w", err))
	}

	if s.loaded && info.ModTime().Equal(s.modTime) {
		return s.doc, nil
	}

	doc, err := readDocument(s.path)
	if err != nil {
		return s.fallbackLocked(err)
	}

	s.doc = doc
	s.modTime = info.ModTime()
	s.loaded = true
	return doc, nil
}

// Resolve returns the resolved configuration of room from the current document.
func (s *FileStore) Resolve(room string) (models.RoomConfig, error) {
	doc, err := s.Document()
	if err != nil {
		return models.RoomConfig{}, err
	}
	return Resolve(doc, room), nil
}

// Save replaces the document on disk.
func (s *FileStore) Save(doc models.RoomConfigDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(doc)
}

func (s *FileStore) writeLocked(doc models.RoomConfigDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal room config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create room config directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, filePermissions); err != nil {
		return fmt.Errorf("failed to write room config: %w", err)
	}

	s.doc = doc
	s.loaded = true
	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
	}
	return nil
}

func (s *FileStore) fallbackLocked(err error) (models.RoomConfigDocument, error) {
	if !s.loaded {
		return nil, err
	}
	s.logger.Error("Failed to reload room config, using last known good",
		zap.String("path", s.path),
		zap.Error(err),
	)
	return s.doc, nil
}

func readDocument(path string) (models.RoomConfigDocument, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read room config: %w", err)
	}
	var doc models.RoomConfigDocument
	if err := json.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if doc == nil {
		doc = models.RoomConfigDocument{}
	}
	return doc, nil
}

// Package store persists the single user preference record as a JSON
// file. The file holds one record under a "user" key; a missing or
// unreadable file is treated as the default record rather than an error
// so a fresh deployment works without seeding.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/prefpilot/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fileShape is the on-disk envelope.
type fileShape struct {
	User schemas.UserRecord `json:"user"`
}

// FileStore is a mutex-guarded JSON file store for the preference record.
type FileStore struct {
	path string
	mu   sync.Mutex
	log  *zap.Logger
}

// New creates a FileStore rooted at path. The file is created lazily on
// the first write.
func New(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path: path,
		log:  logger.Named("store"),
	}
}

// defaultRecord is the state of a store nobody has written to yet.
func defaultRecord() schemas.UserRecord {
	return schemas.UserRecord{
		Name:           "",
		Email:          "",
		MHMDPreference: schemas.PreferenceOptOut,
	}
}

// load reads the record from disk, applying defaults when the file is
// missing or corrupt. Callers must hold s.mu.
func (s *FileStore) load() schemas.UserRecord {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Failed to read store file; using defaults.",
				zap.String("path", s.path), zap.Error(err))
		}
		return defaultRecord()
	}

	var shape fileShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		s.log.Warn("Store file is corrupt; using defaults.",
			zap.String("path", s.path), zap.Error(err))
		return defaultRecord()
	}
	if !shape.User.MHMDPreference.IsValid() {
		shape.User.MHMDPreference = schemas.PreferenceOptOut
	}
	return shape.User
}

// write persists the record as the whole file. Callers must hold s.mu.
func (s *FileStore) write(rec schemas.UserRecord) error {
	raw, err := json.MarshalIndent(fileShape{User: rec}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling user record: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("writing store file %s: %w", s.path, err)
	}
	return nil
}

// Get returns the persisted record, or nil when no user has been saved
// yet (both name and email empty).
func (s *FileStore) Get() (*schemas.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load()
	if rec.Name == "" && rec.Email == "" {
		return nil, nil
	}
	return &rec, nil
}

// Save replaces the persisted record.
func (s *FileStore) Save(rec schemas.UserRecord) error {
	if !rec.MHMDPreference.IsValid() {
		return fmt.Errorf("invalid mhmd_preference %q", rec.MHMDPreference)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(rec); err != nil {
		return err
	}
	s.log.Info("User record saved.",
		zap.String("name", rec.Name),
		zap.String("preference", string(rec.MHMDPreference)))
	return nil
}

// Update merges the non-nil fields of the partial input into the
// persisted record and returns the result.
func (s *FileStore) Update(partial schemas.WorkflowInput) (*schemas.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load()
	if partial.Name != nil {
		rec.Name = *partial.Name
	}
	if partial.Email != nil {
		rec.Email = *partial.Email
	}
	if partial.Preference != nil {
		if !partial.Preference.IsValid() {
			return nil, fmt.Errorf("invalid mhmd_preference %q", *partial.Preference)
		}
		rec.MHMDPreference = *partial.Preference
	}

	if err := s.write(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete resets the store to the default record.
func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(defaultRecord())
}

// CurrentPreference returns the persisted preference and whether a saved
// user exists. Reading twice with no intervening write returns the same
// value.
func (s *FileStore) CurrentPreference() (schemas.Preference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.load()
	return rec.MHMDPreference, rec.Name != "" || rec.Email != ""
}

package pulse

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// IdentityStore supplies the IDs attached to every event. Implementations
// must be safe for concurrent use; the enricher reads while producers may be
// writing.
//
// AnonymousID must never return an empty string without an error: stores are
// expected to generate and persist one on first access.
type IdentityStore interface {
	// AnonymousID returns the device-scoped anonymous ID.
	AnonymousID() (string, error)
	// UserID returns the known user ID, or "" when unset.
	UserID() string
	// GroupID returns the known group ID, or "" when unset.
	GroupID() string
	// AdvertisingID returns the advertising ID, or "" when unset. It keys
	// the context snapshot cache.
	AdvertisingID() string
}

// MutableIdentityStore extends IdentityStore with writes. The client's
// SetUserID/SetGroupID/SetAdvertisingID helpers use it when the configured
// store supports mutation.
type MutableIdentityStore interface {
	IdentityStore

	SetUserID(id string) error
	SetGroupID(id string) error
	SetAdvertisingID(id string) error

	// Reset forgets all stored IDs. A fresh anonymous ID is generated on
	// the next AnonymousID call.
	Reset() error
}

// identityFileName is the document stored under the identity directory.
const identityFileName = "identity.json"

// identityRecord is the persisted identity document.
type identityRecord struct {
	AnonymousID   string `json:"anonymousId"`
	UserID        string `json:"userId,omitempty"`
	GroupID       string `json:"groupId,omitempty"`
	AdvertisingID string `json:"advertisingId,omitempty"`
}

// FileIdentityStore persists identity as a JSON document so the anonymous ID
// survives process restarts. The file is loaded lazily on first access and
// rewritten atomically (temp file + rename) on every mutation.
type FileIdentityStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	rec    identityRecord
}

// NewFileIdentityStore creates a store persisting under dir, creating the
// directory if needed.
func NewFileIdentityStore(dir string) (*FileIdentityStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pulse: creating identity directory: %w", err)
	}
	return &FileIdentityStore{path: filepath.Join(dir, identityFileName)}, nil
}

// defaultIdentityDir places the identity file under the user config
// directory, falling back to the system temp directory.
func defaultIdentityDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pulse")
	}
	return filepath.Join(os.TempDir(), "pulse")
}

// load reads the document once. A corrupt file starts a fresh identity
// instead of failing every event. Must be called with the lock held.
func (s *FileIdentityStore) load() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run.
	case err != nil:
		return fmt.Errorf("pulse: reading identity file: %w", err)
	default:
		if err := json.Unmarshal(data, &s.rec); err != nil {
			s.rec = identityRecord{}
		}
	}

	s.loaded = true
	return nil
}

// persist writes the document atomically. Must be called with the lock held.
func (s *FileIdentityStore) persist() error {
	data, err := json.MarshalIndent(s.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("pulse: encoding identity: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("pulse: writing identity file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("pulse: replacing identity file: %w", err)
	}
	return nil
}

// AnonymousID returns the persisted anonymous ID, generating and persisting
// one on first access.
func (s *FileIdentityStore) AnonymousID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return "", err
	}
	if s.rec.AnonymousID == "" {
		u, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("pulse: generating anonymous id: %w", err)
		}
		s.rec.AnonymousID = u.String()
		if err := s.persist(); err != nil {
			return "", err
		}
	}
	return s.rec.AnonymousID, nil
}

// UserID returns the persisted user ID, or "" when unset or unreadable.
func (s *FileIdentityStore) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return ""
	}
	return s.rec.UserID
}

// GroupID returns the persisted group ID, or "" when unset or unreadable.
func (s *FileIdentityStore) GroupID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return ""
	}
	return s.rec.GroupID
}

// AdvertisingID returns the persisted advertising ID, or "" when unset or
// unreadable.
func (s *FileIdentityStore) AdvertisingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return ""
	}
	return s.rec.AdvertisingID
}

// SetUserID persists the user ID.
func (s *FileIdentityStore) SetUserID(id string) error {
	return s.update(func(rec *identityRecord) { rec.UserID = id })
}

// SetGroupID persists the group ID.
func (s *FileIdentityStore) SetGroupID(id string) error {
	return s.update(func(rec *identityRecord) { rec.GroupID = id })
}

// SetAdvertisingID persists the advertising ID.
func (s *FileIdentityStore) SetAdvertisingID(id string) error {
	return s.update(func(rec *identityRecord) { rec.AdvertisingID = id })
}

// Reset wipes the persisted identity. The next AnonymousID call generates a
// fresh one.
func (s *FileIdentityStore) Reset() error {
	return s.update(func(rec *identityRecord) { *rec = identityRecord{} })
}

func (s *FileIdentityStore) update(mutate func(*identityRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	mutate(&s.rec)
	return s.persist()
}

var _ MutableIdentityStore = (*FileIdentityStore)(nil)

// StaticIdentityStore serves identity from memory. Useful in tests and for
// hosts that manage identity persistence themselves.
type StaticIdentityStore struct {
	mu  sync.RWMutex
	rec identityRecord
}

// NewStaticIdentityStore creates a store with a fixed anonymous ID. When
// anonymousID is empty, one is generated on first access.
func NewStaticIdentityStore(anonymousID string) *StaticIdentityStore {
	return &StaticIdentityStore{rec: identityRecord{AnonymousID: anonymousID}}
}

// AnonymousID returns the anonymous ID, generating one on first access.
func (s *StaticIdentityStore) AnonymousID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.AnonymousID == "" {
		u, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("pulse: generating anonymous id: %w", err)
		}
		s.rec.AnonymousID = u.String()
	}
	return s.rec.AnonymousID, nil
}

// UserID returns the user ID, or "" when unset.
func (s *StaticIdentityStore) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.UserID
}

// GroupID returns the group ID, or "" when unset.
func (s *StaticIdentityStore) GroupID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.GroupID
}

// AdvertisingID returns the advertising ID, or "" when unset.
func (s *StaticIdentityStore) AdvertisingID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.AdvertisingID
}

// SetUserID sets the user ID.
func (s *StaticIdentityStore) SetUserID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.UserID = id
	return nil
}

// SetGroupID sets the group ID.
func (s *StaticIdentityStore) SetGroupID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.GroupID = id
	return nil
}

// SetAdvertisingID sets the advertising ID.
func (s *StaticIdentityStore) SetAdvertisingID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.AdvertisingID = id
	return nil
}

// Reset forgets all IDs; a fresh anonymous ID is generated on next access.
func (s *StaticIdentityStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = identityRecord{}
	return nil
}

var _ MutableIdentityStore = (*StaticIdentityStore)(nil)

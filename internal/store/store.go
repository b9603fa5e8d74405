// Package store provides durable, concurrency-safe persistence of session
// records backed by a single shared JSON file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"carevoice-backend/internal/session"
)

const storeFileName = "sessions_store.json"

var (
	// ErrNotFound is returned when a session id is absent from the store.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyExists is returned by Create on a session id collision.
	ErrAlreadyExists = errors.New("session already exists")
)

// Store persists session records in <baseDir>/sessions_store.json as a single
// JSON object mapping session id to record. Every mutation rewrites the whole
// file through a temp-file-then-rename, so a crash mid-write leaves the
// previous durable state intact. One mutex serializes all read-modify-write
// cycles within this process; cross-process locking is out of scope.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a Store rooted at baseDir, creating the directory and an empty
// store file if they do not exist.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create base dir: %w", err)
	}
	s := &Store{path: filepath.Join(baseDir, storeFileName)}
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := s.atomicWrite(map[string]map[string]any{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("store: stat %s: %w", s.path, err)
	}
	return s, nil
}

// Create writes a new session record. If sess.SessionID is empty a fresh UUID
// is assigned. Returns ErrAlreadyExists if the id is already present.
func (s *Store) Create(sess session.Session) (string, error) {
	id := sess.SessionID
	if id == "" {
		id = uuid.NewString()
		sess.SessionID = id
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = now
	}

	rec, err := toRecord(sess)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return "", err
	}
	if _, ok := all[id]; ok {
		return "", fmt.Errorf("store: session %q: %w", id, ErrAlreadyExists)
	}
	all[id] = rec
	if err := s.atomicWrite(all); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the session for id, or ErrNotFound.
func (s *Store) Get(id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	rec, ok := all[id]
	if !ok {
		return nil, fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	return fromRecord(rec)
}

// All returns every stored session, keyed by session id.
func (s *Store) All() (map[string]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]session.Session, len(all))
	for id, rec := range all {
		sess, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out[id] = *sess
	}
	return out, nil
}

// GetByStatus returns all sessions whose status field equals status, keyed by
// session id.
func (s *Store) GetByStatus(status string) (map[string]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	out := make(map[string]session.Session)
	for id, rec := range all {
		if st, _ := rec["status"].(string); st == status {
			sess, err := fromRecord(rec)
			if err != nil {
				return nil, err
			}
			out[id] = *sess
		}
	}
	return out, nil
}

// Update shallow-merges patch into the stored record: top-level keys in patch
// replace the stored ones wholesale, all other keys are untouched. The whole
// read-merge-write cycle holds the store lock. Returns the merged record, or
// ErrNotFound.
func (s *Store) Update(id string, patch map[string]any) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	rec, ok := all[id]
	if !ok {
		return nil, fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	for k, v := range patch {
		// Normalize typed patch values (structs, time.Time) to their JSON
		// shape so the stored record stays uniform.
		jv, err := toJSONValue(v)
		if err != nil {
			return nil, fmt.Errorf("store: patch key %q: %w", k, err)
		}
		rec[k] = jv
	}
	if _, ok := patch["updated_at"]; !ok {
		rec["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	all[id] = rec
	if err := s.atomicWrite(all); err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// Set completely replaces the session record for id. Returns ErrNotFound if
// the id is absent; Set never creates.
func (s *Store) Set(id string, sess session.Session) error {
	sess.SessionID = id
	rec, err := toRecord(sess)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	if _, ok := all[id]; !ok {
		return fmt.Errorf("store: session %q: %w", id, ErrNotFound)
	}
	all[id] = rec
	return s.atomicWrite(all)
}

// Exists reports whether a session with the given id is present.
func (s *Store) Exists(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return false, err
	}
	_, ok := all[id]
	return ok, nil
}

// Delete removes the session for id. Deleting a missing id is not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return err
	}
	if _, ok := all[id]; !ok {
		return nil
	}
	delete(all, id)
	return s.atomicWrite(all)
}

// readAll loads the entire store file. A missing file reads as an empty store.
func (s *Store) readAll() (map[string]map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	var all map[string]map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("store: parse %s: %w", s.path, err)
	}
	if all == nil {
		all = map[string]map[string]any{}
	}
	return all, nil
}

// atomicWrite marshals the full store state to a temp file and renames it into
// place. Rename is atomic on POSIX filesystems, so readers see either the old
// or the new state, never a partial write.
func (s *Store) atomicWrite(all map[string]map[string]any) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: rename %s: %w", tmp, err)
	}
	return nil
}

// toRecord converts a typed session to its JSON object form for storage.
func toRecord(sess session.Session) (map[string]any, error) {
	v, err := toJSONValue(sess)
	if err != nil {
		return nil, fmt.Errorf("store: encode session: %w", err)
	}
	rec, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("store: encode session: not an object")
	}
	return rec, nil
}

// fromRecord converts a stored JSON object back into a typed session.
func fromRecord(rec map[string]any) (*session.Session, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("store: decode session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("store: decode session: %w", err)
	}
	return &sess, nil
}

// toJSONValue round-trips v through encoding/json so typed values take their
// wire shape before being merged into a stored record.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Package credstore persists the console session as four separate keys.
// A session is only loaded back when every key is present and well formed.
package credstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/and161185/retail-desk/internal/model"
)

// Storage keys.
const (
	KeyToken     = "jwt_token"
	KeyRole      = "user_role"
	KeyAccountID = "account_id"
	KeyUsername  = "username"
)

var allKeys = []string{KeyToken, KeyRole, KeyAccountID, KeyUsername}

// Store saves, loads and clears a session.
type Store interface {
	Save(s model.Session) error
	// Load returns nil, nil when no complete session is stored.
	Load() (*model.Session, error)
	Clear() error
}

// kv is the per-key backend shared by both stores.
type kv interface {
	get(key string) (string, bool, error)
	set(key, val string) error
	del(key string) error
}

// save writes every key or, on failure, none of them.
func save(b kv, s model.Session) error {
	if !s.Valid() {
		return errors.New("credstore: refusing to save incomplete session")
	}
	vals := map[string]string{
		KeyToken:     s.Token,
		KeyRole:      string(s.Identity.Role),
		KeyAccountID: strconv.FormatInt(s.Identity.AccountID, 10),
		KeyUsername:  s.Identity.DisplayName,
	}
	for _, k := range allKeys {
		if err := b.set(k, vals[k]); err != nil {
			return errors.Join(err, clearAll(b))
		}
	}
	return nil
}

func load(b kv) (*model.Session, error) {
	vals := make(map[string]string, len(allKeys))
	for _, k := range allKeys {
		v, ok, err := b.get(k)
		if err != nil {
			return nil, err
		}
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return nil, nil
		}
		vals[k] = v
	}
	id, err := strconv.ParseInt(vals[KeyAccountID], 10, 64)
	if err != nil || id <= 0 {
		return nil, nil
	}
	s := &model.Session{
		Token: vals[KeyToken],
		Identity: model.Identity{
			AccountID:   id,
			DisplayName: vals[KeyUsername],
			Role:        model.Role(vals[KeyRole]),
		},
	}
	return s, nil
}

func clearAll(b kv) error {
	var errs []error
	for _, k := range allKeys {
		if err := b.del(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --- file backend ---

// Cipher seals values at rest. Values are bound to their key name.
type Cipher interface {
	Seal(name string, plaintext []byte) ([]byte, error)
	Open(name string, blob []byte) ([]byte, error)
}

// FileStore keeps one 0600 file per key inside Dir. With a Cipher set, file
// contents are sealed.
type FileStore struct {
	Dir    string
	Cipher Cipher
}

// DefaultDir is $XDG_CONFIG_HOME/retail-desk, falling back to ~/.config/retail-desk.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "retail-desk")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "retail-desk")
}

// NewFileStore returns a FileStore rooted at dir, or DefaultDir when dir is empty.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{Dir: dir}
}

func (f *FileStore) path(key string) string { return filepath.Join(f.Dir, key) }

func (f *FileStore) get(key string) (string, bool, error) {
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if f.Cipher != nil {
		if b, err = f.Cipher.Open(key, b); err != nil {
			return "", false, fmt.Errorf("open %s: %w", key, err)
		}
	}
	return string(b), true, nil
}

func (f *FileStore) set(key, val string) error {
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return err
	}
	b := []byte(val)
	if f.Cipher != nil {
		var err error
		if b, err = f.Cipher.Seal(key, b); err != nil {
			return fmt.Errorf("seal %s: %w", key, err)
		}
	}
	return os.WriteFile(f.path(key), b, 0o600)
}

func (f *FileStore) del(key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Save writes all four keys.
func (f *FileStore) Save(s model.Session) error { return save(f, s) }

// Load reads the session back; partial storage counts as absent.
func (f *FileStore) Load() (*model.Session, error) { return load(f) }

// Clear removes every key. Missing files are not an error.
func (f *FileStore) Clear() error { return clearAll(f) }

// --- memory backend ---

// MemoryStore keeps the keys in a map.
type MemoryStore struct {
	mu   sync.Mutex
	vals map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{vals: map[string]string{}} }

func (m *MemoryStore) get(key string) (string, bool, error) {
	v, ok := m.vals[key]
	return v, ok, nil
}

func (m *MemoryStore) set(key, val string) error {
	m.vals[key] = val
	return nil
}

func (m *MemoryStore) del(key string) error {
	delete(m.vals, key)
	return nil
}

// Put writes a raw key; used to simulate partially written storage.
func (m *MemoryStore) Put(key, val string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = val
}

func (m *MemoryStore) Save(s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return save(m, s)
}

func (m *MemoryStore) Load() (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return load(m)
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clearAll(m)
}

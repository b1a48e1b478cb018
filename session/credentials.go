package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CredentialStore persists the access token between runs. Load returns
// an empty string, not an error, when nothing is stored.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

const (
	configDirName = "tutorlink"
	tokenFileName = "token"
)

// FileStore keeps the token in a mode-0600 file under the user config
// directory.
type FileStore struct {
	path string
}

func NewFileStore() (*FileStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &FileStore{path: filepath.Join(dir, configDirName, tokenFileName)}, nil
}

func NewFileStoreAt(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, []byte(token), 0o600)
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemStore is an in-process CredentialStore for tests and ephemeral
// sessions.
type MemStore struct {
	mu    sync.Mutex
	token string
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

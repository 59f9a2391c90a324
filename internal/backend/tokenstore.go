package backend

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Token is the persisted client-side session state: the opaque token pair
// plus the identity it was issued for.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
}

// TokenStore persists the session token between runs. Load returns
// (nil, nil) when nothing is stored; absence is a valid logged-out resume.
type TokenStore interface {
	Load() (*Token, error)
	Save(Token) error
	Clear() error
}

// FileTokenStore keeps the token in a mode-0600 JSON file.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore builds a store writing to the given path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Load reads the stored token, or (nil, nil) when the file does not exist.
func (s *FileTokenStore) Load() (*Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		// A corrupt token file resumes as logged out rather than
		// wedging every boot.
		return nil, nil
	}
	return &tok, nil
}

// Save writes the token, creating parent directories as needed.
func (s *FileTokenStore) Save(tok Token) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Clear removes the stored token. A missing file is not an error.
func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryTokenStore holds the token in memory, for tests.
type MemoryTokenStore struct {
	tok *Token
}

func (s *MemoryTokenStore) Load() (*Token, error) { return s.tok, nil }

func (s *MemoryTokenStore) Save(tok Token) error {
	s.tok = &tok
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.tok = nil
	return nil
}

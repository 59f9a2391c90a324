package backend_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tipster-app/tipster/internal/backend"
)

func TestFileTokenStoreMissingFileIsNoSession(t *testing.T) {
	store := backend.NewFileTokenStore(filepath.Join(t.TempDir(), "session.json"))

	tok, err := store.Load()
	if err != nil || tok != nil {
		t.Fatalf("Load = %+v, %v; want nil, nil", tok, err)
	}
}

func TestFileTokenStoreCorruptFileIsNoSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	tok, err := backend.NewFileTokenStore(path).Load()
	if err != nil || tok != nil {
		t.Fatalf("corrupt Load = %+v, %v; want nil, nil", tok, err)
	}
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	// Parent directory does not exist yet; Save must create it.
	path := filepath.Join(t.TempDir(), "tipster", "session.json")
	store := backend.NewFileTokenStore(path)

	want := backend.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		UserID:       "user-1",
		Email:        "pat@example.com",
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token file mode = %o, want 600", perm)
	}

	got, err := store.Load()
	if err != nil || got == nil {
		t.Fatalf("Load = %+v, %v", got, err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken ||
		got.UserID != want.UserID || got.Email != want.Email {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("ExpiresAt = %v, want %v", got.ExpiresAt, want.ExpiresAt)
	}
}

func TestFileTokenStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := backend.NewFileTokenStore(path)

	// Clearing an absent token is a no-op, not an error.
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}

	if err := store.Save(backend.Token{AccessToken: "access"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	tok, err := store.Load()
	if err != nil || tok != nil {
		t.Fatalf("Load after Clear = %+v, %v; want nil, nil", tok, err)
	}
}

package backend_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/config"
	"github.com/tipster-app/tipster/internal/emulator"
	"github.com/tipster-app/tipster/internal/logging"
)

// emulatorTransport dispatches client requests straight into the emulator,
// no listener involved.
type emulatorTransport struct {
	srv *emulator.Server
}

func (t emulatorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.srv.Test(req, -1)
}

func newBackendClient(t *testing.T) (*backend.REST, backend.TokenStore) {
	t.Helper()
	client, store, _ := newBackendClientTTL(t, time.Hour)
	return client, store
}

// newBackendClientTTL also returns the HTTP client bound to the emulator
// transport, for tests that need to talk to the emulator directly.
func newBackendClientTTL(t *testing.T, accessTTL time.Duration) (*backend.REST, backend.TokenStore, *http.Client) {
	t.Helper()
	cfg := config.Config{
		AppName:         "tipster-test",
		JWTSecret:       "test-secret",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: time.Hour,
	}
	srv := emulator.New(cfg, emulator.NewMemoryStore(), emulator.NewMemoryRefreshStore(), logging.Discard())
	httpc := &http.Client{Transport: emulatorTransport{srv: srv}}

	store := &backend.MemoryTokenStore{}
	client, err := backend.NewREST(backend.RESTConfig{
		URL:        "http://emulator.local",
		APIKey:     "test-anon-key",
		HTTPClient: httpc,
		TokenStore: store,
		Logger:     logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewREST: %v", err)
	}
	t.Cleanup(client.Close)
	return client, store, httpc
}

func TestRESTSignUpAndProfileRoundTrip(t *testing.T) {
	client, _ := newBackendClient(t)
	ctx := context.Background()

	id, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if id.Email != "pat@example.com" || id.ID == "" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	profile := backend.Profile{ID: id.ID, DisplayName: "Pat", AvatarURL: "https://example.com/a.png"}
	if err := client.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}

	got, err := client.ProfileByID(ctx, id.ID)
	if err != nil {
		t.Fatalf("ProfileByID: %v", err)
	}
	if got == nil || got.DisplayName != "Pat" {
		t.Fatalf("profile round trip: %+v", got)
	}
}

func TestRESTSignInRejectsBadCredentials(t *testing.T) {
	client, _ := newBackendClient(t)
	ctx := context.Background()

	if _, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	_, err := client.SignIn(ctx, "pat@example.com", "wrong-password")
	var authErr *backend.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("SignIn err = %v, want AuthError", err)
	}
}

func TestRESTAbsentRowsAreNil(t *testing.T) {
	client, _ := newBackendClient(t)
	ctx := context.Background()

	profile, err := client.ProfileByID(ctx, "nobody")
	if err != nil || profile != nil {
		t.Fatalf("ProfileByID = %+v, %v; want nil, nil", profile, err)
	}
	app, err := client.ApplicationByUser(ctx, "nobody")
	if err != nil || app != nil {
		t.Fatalf("ApplicationByUser = %+v, %v; want nil, nil", app, err)
	}
}

func TestRESTCreateTipRequiresCapability(t *testing.T) {
	client, _ := newBackendClient(t)
	ctx := context.Background()

	id, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	err = client.CreateTip(ctx, backend.Tip{
		ProviderID: id.ID,
		Sport:      "Football",
		Event:      "A vs B",
		Selection:  "A",
		Odds:       1.8,
		Stake:      5,
		Confidence: 7,
		Type:       backend.TipFree,
		Status:     backend.TipPending,
	})
	var authzErr *backend.AuthzError
	if !errors.As(err, &authzErr) {
		t.Fatalf("CreateTip err = %v, want AuthzError", err)
	}
}

func TestRESTDepositFlow(t *testing.T) {
	client, _ := newBackendClient(t)
	ctx := context.Background()

	id, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	err = client.DepositFunds(ctx, 5)
	var valErr *backend.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("below-minimum deposit err = %v, want ValidationError", err)
	}

	if err := client.DepositFunds(ctx, 50); err != nil {
		t.Fatalf("DepositFunds: %v", err)
	}
	balance, err := client.WalletBalance(ctx, id.ID)
	if err != nil {
		t.Fatalf("WalletBalance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance = %v, want 50", balance)
	}
}

func TestRESTResumeSessionFromStore(t *testing.T) {
	client, store := newBackendClient(t)
	ctx := context.Background()

	id, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	resumed, err := client.ResumeSession(ctx)
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if resumed == nil || resumed.ID != id.ID {
		t.Fatalf("resumed identity = %+v, want %s", resumed, id.ID)
	}

	tok, err := store.Load()
	if err != nil || tok == nil {
		t.Fatalf("token store after signup: %+v, %v", tok, err)
	}
}

func TestRESTSignOutClearsStoredToken(t *testing.T) {
	client, store := newBackendClient(t)
	ctx := context.Background()

	if _, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if err := client.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	tok, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != nil {
		t.Fatalf("token survived sign-out: %+v", tok)
	}

	// With no session the next resume is a clean logged-out start.
	id, err := client.ResumeSession(ctx)
	if err != nil || id != nil {
		t.Fatalf("ResumeSession = %+v, %v; want nil, nil", id, err)
	}
}

func TestRESTRefreshRotationNotifiesSubscribers(t *testing.T) {
	client, store, _ := newBackendClientTTL(t, 2*time.Second)
	ctx := context.Background()

	changes := make(chan *backend.Identity, 4)
	sub, err := client.SessionChanges(func(id *backend.Identity) { changes <- id })
	if err != nil {
		t.Fatalf("SessionChanges: %v", err)
	}
	defer sub.Unsubscribe()

	id, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	before, err := store.Load()
	if err != nil || before == nil {
		t.Fatalf("token store after signup: %+v, %v", before, err)
	}

	// The short access-token lifetime makes the refresh timer fire within
	// a couple of seconds.
	select {
	case got := <-changes:
		if got == nil || got.ID != id.ID {
			t.Fatalf("rotation notified %+v, want identity %s", got, id.ID)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no session-change notification from the refresh loop")
	}

	after, err := store.Load()
	if err != nil || after == nil {
		t.Fatalf("token store after rotation: %+v, %v", after, err)
	}
	if after.RefreshToken == before.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
}

func TestRESTRejectedRefreshEndsSessionWithNilNotification(t *testing.T) {
	client, store, httpc := newBackendClientTTL(t, 2*time.Second)
	ctx := context.Background()

	if _, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	tok, err := store.Load()
	if err != nil || tok == nil {
		t.Fatalf("token store after signup: %+v, %v", tok, err)
	}

	// Burn the client's refresh token directly, so its next rotation is
	// rejected as already consumed.
	body := strings.NewReader(fmt.Sprintf(`{"refresh_token":%q}`, tok.RefreshToken))
	req, err := http.NewRequest(http.MethodPost, "http://emulator.local/auth/v1/token?grant_type=refresh_token", body)
	if err != nil {
		t.Fatalf("build burn request: %v", err)
	}
	req.Header.Set("apikey", "test-anon-key")
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpc.Do(req)
	if err != nil {
		t.Fatalf("burn refresh token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("burn refresh token status = %d", resp.StatusCode)
	}

	changes := make(chan *backend.Identity, 4)
	sub, err := client.SessionChanges(func(id *backend.Identity) { changes <- id })
	if err != nil {
		t.Fatalf("SessionChanges: %v", err)
	}
	defer sub.Unsubscribe()

	select {
	case got := <-changes:
		if got != nil {
			t.Fatalf("rejected refresh notified %+v, want nil", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no sign-out notification after the rejected refresh")
	}

	after, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if after != nil {
		t.Fatalf("token survived the rejected refresh: %+v", after)
	}
}

func TestRESTResumeRefreshesExpiringToken(t *testing.T) {
	client, store := newBackendClient(t)
	ctx := context.Background()

	id, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	tok, err := store.Load()
	if err != nil || tok == nil {
		t.Fatalf("token store after signup: %+v, %v", tok, err)
	}

	// Age the stored session below the refresh threshold, so resuming
	// must exchange the refresh token.
	stale := *tok
	stale.ExpiresAt = time.Now().Add(30 * time.Second)
	if err := store.Save(stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	resumed, err := client.ResumeSession(ctx)
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if resumed == nil || resumed.ID != id.ID {
		t.Fatalf("resumed identity = %+v, want %s", resumed, id.ID)
	}

	fresh, err := store.Load()
	if err != nil || fresh == nil {
		t.Fatalf("token store after resume: %+v, %v", fresh, err)
	}
	if fresh.RefreshToken == stale.RefreshToken {
		t.Fatal("resume did not rotate the refresh token")
	}
	if !fresh.ExpiresAt.After(stale.ExpiresAt) {
		t.Fatal("resume did not extend the session")
	}
}

func TestRESTResumeWithRevokedRefreshTokenIsLoggedOut(t *testing.T) {
	client, store := newBackendClient(t)
	ctx := context.Background()

	if _, err := client.SignUp(ctx, "pat@example.com", "hunter22", "Pat"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	tok, err := store.Load()
	if err != nil || tok == nil {
		t.Fatalf("token store after signup: %+v, %v", tok, err)
	}

	stale := *tok
	stale.ExpiresAt = time.Now()
	stale.RefreshToken = "revoked"
	if err := store.Save(stale); err != nil {
		t.Fatalf("Save: %v", err)
	}

	id, err := client.ResumeSession(ctx)
	if err != nil || id != nil {
		t.Fatalf("ResumeSession = %+v, %v; want nil, nil", id, err)
	}
	after, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if after != nil {
		t.Fatalf("revoked session token was not dropped: %+v", after)
	}
}

package emulator

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tipster-app/tipster/internal/config"
	"github.com/tipster-app/tipster/internal/logging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		AppName:         "tipster-test",
		JWTSecret:       "test-secret",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: time.Hour,
	}
	return New(cfg, NewMemoryStore(), NewMemoryRefreshStore(), logging.Discard())
}

func request(t *testing.T, s *Server, method, path, bearer string, payload any) (int, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = strings.NewReader(string(encoded))
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("apikey", "test-anon-key")
	if payload != nil {
		req.Header.Set(fiberHeaderContentType, "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, raw
}

const fiberHeaderContentType = "Content-Type"

type sessionPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func signup(t *testing.T, s *Server, email, password string) sessionPayload {
	t.Helper()
	status, body := request(t, s, http.MethodPost, "/auth/v1/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"display_name": "tester"},
	})
	if status != http.StatusOK {
		t.Fatalf("signup status = %d, body %s", status, body)
	}
	var session sessionPayload
	if err := json.Unmarshal(body, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session
}

func TestSignupIssuesSession(t *testing.T) {
	s := newTestServer(t)
	session := signup(t, s, "pat@example.com", "hunter22")

	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("expected a token pair, got %+v", session)
	}
	if session.User.Email != "pat@example.com" {
		t.Fatalf("user email = %q", session.User.Email)
	}
	if session.ExpiresIn != 3600 {
		t.Fatalf("expires_in = %d", session.ExpiresIn)
	}
}

func TestSignupRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	s := newTestServer(t)
	signup(t, s, "pat@example.com", "hunter22")

	status, _ := request(t, s, http.MethodPost, "/auth/v1/signup", "", map[string]any{
		"email": "pat@example.com", "password": "hunter22",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate signup status = %d", status)
	}

	status, _ = request(t, s, http.MethodPost, "/auth/v1/signup", "", map[string]any{
		"email": "new@example.com", "password": "short",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("weak password status = %d", status)
	}
}

func TestPasswordGrant(t *testing.T) {
	s := newTestServer(t)
	signup(t, s, "pat@example.com", "hunter22")

	status, _ := request(t, s, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]any{
		"email": "pat@example.com", "password": "wrong-password",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("bad credentials status = %d", status)
	}

	status, body := request(t, s, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]any{
		"email": "pat@example.com", "password": "hunter22",
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d, body %s", status, body)
	}
}

func TestRefreshGrantRotates(t *testing.T) {
	s := newTestServer(t)
	session := signup(t, s, "pat@example.com", "hunter22")

	status, body := request(t, s, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]any{
		"refresh_token": session.RefreshToken,
	})
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", status, body)
	}
	var rotated sessionPayload
	if err := json.Unmarshal(body, &rotated); err != nil {
		t.Fatalf("decode rotated session: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The consumed token is single-use.
	status, _ = request(t, s, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]any{
		"refresh_token": session.RefreshToken,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("reused refresh token status = %d", status)
	}
}

func TestUserEndpointRequiresValidBearer(t *testing.T) {
	s := newTestServer(t)
	session := signup(t, s, "pat@example.com", "hunter22")

	status, body := request(t, s, http.MethodGet, "/auth/v1/user", session.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("user status = %d, body %s", status, body)
	}

	status, _ = request(t, s, http.MethodGet, "/auth/v1/user", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("forged bearer status = %d", status)
	}
}

func TestProfileInsertForcesOwnership(t *testing.T) {
	s := newTestServer(t)
	session := signup(t, s, "pat@example.com", "hunter22")

	status, _ := request(t, s, http.MethodPost, "/rest/v1/profiles", session.AccessToken, []map[string]any{
		{"id": "someone-else", "display_name": "Impostor"},
	})
	if status != http.StatusForbidden {
		t.Fatalf("foreign profile insert status = %d", status)
	}

	status, _ = request(t, s, http.MethodPost, "/rest/v1/profiles", session.AccessToken, []map[string]any{
		{"id": session.User.ID, "display_name": "Pat"},
	})
	if status != http.StatusCreated {
		t.Fatalf("profile insert status = %d", status)
	}

	status, _ = request(t, s, http.MethodPost, "/rest/v1/profiles", session.AccessToken, []map[string]any{
		{"id": session.User.ID, "display_name": "Pat"},
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate profile insert status = %d", status)
	}
}

func TestSingleObjectAbsenceIs406(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles?id=eq.nobody&select=*", nil)
	req.Header.Set("apikey", "test-anon-key")
	req.Header.Set("Accept", singleObjectAccept)
	resp, err := s.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("absent single-object status = %d", resp.StatusCode)
	}
}

func TestTipPublishingGatedOnCapability(t *testing.T) {
	s := newTestServer(t)
	session := signup(t, s, "provider@example.com", "hunter22")

	tip := []map[string]any{{
		"sport": "Football", "league": "EPL", "event": "A vs B",
		"market": "Match Winner", "selection": "A", "odds": 1.8,
		"stake": 5, "confidence": 7, "type": "FREE", "status": "PENDING",
	}}
	status, _ := request(t, s, http.MethodPost, "/rest/v1/tips", session.AccessToken, tip)
	if status != http.StatusForbidden {
		t.Fatalf("unauthorized publish status = %d", status)
	}

	// Apply, approve through the admin endpoint, then publish.
	status, _ = request(t, s, http.MethodPost, "/rest/v1/provider_applications", session.AccessToken, []map[string]any{
		{"bio": strings.Repeat("x", 40), "status": "pending"},
	})
	if status != http.StatusCreated {
		t.Fatalf("application status = %d", status)
	}

	var app ApplicationRow
	statusCode, body := request(t, s, http.MethodGet, "/rest/v1/provider_applications?user_id=eq."+session.User.ID, session.AccessToken, nil)
	if statusCode != http.StatusOK {
		t.Fatalf("application lookup status = %d", statusCode)
	}
	var apps []ApplicationRow
	if err := json.Unmarshal(body, &apps); err != nil || len(apps) != 1 {
		t.Fatalf("decode applications: %v (%s)", err, body)
	}
	app = apps[0]

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/applications/"+app.ID+"/approve", nil)
	req.Header.Set("apikey", "test-anon-key")
	req.Header.Set("X-Admin-Key", "test-secret")
	resp, err := s.Test(req)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d", resp.StatusCode)
	}

	status, _ = request(t, s, http.MethodPost, "/rest/v1/tips", session.AccessToken, tip)
	if status != http.StatusCreated {
		t.Fatalf("approved publish status = %d", status)
	}

	status, body = request(t, s, http.MethodGet, "/rest/v1/tips?select=*&order=created_at.desc", "", nil)
	if status != http.StatusOK {
		t.Fatalf("feed status = %d", status)
	}
	var tips []TipRow
	if err := json.Unmarshal(body, &tips); err != nil {
		t.Fatalf("decode tips: %v", err)
	}
	if len(tips) != 1 || tips[0].ProviderID != session.User.ID {
		t.Fatalf("unexpected feed: %+v", tips)
	}
}

func TestAdminEndpointRequiresKey(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/applications/some-id/approve", nil)
	req.Header.Set("apikey", "test-anon-key")
	req.Header.Set("X-Admin-Key", "wrong")
	resp, err := s.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong admin key status = %d", resp.StatusCode)
	}
}

func TestDepositFunds(t *testing.T) {
	s := newTestServer(t)
	session := signup(t, s, "pat@example.com", "hunter22")

	status, _ := request(t, s, http.MethodPost, "/rest/v1/rpc/deposit_funds", "", map[string]any{"amount": 50})
	if status != http.StatusUnauthorized {
		t.Fatalf("anonymous deposit status = %d", status)
	}

	status, body := request(t, s, http.MethodPost, "/rest/v1/rpc/deposit_funds", session.AccessToken, map[string]any{"amount": 9.99})
	if status != http.StatusBadRequest {
		t.Fatalf("below-minimum deposit status = %d, body %s", status, body)
	}

	status, body = request(t, s, http.MethodPost, "/rest/v1/rpc/deposit_funds", session.AccessToken, map[string]any{"amount": 50})
	if status != http.StatusOK {
		t.Fatalf("deposit status = %d, body %s", status, body)
	}
	var result struct {
		Balance float64 `json:"balance"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode deposit result: %v", err)
	}
	if result.Balance != 50 {
		t.Fatalf("balance = %v, want 50", result.Balance)
	}

	status, body = request(t, s, http.MethodGet, "/rest/v1/wallets?user_id=eq."+session.User.ID+"&select=balance", session.AccessToken, nil)
	if status != http.StatusOK {
		t.Fatalf("wallet read status = %d", status)
	}
	var wallets []WalletRow
	if err := json.Unmarshal(body, &wallets); err != nil || len(wallets) != 1 {
		t.Fatalf("decode wallets: %v (%s)", err, body)
	}
	if wallets[0].Balance != 50 {
		t.Fatalf("wallet balance = %v, want 50", wallets[0].Balance)
	}
}

func TestMissingAPIKeyRejected(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/tips", nil)
	resp, err := s.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing apikey status = %d", resp.StatusCode)
	}
}

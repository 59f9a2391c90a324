package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	pgrstSingleAccept = "application/vnd.pgrst.object+json"

	// Refresh the session once this fraction of the token lifetime has
	// elapsed.
	refreshFraction = 0.8

	retryRefreshAfter = 30 * time.Second
)

// RESTConfig configures the hosted-backend client.
type RESTConfig struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	TokenStore TokenStore
	Logger     *slog.Logger
}

// REST talks to the hosted service: managed auth under /auth/v1, relational
// tables under /rest/v1, and the deposit procedure under /rest/v1/rpc. It
// also produces session-change notifications locally from its token refresh
// loop, since the hosted service has no push channel the client consumes.
type REST struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	store   TokenStore
	log     *slog.Logger

	mu      sync.Mutex
	token   *Token
	subs    map[int]func(*Identity)
	nextSub int
	timer   *time.Timer
	closed  bool
}

// NewREST builds a client for the hosted backend.
func NewREST(cfg RESTConfig) (*REST, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("backend api key is required")
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	store := cfg.TokenStore
	if store == nil {
		store = &MemoryTokenStore{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &REST{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   httpc,
		store:   store,
		log:     logger,
		subs:    make(map[int]func(*Identity)),
	}, nil
}

// Close stops the refresh loop. The persisted token survives for the next
// run.
func (c *REST) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

type restSubscription struct {
	c  *REST
	id int
}

func (s *restSubscription) Unsubscribe() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	delete(s.c.subs, s.id)
}

// SessionChanges registers fn for identity notifications produced by
// sign-in, sign-out and the refresh loop.
func (c *REST) SessionChanges(fn func(*Identity)) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	c.subs[c.nextSub] = fn
	return &restSubscription{c: c, id: c.nextSub}, nil
}

func (c *REST) notify(id *Identity) {
	c.mu.Lock()
	fns := make([]func(*Identity), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(cloneIdentity(id))
	}
}

// ResumeSession restores the persisted token, refreshing it when expired.
// A missing, rejected or unreadable token resumes as (nil, nil).
func (c *REST) ResumeSession(ctx context.Context) (*Identity, error) {
	tok, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session token: %w", err)
	}
	if tok == nil {
		return nil, nil
	}

	if time.Until(tok.ExpiresAt) < time.Minute {
		tok, err = c.exchangeRefreshToken(ctx, tok.RefreshToken)
		if err != nil {
			if isNetwork(err) {
				return nil, err
			}
			// The stored session was revoked remotely.
			c.dropToken()
			return nil, nil
		}
	}

	c.setToken(*tok)
	return &Identity{ID: tok.UserID, Email: tok.Email}, nil
}

// SignIn exchanges credentials for a session via the password grant.
func (c *REST) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	auth, err := c.authRequest(ctx, "/auth/v1/token?grant_type=password", map[string]any{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	tok := auth.token()
	c.setToken(tok)
	id := auth.identity()
	c.notify(id)
	return id, nil
}

// SignUp creates an account. The display name rides along in the auth
// metadata; the profile row itself is inserted separately by the caller.
// When the service returns a session it is adopted immediately so the
// follow-up profile insert is authorized.
func (c *REST) SignUp(ctx context.Context, email, password, displayName string) (*Identity, error) {
	auth, err := c.authRequest(ctx, "/auth/v1/signup", map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"display_name": displayName},
	})
	if err != nil {
		return nil, err
	}
	if auth.AccessToken != "" {
		c.setToken(auth.token())
	}
	return auth.identity(), nil
}

// SignOut revokes the session remotely and always drops the local token.
func (c *REST) SignOut(ctx context.Context) error {
	bearer := c.bearer()
	c.dropToken()
	c.notify(nil)
	if bearer == "" {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("sign out: %s", errorMessage(body, status))
	}
	return nil
}

// ProfileByID fetches one profile row, or (nil, nil) when absent.
func (c *REST) ProfileByID(ctx context.Context, id string) (*Profile, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("id", "eq."+id)
	var row profileRow
	found, err := c.selectSingle(ctx, "profiles", params, &row)
	if err != nil || !found {
		return nil, err
	}
	p := row.toProfile()
	return &p, nil
}

// CreateProfile inserts the caller's profile row.
func (c *REST) CreateProfile(ctx context.Context, profile Profile) error {
	return c.insert(ctx, "profiles", profileRow{
		ID:             profile.ID,
		DisplayName:    profile.DisplayName,
		AvatarURL:      profile.AvatarURL,
		Specialization: profile.Specialization,
	})
}

// CapabilitiesByID fetches the capability flags, or (nil, nil) when no row
// exists.
func (c *REST) CapabilitiesByID(ctx context.Context, id string) (*Capabilities, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("user_id", "eq."+id)
	var row capabilitiesRow
	found, err := c.selectSingle(ctx, "capabilities", params, &row)
	if err != nil || !found {
		return nil, err
	}
	return &Capabilities{
		CanPublish:         row.CanPublish,
		CanSell:            row.CanSell,
		CanReceivePayments: row.CanReceivePayments,
	}, nil
}

const tipSelect = "*,provider:profiles(id,display_name,avatar_url,specialization)"

// ListTips returns the feed, newest first.
func (c *REST) ListTips(ctx context.Context) ([]Tip, error) {
	params := url.Values{}
	params.Set("select", tipSelect)
	params.Set("order", "created_at.desc")
	return c.selectTips(ctx, params)
}

// TipsByProvider returns one provider's tips, newest first.
func (c *REST) TipsByProvider(ctx context.Context, providerID string) ([]Tip, error) {
	params := url.Values{}
	params.Set("select", tipSelect)
	params.Set("provider_id", "eq."+providerID)
	params.Set("order", "created_at.desc")
	return c.selectTips(ctx, params)
}

func (c *REST) selectTips(ctx context.Context, params url.Values) ([]Tip, error) {
	var rows []tipRow
	if err := c.selectMany(ctx, "tips", params, &rows); err != nil {
		return nil, err
	}
	tips := make([]Tip, 0, len(rows))
	for _, row := range rows {
		tips = append(tips, row.toTip())
	}
	return tips, nil
}

// CreateTip publishes a tip owned by the authenticated provider.
func (c *REST) CreateTip(ctx context.Context, tip Tip) error {
	return c.insert(ctx, "tips", tipInsert{
		ProviderID: tip.ProviderID,
		Sport:      tip.Sport,
		League:     tip.League,
		Event:      tip.Event,
		Market:     tip.Market,
		Selection:  tip.Selection,
		Odds:       tip.Odds,
		Stake:      tip.Stake,
		Confidence: tip.Confidence,
		Type:       tip.Type,
		Status:     tip.Status,
	})
}

// ApplicationByUser fetches the user's provider application, or (nil, nil)
// when the user never applied.
func (c *REST) ApplicationByUser(ctx context.Context, userID string) (*Application, error) {
	params := url.Values{}
	params.Set("select", "*")
	params.Set("user_id", "eq."+userID)
	var row applicationRow
	found, err := c.selectSingle(ctx, "provider_applications", params, &row)
	if err != nil || !found {
		return nil, err
	}
	return &Application{ID: row.ID, UserID: row.UserID, Bio: row.Bio, Status: row.Status}, nil
}

// CreateApplication submits a pending provider application.
func (c *REST) CreateApplication(ctx context.Context, userID, bio string) error {
	return c.insert(ctx, "provider_applications", applicationRow{
		UserID: userID,
		Bio:    bio,
		Status: ApplicationPending,
	})
}

// WalletBalance reads the user's wallet row, zero when none exists yet.
func (c *REST) WalletBalance(ctx context.Context, userID string) (float64, error) {
	params := url.Values{}
	params.Set("select", "balance")
	params.Set("user_id", "eq."+userID)
	var row struct {
		Balance float64 `json:"balance"`
	}
	found, err := c.selectSingle(ctx, "wallets", params, &row)
	if err != nil || !found {
		return 0, err
	}
	return row.Balance, nil
}

// DepositFunds invokes the server-side deposit procedure.
func (c *REST) DepositFunds(ctx context.Context, amount float64) error {
	body, err := json.Marshal(map[string]float64{"amount": amount})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/rpc/deposit_funds", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	status, respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if status >= 400 {
		return tableError("deposit_funds", status, respBody)
	}
	return nil
}

// row shapes and their single mapping sites

type profileRow struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

func (r profileRow) toProfile() Profile {
	return Profile{
		ID:             r.ID,
		DisplayName:    r.DisplayName,
		AvatarURL:      r.AvatarURL,
		Specialization: r.Specialization,
	}
}

type capabilitiesRow struct {
	UserID             string `json:"user_id"`
	CanPublish         bool   `json:"can_publish"`
	CanSell            bool   `json:"can_sell"`
	CanReceivePayments bool   `json:"can_receive_payments"`
}

type applicationRow struct {
	ID     string `json:"id,omitempty"`
	UserID string `json:"user_id"`
	Bio    string `json:"bio"`
	Status string `json:"status"`
}

type tipRow struct {
	ID         string      `json:"id"`
	ProviderID string      `json:"provider_id"`
	Sport      string      `json:"sport"`
	League     string      `json:"league"`
	Event      string      `json:"event"`
	Market     string      `json:"market"`
	Selection  string      `json:"selection"`
	Odds       float64     `json:"odds"`
	Stake      int         `json:"stake"`
	Confidence int         `json:"confidence"`
	Type       string      `json:"type"`
	Status     string      `json:"status"`
	Result     string      `json:"result"`
	CreatedAt  time.Time   `json:"created_at"`
	Provider   *profileRow `json:"provider"`
}

func (r tipRow) toTip() Tip {
	tip := Tip{
		ID:         r.ID,
		ProviderID: r.ProviderID,
		Sport:      r.Sport,
		League:     r.League,
		Event:      r.Event,
		Market:     r.Market,
		Selection:  r.Selection,
		Odds:       r.Odds,
		Stake:      r.Stake,
		Confidence: r.Confidence,
		Type:       r.Type,
		Status:     r.Status,
		Result:     r.Result,
		CreatedAt:  r.CreatedAt,
	}
	if r.Provider != nil {
		p := r.Provider.toProfile()
		tip.Provider = &p
	}
	return tip
}

type tipInsert struct {
	ProviderID string  `json:"provider_id"`
	Sport      string  `json:"sport"`
	League     string  `json:"league"`
	Event      string  `json:"event"`
	Market     string  `json:"market"`
	Selection  string  `json:"selection"`
	Odds       float64 `json:"odds"`
	Stake      int     `json:"stake"`
	Confidence int     `json:"confidence"`
	Type       string  `json:"type"`
	Status     string  `json:"status"`
}

// auth plumbing

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"user"`
}

func (a authResponse) token() Token {
	return Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(a.ExpiresIn) * time.Second),
		UserID:       a.User.ID,
		Email:        a.User.Email,
	}
}

func (a authResponse) identity() *Identity {
	return &Identity{ID: a.User.ID, Email: a.User.Email, CreatedAt: a.User.CreatedAt}
}

func (c *REST) authRequest(ctx context.Context, path string, payload any) (*authResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	status, respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, &NetworkError{Op: path, Err: fmt.Errorf("status %d", status)}
	}
	if status >= 400 {
		return nil, &AuthError{Reason: errorMessage(respBody, status)}
	}

	var auth authResponse
	if err := json.Unmarshal(respBody, &auth); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	return &auth, nil
}

func (c *REST) exchangeRefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	auth, err := c.authRequest(ctx, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}
	tok := auth.token()
	return &tok, nil
}

func (c *REST) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return ""
	}
	return c.token.AccessToken
}

func (c *REST) setToken(tok Token) {
	c.mu.Lock()
	c.token = &tok
	c.scheduleRefreshLocked(tok)
	c.mu.Unlock()

	if err := c.store.Save(tok); err != nil {
		c.log.Warn("persist session token", "error", err)
	}
}

func (c *REST) dropToken() {
	c.mu.Lock()
	c.token = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		c.log.Warn("clear session token", "error", err)
	}
}

func (c *REST) scheduleRefreshLocked(tok Token) {
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	delay := time.Duration(refreshFraction * float64(time.Until(tok.ExpiresAt)))
	if delay < time.Second {
		delay = time.Second
	}
	c.timer = time.AfterFunc(delay, c.refreshNow)
}

// refreshNow runs on the timer goroutine. A successful rotation notifies
// subscribers with the identity; a rejected refresh token ends the session
// and notifies nil. Transport failures retry.
func (c *REST) refreshNow() {
	c.mu.Lock()
	if c.closed || c.token == nil {
		c.mu.Unlock()
		return
	}
	refreshToken := c.token.RefreshToken
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tok, err := c.exchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		if isNetwork(err) {
			c.log.Warn("session refresh failed, retrying", "error", err)
			c.mu.Lock()
			if !c.closed && c.token != nil {
				if c.timer != nil {
					c.timer.Stop()
				}
				c.timer = time.AfterFunc(retryRefreshAfter, c.refreshNow)
			}
			c.mu.Unlock()
			return
		}
		c.log.Warn("session refresh rejected, signing out", "error", err)
		c.dropToken()
		c.notify(nil)
		return
	}

	c.setToken(*tok)
	c.notify(&Identity{ID: tok.UserID, Email: tok.Email})
}

// table plumbing

func (c *REST) selectSingle(ctx context.Context, table string, params url.Values, out any) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/v1/"+table+"?"+params.Encode(), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", pgrstSingleAccept)

	status, body, err := c.do(req)
	if err != nil {
		return false, err
	}
	// PostgREST reports a single-object request with no matching row as
	// 406; treat it as a valid absence.
	if status == http.StatusNotAcceptable || status == http.StatusNotFound {
		return false, nil
	}
	if status >= 400 {
		return false, tableError(table, status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("decode %s row: %w", table, err)
	}
	return true, nil
}

func (c *REST) selectMany(ctx context.Context, table string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/v1/"+table+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	status, body, err := c.do(req)
	if err != nil {
		return err
	}
	if status >= 400 {
		return tableError(table, status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s rows: %w", table, err)
	}
	return nil
}

func (c *REST) insert(ctx context.Context, table string, row any) error {
	body, err := json.Marshal([]any{row})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/"+table, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	status, respBody, err := c.do(req)
	if err != nil {
		return err
	}
	if status >= 400 {
		return tableError(table, status, respBody)
	}
	return nil
}

func (c *REST) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	if bearer := c.bearer(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *REST) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Op: req.URL.Path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NetworkError{Op: req.URL.Path, Err: err}
	}
	return resp.StatusCode, body, nil
}

func tableError(op string, status int, body []byte) error {
	msg := errorMessage(body, status)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthzError{Reason: msg}
	case status >= 500:
		return &NetworkError{Op: op, Err: fmt.Errorf("status %d: %s", status, msg)}
	default:
		return &ValidationError{Reason: msg}
	}
}

func errorMessage(body []byte, status int) string {
	var payload struct {
		Message     string `json:"message"`
		Msg         string `json:"msg"`
		Description string `json:"error_description"`
		Err         string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.Message, payload.Msg, payload.Description, payload.Err} {
			if s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("status %d", status)
}

func isNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

var _ Client = (*REST)(nil)

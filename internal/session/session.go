// Package session holds the process-wide answer to "who is the current user
// and what may they do". It is the only stateful component on the client:
// every screen reads its snapshot and issues its own backend fetches.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/tipster-app/tipster/internal/backend"
)

// Phase names the session lifecycle state.
type Phase int

const (
	// Uninitialized means boot has not yet attempted a resume.
	Uninitialized Phase = iota
	// LoggedOut means no identity is held.
	LoggedOut
	// LoggingIn is the transient state inside Login and Register.
	LoggingIn
	// LoggedIn means an identity is held; profile and capabilities may
	// still be nil when their fetch failed.
	LoggedIn
)

func (p Phase) String() string {
	switch p {
	case LoggedOut:
		return "logged_out"
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	default:
		return "uninitialized"
	}
}

// State is an immutable snapshot of the session. A nil Identity implies nil
// Profile and nil Capabilities.
type State struct {
	Phase        Phase
	Identity     *backend.Identity
	Profile      *backend.Profile
	Capabilities *backend.Capabilities
}

// Context is the single-instance session component. All writes to the
// shared state go through one mutex, so an auth-change notification landing
// during a boot resume cannot interleave a half-applied state.
type Context struct {
	backend backend.Client
	log     *slog.Logger

	mu    sync.Mutex
	state State
	sub   backend.Subscription
}

// New constructs the session context and subscribes it, for its whole
// lifetime, to the backend's session-change stream. Call Close at teardown
// to release the subscription.
func New(b backend.Client, logger *slog.Logger) (*Context, error) {
	c := &Context{
		backend: b,
		log:     logger,
		state:   State{Phase: Uninitialized},
	}
	sub, err := b.SessionChanges(c.applySessionChange)
	if err != nil {
		return nil, fmt.Errorf("subscribe session changes: %w", err)
	}
	c.sub = sub
	return c, nil
}

// Close releases the session-change subscription.
func (c *Context) Close() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Context) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// applySessionChange is the notification handler. It reconciles the
// identity only; profile and capabilities are deliberately left as they
// are on a token refresh (a remote sign-out clears everything). Refreshing
// them here would re-fetch on every rotation; whether long-lived sessions
// should re-derive authorization data is an open call, so the cheap
// behavior is kept as-is.
func (c *Context) applySessionChange(id *backend.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == nil {
		c.state = State{Phase: LoggedOut}
		return
	}
	c.state.Identity = id
	c.state.Phase = LoggedIn
}

// CurrentUser resumes the persisted session and derives profile and
// capabilities. Either derived fetch failing is non-fatal: the field stays
// nil and the call still succeeds. The shared state is published exactly
// once per call.
func (c *Context) CurrentUser(ctx context.Context) error {
	id, err := c.backend.ResumeSession(ctx)
	if err != nil {
		c.log.Warn("resume session", "error", err)
		c.setState(State{Phase: LoggedOut})
		return nil
	}
	if id == nil {
		c.setState(State{Phase: LoggedOut})
		return nil
	}

	next := State{Phase: LoggedIn, Identity: id}

	profile, err := c.backend.ProfileByID(ctx, id.ID)
	if err != nil {
		c.log.Warn("fetch profile", "user_id", id.ID, "error", err)
	} else {
		next.Profile = profile
	}

	caps, err := c.backend.CapabilitiesByID(ctx, id.ID)
	if err != nil {
		c.log.Warn("fetch capabilities", "user_id", id.ID, "error", err)
	} else {
		next.Capabilities = caps
	}

	c.setState(next)
	return nil
}

// Login authenticates and populates the session. On success the state is
// LoggedIn with a non-nil identity; profile or capabilities may be nil when
// their fetch failed. On rejection the state is LoggedOut and the error is
// returned to the caller.
func (c *Context) Login(ctx context.Context, email, password string) error {
	c.setState(State{Phase: LoggingIn})

	if _, err := c.backend.SignIn(ctx, email, password); err != nil {
		c.setState(State{Phase: LoggedOut})
		return err
	}
	return c.CurrentUser(ctx)
}

// Register creates the account, best-effort inserts the profile row and
// concludes by logging in. A profile-insert failure is logged and
// swallowed: the account exists either way, and a server-side provisioning
// trigger surfaces here as a duplicate-row insert error.
func (c *Context) Register(ctx context.Context, email, password, displayName string) error {
	c.setState(State{Phase: LoggingIn})

	id, err := c.backend.SignUp(ctx, email, password, displayName)
	if err != nil {
		c.setState(State{Phase: LoggedOut})
		return err
	}

	if err := c.backend.CreateProfile(ctx, backend.Profile{
		ID:          id.ID,
		DisplayName: displayName,
		AvatarURL:   DefaultAvatarURL(displayName),
	}); err != nil {
		c.log.Warn("create profile", "user_id", id.ID, "error", err)
	}

	return c.Login(ctx, email, password)
}

// Logout revokes the session remotely and resets the local state. The
// local reset is unconditional; a failed remote revocation is logged and
// swallowed.
func (c *Context) Logout(ctx context.Context) error {
	if err := c.backend.SignOut(ctx); err != nil {
		c.log.Warn("remote sign out", "error", err)
	}
	c.setState(State{Phase: LoggedOut})
	return nil
}

// DefaultAvatarURL builds the placeholder avatar used when a user has not
// uploaded one.
func DefaultAvatarURL(displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "User"
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name)
}

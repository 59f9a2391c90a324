// Package backend defines the contract consumed by the session context and
// the screens, together with the hosted REST implementation and an
// in-process memory implementation. All response-shape adaptation happens
// here, at the collaborator boundary; callers only ever see the structs in
// model.go.
package backend

import "context"

// Subscription is a releasable handle to a session-change stream.
type Subscription interface {
	Unsubscribe()
}

// Client is the backend collaborator surface. Absence of a row is reported
// as (nil, nil) on the pointer-returning reads; it is a valid outcome, not
// an error.
type Client interface {
	// ResumeSession restores a persisted session. (nil, nil) means no
	// active session.
	ResumeSession(ctx context.Context) (*Identity, error)
	// SignIn authenticates with an email and password. Rejected
	// credentials yield an *AuthError.
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	// SignUp creates an account. Duplicate email or a policy violation
	// yields an *AuthError.
	SignUp(ctx context.Context, email, password, displayName string) (*Identity, error)
	// SignOut revokes the active session remotely. Callers treat a
	// failure as non-fatal.
	SignOut(ctx context.Context) error
	// SessionChanges registers fn to receive the identity on every
	// session change, or nil when the session ends. fn may be invoked
	// from another goroutine.
	SessionChanges(fn func(*Identity)) (Subscription, error)

	ProfileByID(ctx context.Context, id string) (*Profile, error)
	CreateProfile(ctx context.Context, profile Profile) error
	CapabilitiesByID(ctx context.Context, id string) (*Capabilities, error)

	// ListTips returns the marketplace feed, newest first.
	ListTips(ctx context.Context) ([]Tip, error)
	TipsByProvider(ctx context.Context, providerID string) ([]Tip, error)
	CreateTip(ctx context.Context, tip Tip) error

	ApplicationByUser(ctx context.Context, userID string) (*Application, error)
	CreateApplication(ctx context.Context, userID, bio string) error

	WalletBalance(ctx context.Context, userID string) (float64, error)
	// DepositFunds invokes the server-side deposit procedure for the
	// authenticated user. Amounts below the server minimum yield a
	// *ValidationError.
	DepositFunds(ctx context.Context, amount float64) error
}

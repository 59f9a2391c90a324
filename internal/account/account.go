// Package account holds the login and registration screen logic: local form
// validation first, then a single session operation, with the submitting
// flag always reset on exit.
package account

import (
	"context"
	"strings"
	"sync"

	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/session"
)

// LoginForm is the login screen's local form state.
type LoginForm struct {
	Email    string
	Password string
}

// RegisterForm is the registration screen's local form state.
type RegisterForm struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// Screen drives both auth forms against the session context.
type Screen struct {
	session *session.Context

	mu         sync.Mutex
	submitting bool
}

// NewScreen builds the auth screen view-model.
func NewScreen(sess *session.Context) *Screen {
	return &Screen{session: sess}
}

// Submitting reports whether a submission is in flight, for disabling the
// submit affordance.
func (s *Screen) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

func (s *Screen) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return false
	}
	s.submitting = true
	return true
}

func (s *Screen) end() {
	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()
}

// Login validates the form locally and logs in. Empty fields never reach
// the backend.
func (s *Screen) Login(ctx context.Context, form LoginForm) error {
	if form.Email == "" || form.Password == "" {
		return &backend.ValidationError{Reason: "please fill in all fields"}
	}
	if !s.begin() {
		return &backend.ValidationError{Reason: "submission already in progress"}
	}
	defer s.end()

	return s.session.Login(ctx, form.Email, form.Password)
}

// Register validates the form locally and registers. A password mismatch or
// empty fields never reach the backend. The display name defaults to the
// email local part.
func (s *Screen) Register(ctx context.Context, form RegisterForm) error {
	if form.Email == "" || form.Password == "" {
		return &backend.ValidationError{Reason: "please fill in all fields"}
	}
	if form.Password != form.ConfirmPassword {
		return &backend.ValidationError{Field: "confirm_password", Reason: "passwords do not match"}
	}
	if !s.begin() {
		return &backend.ValidationError{Reason: "submission already in progress"}
	}
	defer s.end()

	return s.session.Register(ctx, form.Email, form.Password, displayNameFor(form.Email))
}

func displayNameFor(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

// Package provider holds the verification-application screen and the
// provider-detail screen.
package provider

import (
	"context"
	"sync"

	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/session"
)

// MinBioLength is the shortest acceptable application bio.
const MinBioLength = 20

// ApplyScreen drives the apply-for-verification flow.
type ApplyScreen struct {
	backend backend.Client
	session *session.Context

	mu         sync.Mutex
	submitting bool
}

// NewApplyScreen builds the application view-model.
func NewApplyScreen(b backend.Client, sess *session.Context) *ApplyScreen {
	return &ApplyScreen{backend: b, session: sess}
}

// Submitting reports whether an application is in flight.
func (s *ApplyScreen) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Status reads the current user's application, nil when none was ever
// submitted. The profile screen uses it to gate the apply call-to-action.
func (s *ApplyScreen) Status(ctx context.Context) (*backend.Application, error) {
	snap := s.session.Snapshot()
	if snap.Identity == nil {
		return nil, &backend.AuthError{Reason: "you must be logged in"}
	}
	return s.backend.ApplicationByUser(ctx, snap.Identity.ID)
}

// Apply validates the bio locally and issues one PENDING write. A bio
// shorter than MinBioLength never reaches the backend.
func (s *ApplyScreen) Apply(ctx context.Context, bio string) error {
	snap := s.session.Snapshot()
	if snap.Identity == nil {
		return &backend.AuthError{Reason: "you must be logged in"}
	}
	if len(bio) < MinBioLength {
		return &backend.ValidationError{Field: "bio", Reason: "too short: please tell us more about yourself"}
	}

	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return &backend.ValidationError{Reason: "submission already in progress"}
	}
	s.submitting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	return s.backend.CreateApplication(ctx, snap.Identity.ID, bio)
}

// DetailView is the provider-detail screen's render input.
type DetailView struct {
	Profile *backend.Profile
	Tips    []backend.Tip
}

// DetailScreen shows one provider's profile and their published tips.
type DetailScreen struct {
	backend backend.Client
}

// NewDetailScreen builds the provider-detail view-model.
func NewDetailScreen(b backend.Client) *DetailScreen {
	return &DetailScreen{backend: b}
}

// Load fetches the provider's profile and tips, newest first. An absent
// profile yields a view with a nil Profile, not an error.
func (s *DetailScreen) Load(ctx context.Context, providerID string) (DetailView, error) {
	profile, err := s.backend.ProfileByID(ctx, providerID)
	if err != nil {
		return DetailView{}, err
	}
	tips, err := s.backend.TipsByProvider(ctx, providerID)
	if err != nil {
		return DetailView{}, err
	}
	return DetailView{Profile: profile, Tips: tips}, nil
}

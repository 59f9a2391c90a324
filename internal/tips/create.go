// Package tips holds the tip publication screen: form validation and the
// capability gate run locally, then a single insert round trip.
package tips

import (
	"context"
	"strconv"
	"sync"

	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/session"
)

// CreateForm mirrors the two-step publish form. Odds and stake arrive as
// the raw text field values.
type CreateForm struct {
	Sport      string
	League     string
	Event      string
	Market     string
	Selection  string
	Odds       string
	Stake      string
	Confidence int
	Type       string
}

// CreateScreen is the publish view-model.
type CreateScreen struct {
	backend backend.Client
	session *session.Context

	mu         sync.Mutex
	submitting bool
}

// NewCreateScreen builds the publish view-model.
func NewCreateScreen(b backend.Client, sess *session.Context) *CreateScreen {
	return &CreateScreen{backend: b, session: sess}
}

// Submitting reports whether a publish is in flight.
func (s *CreateScreen) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Submit gates on session state and the publish capability, validates the
// form, and issues exactly one insert. Nothing reaches the backend when a
// local check fails.
func (s *CreateScreen) Submit(ctx context.Context, form CreateForm) error {
	snap := s.session.Snapshot()
	if snap.Identity == nil || snap.Profile == nil {
		return &backend.AuthError{Reason: "you must be logged in"}
	}
	if snap.Capabilities == nil || !snap.Capabilities.CanPublish {
		return &backend.AuthzError{Reason: "you must be a verified tipster to publish tips"}
	}

	tip, err := buildTip(snap.Identity.ID, form)
	if err != nil {
		return err
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

	return s.backend.CreateTip(ctx, tip)
}

func buildTip(providerID string, form CreateForm) (backend.Tip, error) {
	if form.Selection == "" {
		return backend.Tip{}, &backend.ValidationError{Field: "selection", Reason: "please select an outcome"}
	}

	odds, err := strconv.ParseFloat(form.Odds, 64)
	if err != nil || odds <= 0 {
		return backend.Tip{}, &backend.ValidationError{Field: "odds", Reason: "odds must be a positive number"}
	}
	stake, err := strconv.Atoi(form.Stake)
	if err != nil || stake <= 0 {
		return backend.Tip{}, &backend.ValidationError{Field: "stake", Reason: "stake must be a positive unit count"}
	}
	if form.Confidence < 1 || form.Confidence > 10 {
		return backend.Tip{}, &backend.ValidationError{Field: "confidence", Reason: "confidence must be between 1 and 10"}
	}
	if form.Type != backend.TipFree && form.Type != backend.TipPaid {
		return backend.Tip{}, &backend.ValidationError{Field: "type", Reason: "type must be FREE or PAID"}
	}

	return backend.Tip{
		ProviderID: providerID,
		Sport:      form.Sport,
		League:     form.League,
		Event:      form.Event,
		Market:     form.Market,
		Selection:  form.Selection,
		Odds:       odds,
		Stake:      stake,
		Confidence: form.Confidence,
		Type:       form.Type,
		Status:     backend.TipPending,
	}, nil
}

// Package feed renders the marketplace home screen: one read on mount,
// mapped into view rows, with explicit empty and error states.
package feed

import (
	"context"

	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/session"
)

// ViewState names the screen's render state.
type ViewState int

const (
	Loading ViewState = iota
	Empty
	Populated
	Failed
)

// ProviderView is the tip card's provider strip.
type ProviderView struct {
	ID             string
	DisplayName    string
	Avatar         string
	Specialization string
}

// TipView is one row of the feed.
type TipView struct {
	ID         string
	Sport      string
	League     string
	Event      string
	Odds       float64
	Stake      int
	Type       string
	Status     string
	Result     string
	Provider   ProviderView
}

// View is the screen's complete render input.
type View struct {
	State ViewState
	Tips  []TipView
	Err   error
}

// Screen is the feed view-model. It holds no state between loads.
type Screen struct {
	backend backend.Client
}

// NewScreen builds the feed view-model.
func NewScreen(b backend.Client) *Screen {
	return &Screen{backend: b}
}

// Load fetches the feed. Zero rows is the Empty state, not an error.
func (s *Screen) Load(ctx context.Context) View {
	tips, err := s.backend.ListTips(ctx)
	if err != nil {
		return View{State: Failed, Err: err}
	}
	if len(tips) == 0 {
		return View{State: Empty}
	}

	rows := make([]TipView, 0, len(tips))
	for _, t := range tips {
		rows = append(rows, mapTip(t))
	}
	return View{State: Populated, Tips: rows}
}

// mapTip is the one adaptation site between backend tip rows and feed rows.
// A missing joined provider renders as "Unknown" with a placeholder avatar.
func mapTip(t backend.Tip) TipView {
	view := TipView{
		ID:     t.ID,
		Sport:  t.Sport,
		League: t.League,
		Event:  t.Event,
		Odds:   t.Odds,
		Stake:  t.Stake,
		Type:   t.Type,
		Status: t.Status,
		Result: t.Result,
		Provider: ProviderView{
			ID:          t.ProviderID,
			DisplayName: "Unknown",
			Avatar:      session.DefaultAvatarURL(""),
		},
	}
	if t.Provider != nil {
		view.Provider.ID = t.Provider.ID
		view.Provider.Specialization = t.Provider.Specialization
		if t.Provider.DisplayName != "" {
			view.Provider.DisplayName = t.Provider.DisplayName
		}
		if t.Provider.AvatarURL != "" {
			view.Provider.Avatar = t.Provider.AvatarURL
		}
	}
	return view
}

package backend

import (
	"time"

	"github.com/google/uuid"
)

// NewDemoMemory builds an in-memory backend pre-seeded with a couple of
// providers and tips, so the client has something to render when run
// without a hosted backend.
func NewDemoMemory() *Memory {
	m := NewMemory()

	proTips := m.seedDemoProvider("protips@example.com", "ProTips Daily", "Football, Tennis")
	courtKing := m.seedDemoProvider("courtking@example.com", "Court King", "Basketball")

	now := time.Now().UTC()
	m.tips = []Tip{
		{
			ID: uuid.NewString(), ProviderID: proTips,
			Sport: "Football", League: "Premier League", Event: "Arsenal vs Liverpool",
			Market: "Match Winner (1x2)", Selection: "Arsenal",
			Odds: 2.45, Stake: 50, Confidence: 7,
			Type: TipFree, Status: TipPending, CreatedAt: now,
		},
		{
			ID: uuid.NewString(), ProviderID: courtKing,
			Sport: "Basketball", League: "NBA", Event: "Lakers vs Warriors",
			Market: "Handicap", Selection: "Lakers +5.5",
			Odds: 1.90, Stake: 100, Confidence: 8,
			Type: TipPaid, Status: TipWin, Result: "Lakers +5.5",
			CreatedAt: now.Add(-24 * time.Hour),
		},
		{
			ID: uuid.NewString(), ProviderID: proTips,
			Sport: "Tennis", League: "Wimbledon", Event: "Alcaraz vs Djokovic",
			Market: "Match Winner", Selection: "Alcaraz",
			Odds: 1.85, Stake: 75, Confidence: 6,
			Type: TipPaid, Status: TipPending, CreatedAt: now,
		},
	}
	return m
}

func (m *Memory) seedDemoProvider(email, displayName, specialization string) string {
	id := SeedUser(m, email, "demo-password", displayName)
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[id.ID]
	p.Specialization = specialization
	m.profiles[id.ID] = p
	m.capabilities[id.ID] = Capabilities{CanPublish: true, CanSell: true, CanReceivePayments: true}
	return id.ID
}

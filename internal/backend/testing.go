package backend

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SeedUser is a test helper that provisions an account with a profile and
// returns its identity.
func SeedUser(m *Memory, email, password, displayName string) Identity {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	id := Identity{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[strings.ToLower(email)] = account{identity: id, passwordHash: hash, displayName: displayName}
	m.profiles[id.ID] = Profile{ID: id.ID, DisplayName: displayName}
	m.capabilities[id.ID] = Capabilities{}
	m.wallets[id.ID] = 0
	return id
}

// SeedSession is a test helper that marks the user as the active persisted
// session, as if a token file survived a restart.
func SeedSession(m *Memory, id Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &id
}

// GrantPublish is a test helper that flips the publish capability for a
// user, standing in for a server-side application approval.
func GrantPublish(m *Memory, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	caps := m.capabilities[userID]
	caps.CanPublish = true
	m.capabilities[userID] = caps
}

// SeedTip is a test helper that appends a tip owned by the given provider.
func SeedTip(m *Memory, providerID string, tip Tip) Tip {
	m.mu.Lock()
	defer m.mu.Unlock()
	tip.ID = uuid.NewString()
	tip.ProviderID = providerID
	if tip.CreatedAt.IsZero() {
		tip.CreatedAt = time.Now().UTC()
	}
	m.tips = append(m.tips, tip)
	return tip
}

// SeedBalance is a test helper that sets a wallet balance directly.
func SeedBalance(m *Memory, userID string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[userID] = amount
}

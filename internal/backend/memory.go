package backend

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minDepositAmount = 10

type account struct {
	identity     Identity
	passwordHash []byte
	displayName  string
}

// Memory is an in-process backend holding all state in maps. It powers unit
// tests and the client's offline development mode, and enforces the same
// failure taxonomy the hosted service does.
type Memory struct {
	mu           sync.RWMutex
	accounts     map[string]account // keyed by lowercased email
	profiles     map[string]Profile
	capabilities map[string]Capabilities
	applications map[string]Application // keyed by user id
	wallets      map[string]float64
	tips         []Tip
	current      *Identity
	subscribers  map[int]func(*Identity)
	nextSub      int
	calls        map[string]int
}

// NewMemory builds an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[string]account),
		profiles:     make(map[string]Profile),
		capabilities: make(map[string]Capabilities),
		applications: make(map[string]Application),
		wallets:      make(map[string]float64),
		subscribers:  make(map[int]func(*Identity)),
		calls:        make(map[string]int),
	}
}

// Calls reports how many times the named operation has been invoked.
func (m *Memory) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

func (m *Memory) record(op string) {
	m.calls[op]++
}

func (m *Memory) notify(id *Identity) {
	m.mu.RLock()
	fns := make([]func(*Identity), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(cloneIdentity(id))
	}
}

func cloneIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	clone := *id
	return &clone
}

// ResumeSession returns the identity of the signed-in user, or (nil, nil)
// when no session is active.
func (m *Memory) ResumeSession(_ context.Context) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ResumeSession")
	return cloneIdentity(m.current), nil
}

// SignIn verifies the password and activates a session.
func (m *Memory) SignIn(_ context.Context, email, password string) (*Identity, error) {
	m.mu.Lock()
	m.record("SignIn")
	acct, ok := m.accounts[strings.ToLower(email)]
	if !ok {
		m.mu.Unlock()
		return nil, &AuthError{Reason: "invalid login credentials"}
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		m.mu.Unlock()
		return nil, &AuthError{Reason: "invalid login credentials"}
	}
	id := acct.identity
	m.current = &id
	m.mu.Unlock()

	m.notify(&id)
	return cloneIdentity(&id), nil
}

// SignUp provisions an account, an all-false capabilities row and a zero
// wallet, mirroring the hosted signup trigger. It does not activate a
// session; callers log in afterwards.
func (m *Memory) SignUp(_ context.Context, email, password, displayName string) (*Identity, error) {
	if len(password) < 6 {
		return nil, &AuthError{Reason: "password should be at least 6 characters"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SignUp")

	key := strings.ToLower(email)
	if _, exists := m.accounts[key]; exists {
		return nil, &AuthError{Reason: "user already registered"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	id := Identity{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	m.accounts[key] = account{identity: id, passwordHash: hash, displayName: displayName}
	m.capabilities[id.ID] = Capabilities{}
	m.wallets[id.ID] = 0
	return cloneIdentity(&id), nil
}

// SignOut drops the active session and notifies subscribers.
func (m *Memory) SignOut(_ context.Context) error {
	m.mu.Lock()
	m.record("SignOut")
	m.current = nil
	m.mu.Unlock()

	m.notify(nil)
	return nil
}

type memorySubscription struct {
	m  *Memory
	id int
}

func (s *memorySubscription) Unsubscribe() {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.subscribers, s.id)
}

// SessionChanges registers fn for session-change notifications.
func (m *Memory) SessionChanges(fn func(*Identity)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	m.subscribers[m.nextSub] = fn
	return &memorySubscription{m: m, id: m.nextSub}, nil
}

// ProfileByID returns the stored profile, or (nil, nil) when absent.
func (m *Memory) ProfileByID(_ context.Context, id string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ProfileByID")
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// CreateProfile inserts a profile row, one per identity.
func (m *Memory) CreateProfile(_ context.Context, profile Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateProfile")
	if _, exists := m.profiles[profile.ID]; exists {
		return &ValidationError{Field: "id", Reason: "profile already exists"}
	}
	m.profiles[profile.ID] = profile
	return nil
}

// CapabilitiesByID returns the capability flags, or (nil, nil) when no row
// exists.
func (m *Memory) CapabilitiesByID(_ context.Context, id string) (*Capabilities, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CapabilitiesByID")
	caps, ok := m.capabilities[id]
	if !ok {
		return nil, nil
	}
	return &caps, nil
}

// ListTips returns every tip, newest first, with the owning profile joined
// when one exists.
func (m *Memory) ListTips(_ context.Context) ([]Tip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListTips")
	return m.snapshotTips(""), nil
}

// TipsByProvider returns one provider's tips, newest first.
func (m *Memory) TipsByProvider(_ context.Context, providerID string) ([]Tip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("TipsByProvider")
	return m.snapshotTips(providerID), nil
}

func (m *Memory) snapshotTips(providerID string) []Tip {
	out := make([]Tip, 0, len(m.tips))
	for _, t := range m.tips {
		if providerID != "" && t.ProviderID != providerID {
			continue
		}
		if p, ok := m.profiles[t.ProviderID]; ok {
			t.Provider = &p
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CreateTip stores a tip after the row-level publish check, mirroring the
// hosted table policy.
func (m *Memory) CreateTip(_ context.Context, tip Tip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateTip")
	if m.current == nil {
		return &AuthzError{Reason: "no active session"}
	}
	caps := m.capabilities[m.current.ID]
	if !caps.CanPublish {
		return &AuthzError{Reason: "publishing requires verified provider status"}
	}
	tip.ID = uuid.NewString()
	tip.ProviderID = m.current.ID
	if tip.CreatedAt.IsZero() {
		tip.CreatedAt = time.Now().UTC()
	}
	tip.Provider = nil
	m.tips = append(m.tips, tip)
	return nil
}

// ApplicationByUser returns the user's provider application, or (nil, nil)
// when the user never applied.
func (m *Memory) ApplicationByUser(_ context.Context, userID string) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ApplicationByUser")
	app, ok := m.applications[userID]
	if !ok {
		return nil, nil
	}
	return &app, nil
}

// CreateApplication stores a pending application for the user.
func (m *Memory) CreateApplication(_ context.Context, userID, bio string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateApplication")
	if _, exists := m.applications[userID]; exists {
		return &ValidationError{Field: "user_id", Reason: "application already submitted"}
	}
	m.applications[userID] = Application{
		ID:     uuid.NewString(),
		UserID: userID,
		Bio:    bio,
		Status: ApplicationPending,
	}
	return nil
}

// WalletBalance returns the balance for the user, zero when no wallet row
// exists yet.
func (m *Memory) WalletBalance(_ context.Context, userID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("WalletBalance")
	return m.wallets[userID], nil
}

// DepositFunds mirrors the server-side deposit procedure, including its
// minimum-amount check.
func (m *Memory) DepositFunds(_ context.Context, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DepositFunds")
	if m.current == nil {
		return &AuthzError{Reason: "no active session"}
	}
	if amount < minDepositAmount {
		return &ValidationError{Field: "amount", Reason: "below minimum deposit"}
	}
	m.wallets[m.current.ID] += amount
	return nil
}

var _ Client = (*Memory)(nil)

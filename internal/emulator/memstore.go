package emulator

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryStore struct {
	mu           sync.RWMutex
	accounts     map[string]Account // keyed by id
	emails       map[string]string  // lowercased email -> id
	profiles     map[string]ProfileRow
	capabilities map[string]CapabilityRow
	tips         []TipRow
	applications map[string]ApplicationRow // keyed by id
	byApplicant  map[string]string         // user id -> application id
	wallets      map[string]float64
}

// NewMemoryStore builds an in-memory table store, the default when no
// database is configured.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts:     make(map[string]Account),
		emails:       make(map[string]string),
		profiles:     make(map[string]ProfileRow),
		capabilities: make(map[string]CapabilityRow),
		applications: make(map[string]ApplicationRow),
		byApplicant:  make(map[string]string),
		wallets:      make(map[string]float64),
	}
}

func (s *memoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(account.Email)
	if _, exists := s.emails[key]; exists {
		return ErrDuplicate
	}
	s.accounts[account.ID] = account
	s.emails[key] = account.ID
	return nil
}

func (s *memoryStore) AccountByEmail(_ context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *memoryStore) AccountByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account, nil
}

func (s *memoryStore) InsertProfile(_ context.Context, profile ProfileRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[profile.ID]; exists {
		return ErrDuplicate
	}
	s.profiles[profile.ID] = profile
	return nil
}

func (s *memoryStore) ProfileByID(_ context.Context, id string) (ProfileRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[id]
	if !ok {
		return ProfileRow{}, ErrNotFound
	}
	return profile, nil
}

func (s *memoryStore) UpsertCapabilities(_ context.Context, row CapabilityRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities[row.UserID] = row
	return nil
}

func (s *memoryStore) CapabilitiesByUser(_ context.Context, userID string) (CapabilityRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.capabilities[userID]
	if !ok {
		return CapabilityRow{}, ErrNotFound
	}
	return row, nil
}

func (s *memoryStore) InsertTip(_ context.Context, tip TipRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tip.Provider = nil
	s.tips = append(s.tips, tip)
	return nil
}

func (s *memoryStore) Tips(_ context.Context, providerID string) ([]TipRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TipRow, 0, len(s.tips))
	for _, tip := range s.tips {
		if providerID != "" && tip.ProviderID != providerID {
			continue
		}
		if profile, ok := s.profiles[tip.ProviderID]; ok {
			p := profile
			tip.Provider = &p
		}
		out = append(out, tip)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memoryStore) InsertApplication(_ context.Context, app ApplicationRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byApplicant[app.UserID]; exists {
		return ErrDuplicate
	}
	s.applications[app.ID] = app
	s.byApplicant[app.UserID] = app.ID
	return nil
}

func (s *memoryStore) ApplicationByUser(_ context.Context, userID string) (ApplicationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byApplicant[userID]
	if !ok {
		return ApplicationRow{}, ErrNotFound
	}
	return s.applications[id], nil
}

func (s *memoryStore) ApplicationByID(_ context.Context, id string) (ApplicationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.applications[id]
	if !ok {
		return ApplicationRow{}, ErrNotFound
	}
	return app, nil
}

func (s *memoryStore) SetApplicationStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.applications[id]
	if !ok {
		return ErrNotFound
	}
	app.Status = status
	s.applications[id] = app
	return nil
}

func (s *memoryStore) EnsureWallet(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[userID]; !exists {
		s.wallets[userID] = 0
	}
	return nil
}

func (s *memoryStore) WalletBalance(_ context.Context, userID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	balance, ok := s.wallets[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return balance, nil
}

func (s *memoryStore) AddToWallet(_ context.Context, userID string, amount float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.wallets[userID]
	if !ok {
		return 0, ErrNotFound
	}
	balance += amount
	s.wallets[userID] = balance
	return balance, nil
}

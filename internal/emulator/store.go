// Package emulator is a stand-in for the hosted backend: the auth, table
// and procedure endpoints the client consumes, served locally. It exists
// for development and for exercising the REST client against a real HTTP
// surface; it is not a production backend.
package emulator

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate row")
)

// Account is a credentialed user record.
type Account struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	CreatedAt    time.Time
}

// ProfileRow is the profiles table row, serialized as the wire shape.
type ProfileRow struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// CapabilityRow is the capabilities table row.
type CapabilityRow struct {
	UserID             string `json:"user_id"`
	CanPublish         bool   `json:"can_publish"`
	CanSell            bool   `json:"can_sell"`
	CanReceivePayments bool   `json:"can_receive_payments"`
}

// TipRow is the tips table row, with the provider profile joined on reads.
type TipRow struct {
	ID         string      `json:"id"`
	ProviderID string      `json:"provider_id"`
	Sport      string      `json:"sport"`
	League     string      `json:"league"`
	Event      string      `json:"event"`
	Market     string      `json:"market"`
	Selection  string      `json:"selection"`
	Odds       float64     `json:"odds"`
	Stake      int         `json:"stake"`
	Confidence int         `json:"confidence"`
	Type       string      `json:"type"`
	Status     string      `json:"status"`
	Result     string      `json:"result,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Provider   *ProfileRow `json:"provider,omitempty"`
}

// ApplicationRow is the provider_applications table row.
type ApplicationRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Bio       string    `json:"bio"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// WalletRow is the wallets table row.
type WalletRow struct {
	UserID  string  `json:"user_id"`
	Balance float64 `json:"balance"`
}

// Store persists the emulator's tables.
type Store interface {
	CreateAccount(ctx context.Context, account Account) error
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)

	InsertProfile(ctx context.Context, profile ProfileRow) error
	ProfileByID(ctx context.Context, id string) (ProfileRow, error)

	UpsertCapabilities(ctx context.Context, row CapabilityRow) error
	CapabilitiesByUser(ctx context.Context, userID string) (CapabilityRow, error)

	InsertTip(ctx context.Context, tip TipRow) error
	// Tips returns rows newest first, filtered by provider when
	// providerID is non-empty, with the owning profile joined.
	Tips(ctx context.Context, providerID string) ([]TipRow, error)

	InsertApplication(ctx context.Context, app ApplicationRow) error
	ApplicationByUser(ctx context.Context, userID string) (ApplicationRow, error)
	ApplicationByID(ctx context.Context, id string) (ApplicationRow, error)
	SetApplicationStatus(ctx context.Context, id, status string) error

	EnsureWallet(ctx context.Context, userID string) error
	WalletBalance(ctx context.Context, userID string) (float64, error)
	AddToWallet(ctx context.Context, userID string, amount float64) (float64, error)
}

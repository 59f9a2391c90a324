package emulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL, for a development backend
// whose data should survive restarts.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed table store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the emulator tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash BYTEA NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			display_name TEXT NOT NULL,
			avatar_url TEXT NOT NULL DEFAULT '',
			specialization TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS capabilities (
			user_id UUID PRIMARY KEY,
			can_publish BOOLEAN NOT NULL DEFAULT FALSE,
			can_sell BOOLEAN NOT NULL DEFAULT FALSE,
			can_receive_payments BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS tips (
			id UUID PRIMARY KEY,
			provider_id UUID NOT NULL,
			sport TEXT NOT NULL,
			league TEXT NOT NULL,
			event TEXT NOT NULL,
			market TEXT NOT NULL,
			selection TEXT NOT NULL,
			odds DOUBLE PRECISION NOT NULL,
			stake INTEGER NOT NULL,
			confidence INTEGER NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS provider_applications (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL UNIQUE,
			bio TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id UUID PRIMARY KEY,
			balance NUMERIC(12, 2) NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate emulator schema: %w", err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO accounts (id, email, password_hash, display_name, created_at)
        VALUES ($1, lower($2), $3, $4, $5)`, id, account.Email, account.PasswordHash, account.DisplayName, account.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) AccountByEmail(ctx context.Context, email string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT id, email, password_hash, display_name, created_at
        FROM accounts WHERE email = lower($1)`, email)
	return scanAccount(row)
}

func (s *PostgresStore) AccountByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, email, password_hash, display_name, created_at
        FROM accounts WHERE id = $1`, accountID)
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		account   Account
	)
	if err := row.Scan(&id, &account.Email, &account.PasswordHash, &account.DisplayName, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	account.ID = id.String()
	account.CreatedAt = createdAt.UTC()
	return account, nil
}

func (s *PostgresStore) InsertProfile(ctx context.Context, profile ProfileRow) error {
	id, err := uuid.Parse(profile.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO profiles (id, display_name, avatar_url, specialization)
        VALUES ($1, $2, $3, $4)`, id, profile.DisplayName, profile.AvatarURL, profile.Specialization)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) ProfileByID(ctx context.Context, id string) (ProfileRow, error) {
	profileID, err := uuid.Parse(id)
	if err != nil {
		return ProfileRow{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, display_name, avatar_url, specialization
        FROM profiles WHERE id = $1`, profileID)
	var (
		idVal   uuid.UUID
		profile ProfileRow
	)
	if err := row.Scan(&idVal, &profile.DisplayName, &profile.AvatarURL, &profile.Specialization); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProfileRow{}, ErrNotFound
		}
		return ProfileRow{}, err
	}
	profile.ID = idVal.String()
	return profile, nil
}

func (s *PostgresStore) UpsertCapabilities(ctx context.Context, row CapabilityRow) error {
	userID, err := uuid.Parse(row.UserID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO capabilities (user_id, can_publish, can_sell, can_receive_payments)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user_id) DO UPDATE SET
            can_publish = EXCLUDED.can_publish,
            can_sell = EXCLUDED.can_sell,
            can_receive_payments = EXCLUDED.can_receive_payments`,
		userID, row.CanPublish, row.CanSell, row.CanReceivePayments)
	return err
}

func (s *PostgresStore) CapabilitiesByUser(ctx context.Context, userID string) (CapabilityRow, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return CapabilityRow{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT user_id, can_publish, can_sell, can_receive_payments
        FROM capabilities WHERE user_id = $1`, id)
	var (
		idVal uuid.UUID
		caps  CapabilityRow
	)
	if err := row.Scan(&idVal, &caps.CanPublish, &caps.CanSell, &caps.CanReceivePayments); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CapabilityRow{}, ErrNotFound
		}
		return CapabilityRow{}, err
	}
	caps.UserID = idVal.String()
	return caps, nil
}

func (s *PostgresStore) InsertTip(ctx context.Context, tip TipRow) error {
	id, err := uuid.Parse(tip.ID)
	if err != nil {
		return err
	}
	providerID, err := uuid.Parse(tip.ProviderID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO tips
        (id, provider_id, sport, league, event, market, selection, odds, stake, confidence, type, status, result, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, providerID, tip.Sport, tip.League, tip.Event, tip.Market, tip.Selection,
		tip.Odds, tip.Stake, tip.Confidence, tip.Type, tip.Status, tip.Result, tip.CreatedAt.UTC())
	return err
}

func (s *PostgresStore) Tips(ctx context.Context, providerID string) ([]TipRow, error) {
	query := `SELECT t.id, t.provider_id, t.sport, t.league, t.event, t.market, t.selection,
            t.odds, t.stake, t.confidence, t.type, t.status, t.result, t.created_at,
            p.id, p.display_name, p.avatar_url, p.specialization
        FROM tips t LEFT JOIN profiles p ON p.id = t.provider_id`
	args := []any{}
	if providerID != "" {
		id, err := uuid.Parse(providerID)
		if err != nil {
			return nil, nil
		}
		query += ` WHERE t.provider_id = $1`
		args = append(args, id)
	}
	query += ` ORDER BY t.created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TipRow
	for rows.Next() {
		var (
			tipID      uuid.UUID
			provider   uuid.UUID
			createdAt  time.Time
			tip        TipRow
			profileID  *uuid.UUID
			pName      *string
			pAvatar    *string
			pSpecialty *string
		)
		if err := rows.Scan(&tipID, &provider, &tip.Sport, &tip.League, &tip.Event, &tip.Market,
			&tip.Selection, &tip.Odds, &tip.Stake, &tip.Confidence, &tip.Type, &tip.Status,
			&tip.Result, &createdAt, &profileID, &pName, &pAvatar, &pSpecialty); err != nil {
			return nil, err
		}
		tip.ID = tipID.String()
		tip.ProviderID = provider.String()
		tip.CreatedAt = createdAt.UTC()
		if profileID != nil {
			tip.Provider = &ProfileRow{
				ID:             profileID.String(),
				DisplayName:    deref(pName),
				AvatarURL:      deref(pAvatar),
				Specialization: deref(pSpecialty),
			}
		}
		out = append(out, tip)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PostgresStore) InsertApplication(ctx context.Context, app ApplicationRow) error {
	id, err := uuid.Parse(app.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(app.UserID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO provider_applications (id, user_id, bio, status, created_at)
        VALUES ($1, $2, $3, $4, $5)`, id, userID, app.Bio, app.Status, app.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) ApplicationByUser(ctx context.Context, userID string) (ApplicationRow, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return ApplicationRow{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, user_id, bio, status, created_at
        FROM provider_applications WHERE user_id = $1`, id)
	return scanApplication(row)
}

func (s *PostgresStore) ApplicationByID(ctx context.Context, id string) (ApplicationRow, error) {
	appID, err := uuid.Parse(id)
	if err != nil {
		return ApplicationRow{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT id, user_id, bio, status, created_at
        FROM provider_applications WHERE id = $1`, appID)
	return scanApplication(row)
}

func scanApplication(row pgx.Row) (ApplicationRow, error) {
	var (
		id        uuid.UUID
		userID    uuid.UUID
		createdAt time.Time
		app       ApplicationRow
	)
	if err := row.Scan(&id, &userID, &app.Bio, &app.Status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApplicationRow{}, ErrNotFound
		}
		return ApplicationRow{}, err
	}
	app.ID = id.String()
	app.UserID = userID.String()
	app.CreatedAt = createdAt.UTC()
	return app, nil
}

func (s *PostgresStore) SetApplicationStatus(ctx context.Context, id, status string) error {
	appID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := s.db.Exec(ctx, `UPDATE provider_applications SET status = $1 WHERE id = $2`, status, appID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) EnsureWallet(ctx context.Context, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO wallets (user_id, balance) VALUES ($1, 0)
        ON CONFLICT (user_id) DO NOTHING`, id)
	return err
}

func (s *PostgresStore) WalletBalance(ctx context.Context, userID string) (float64, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return 0, ErrNotFound
	}
	var balance float64
	if err := s.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

func (s *PostgresStore) AddToWallet(ctx context.Context, userID string, amount float64) (float64, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return 0, ErrNotFound
	}
	var balance float64
	err = s.db.QueryRow(ctx, `UPDATE wallets SET balance = balance + $1 WHERE user_id = $2
        RETURNING balance`, amount, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return balance, err
}

var _ Store = (*PostgresStore)(nil)

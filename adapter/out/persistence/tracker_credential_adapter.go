package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/pkg/crypto"
	"tracker_server/pkg/logger"
)

// CredentialAdapter implements out.CredentialRepository using
// PostgreSQL. Tokens are encrypted before they hit the table.
type CredentialAdapter struct {
	db *sqlx.DB
}

// NewCredentialAdapter creates a new CredentialAdapter.
func NewCredentialAdapter(db *sqlx.DB) *CredentialAdapter {
	return &CredentialAdapter{db: db}
}

const credentialSelectColumns = `
	id, user_id, provider, email, access_token, refresh_token,
	expires_at, is_connected, created_at, updated_at`

type credentialRow struct {
	ID           int64     `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	Provider     string    `db:"provider"`
	Email        string    `db:"email"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
	IsConnected  bool      `db:"is_connected"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *credentialRow) toDomain() *domain.Credential {
	return &domain.Credential{
		ID:           r.ID,
		UserID:       r.UserID,
		Provider:     domain.Provider(r.Provider),
		Email:        r.Email,
		AccessToken:  decryptToken(r.AccessToken),
		RefreshToken: decryptToken(r.RefreshToken),
		ExpiresAt:    r.ExpiresAt,
		IsConnected:  r.IsConnected,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// encryptToken encrypts a token for storage. Falls back to plaintext
// with a warning when the encryptor is not configured.
func encryptToken(token string) string {
	if token == "" {
		return token
	}
	encrypted, err := crypto.Encrypt(token)
	if err != nil {
		logger.WithError(err).Warn("storing token without encryption")
		return token
	}
	return encrypted
}

// decryptToken decrypts a stored token. Rows written before encryption
// was enabled come back unchanged.
func decryptToken(token string) string {
	if token == "" {
		return token
	}
	decrypted, err := crypto.Decrypt(token)
	if err != nil {
		return token
	}
	return decrypted
}

// GetByUser returns the user's credential for the provider.
func (a *CredentialAdapter) GetByUser(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Credential, error) {
	var row credentialRow
	query := `
		SELECT ` + credentialSelectColumns + `
		FROM mailbox_credentials
		WHERE user_id = $1 AND provider = $2`

	if err := a.db.GetContext(ctx, &row, query, userID, string(provider)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Upsert creates the credential or replaces tokens and expiry on the
// existing (user, provider) row.
func (a *CredentialAdapter) Upsert(ctx context.Context, cred *domain.Credential) error {
	now := time.Now()
	query := `
		INSERT INTO mailbox_credentials (user_id, provider, email, access_token, refresh_token,
		                                 expires_at, is_connected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7, $7)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			email         = EXCLUDED.email,
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at    = EXCLUDED.expires_at,
			is_connected  = true,
			updated_at    = EXCLUDED.updated_at
		RETURNING id`

	return a.db.QueryRowContext(ctx, query,
		cred.UserID,
		string(cred.Provider),
		cred.Email,
		encryptToken(cred.AccessToken),
		encryptToken(cred.RefreshToken),
		cred.ExpiresAt,
		now,
	).Scan(&cred.ID)
}

// UpdateTokens persists a refreshed token set.
func (a *CredentialAdapter) UpdateTokens(ctx context.Context, cred *domain.Credential) error {
	query := `
		UPDATE mailbox_credentials
		SET access_token = $1, refresh_token = $2, expires_at = $3, updated_at = $4
		WHERE id = $5`

	_, err := a.db.ExecContext(ctx, query,
		encryptToken(cred.AccessToken),
		encryptToken(cred.RefreshToken),
		cred.ExpiresAt,
		time.Now(),
		cred.ID,
	)
	return err
}

// Disconnect marks the credential as revoked without deleting it, so
// the UI can prompt the user to reconnect.
func (a *CredentialAdapter) Disconnect(ctx context.Context, id int64) error {
	query := `
		UPDATE mailbox_credentials
		SET is_connected = false, updated_at = $1
		WHERE id = $2`

	_, err := a.db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// Delete removes the credential.
func (a *CredentialAdapter) Delete(ctx context.Context, id int64) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM mailbox_credentials WHERE id = $1`, id)
	return err
}

var _ out.CredentialRepository = (*CredentialAdapter)(nil)

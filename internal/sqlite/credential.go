package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ganot/teamgraph/internal/domain/credential"
	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/repository"
)

// CredentialRepository implements credential persistence for SQLite
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new CredentialRepository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Put stores a credential as the active one for (user, platform). Any
// previously active row is deactivated in the same transaction so the
// partial unique index never trips.
func (r *CredentialRepository) Put(ctx context.Context, cred *credential.Credential) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE platform_credentials
		SET is_active = 0, updated_at = ?
		WHERE user_id = ? AND platform = ? AND is_active = 1
	`, time.Now(), cred.UserID, cred.Platform)
	if err != nil {
		return fmt.Errorf("failed to deactivate prior credential: %w", err)
	}

	metadata, err := encodeMetadata(cred.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO platform_credentials (
			id, user_id, team_id, platform, account_id,
			access_token, refresh_token, scopes, expires_at, metadata,
			is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cred.ID,
		cred.UserID,
		cred.TeamID,
		cred.Platform,
		cred.AccountID,
		cred.AccessCiphertext,
		cred.RefreshCiphertext,
		strings.Join(cred.Scopes, ","),
		cred.ExpiresAt,
		metadata,
		boolToInt(cred.IsActive),
		cred.CreatedAt,
		cred.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	return tx.Commit()
}

// Update rewrites token material and expiry on an existing row
func (r *CredentialRepository) Update(ctx context.Context, cred *credential.Credential) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE platform_credentials
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE id = ?
	`,
		cred.AccessCiphertext,
		cred.RefreshCiphertext,
		cred.ExpiresAt,
		cred.UpdatedAt,
		cred.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetActive retrieves the active credential for (user, platform)
func (r *CredentialRepository) GetActive(ctx context.Context, userID string, platform node.Platform) (*credential.Credential, error) {
	query := credentialColumns + ` WHERE user_id = ? AND platform = ? AND is_active = 1`
	return scanCredential(r.db.QueryRowContext(ctx, query, userID, platform))
}

// DeactivateAndScrub deactivates the active credential and overwrites
// its token ciphertexts.
func (r *CredentialRepository) DeactivateAndScrub(ctx context.Context, userID string, platform node.Platform) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE platform_credentials
		SET is_active = 0, access_token = X'', refresh_token = NULL, updated_at = ?
		WHERE user_id = ? AND platform = ? AND is_active = 1
	`, time.Now(), userID, platform)
	if err != nil {
		return fmt.Errorf("failed to deactivate credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListActiveForUser returns the user's active credentials
func (r *CredentialRepository) ListActiveForUser(ctx context.Context, userID string) ([]credential.Credential, error) {
	query := credentialColumns + ` WHERE user_id = ? AND is_active = 1 ORDER BY platform`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

// ListActive returns every active credential
func (r *CredentialRepository) ListActive(ctx context.Context) ([]credential.Credential, error) {
	query := credentialColumns + ` WHERE is_active = 1 ORDER BY user_id, platform`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

// FindActiveByAccount returns active credentials bound to an external account
func (r *CredentialRepository) FindActiveByAccount(ctx context.Context, platform node.Platform, accountID string) ([]credential.Credential, error) {
	query := credentialColumns + ` WHERE platform = ? AND account_id = ? AND is_active = 1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, platform, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credentials by account: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

const credentialColumns = `
	SELECT id, user_id, team_id, platform, account_id,
	       access_token, refresh_token, scopes, expires_at, metadata,
	       is_active, created_at, updated_at
	FROM platform_credentials`

type credentialScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredentialRow(row credentialScanner) (*credential.Credential, error) {
	var cred credential.Credential
	var refresh []byte
	var scopes, metadata string
	var expiresAt sql.NullTime
	var isActive int

	err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.TeamID,
		&cred.Platform,
		&cred.AccountID,
		&cred.AccessCiphertext,
		&refresh,
		&scopes,
		&expiresAt,
		&metadata,
		&isActive,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	cred.RefreshCiphertext = refresh
	if scopes != "" {
		cred.Scopes = strings.Split(scopes, ",")
	}
	if expiresAt.Valid {
		cred.ExpiresAt = &expiresAt.Time
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &cred.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode credential metadata: %w", err)
		}
	}
	cred.IsActive = isActive == 1

	return &cred, nil
}

func scanCredential(row *sql.Row) (*credential.Credential, error) {
	cred, err := scanCredentialRow(row)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	return cred, nil
}

func scanCredentials(rows *sql.Rows) ([]credential.Credential, error) {
	var creds []credential.Credential
	for rows.Next() {
		cred, err := scanCredentialRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credential rows: %w", err)
	}
	return creds, nil
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode credential metadata: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

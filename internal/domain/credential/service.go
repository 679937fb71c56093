package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/repository"
	"github.com/google/uuid"
)

// Service is the credential vault: it stores sealed tokens and opens
// them on demand. Callers never see ciphertext; repositories never see
// plaintext.
type Service struct {
	repo   Repository
	vault  *Vault
	logger *slog.Logger
}

// NewService creates a new credential service.
func NewService(repo Repository, vault *Vault, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		vault:  vault,
		logger: logger,
	}
}

// Store seals a grant and persists it as the active credential for
// (userID, platform), deactivating any prior one.
func (s *Service) Store(ctx context.Context, userID, teamID string, platform node.Platform, grant *Grant) (*Credential, error) {
	if userID == "" || teamID == "" || !platform.Valid() || grant == nil || grant.AccessToken == "" {
		return nil, ErrInvalidInput
	}

	accessSealed, err := s.vault.Seal(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("sealing access token: %w", err)
	}
	refreshSealed, err := s.vault.Seal(grant.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("sealing refresh token: %w", err)
	}

	now := time.Now()
	cred := &Credential{
		ID:                uuid.NewString(),
		UserID:            userID,
		TeamID:            teamID,
		Platform:          platform,
		AccountID:         grant.AccountID,
		AccessCiphertext:  accessSealed,
		RefreshCiphertext: refreshSealed,
		Scopes:            grant.Scopes,
		ExpiresAt:         grant.ExpiresAt,
		Metadata:          grant.Metadata,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Put(ctx, cred); err != nil {
		return nil, fmt.Errorf("storing credential: %w", err)
	}

	s.logger.Info("credential stored", "user", userID, "platform", platform)
	return cred, nil
}

// Rotate reseals a refreshed grant onto an existing credential row,
// keeping its identity and team scope.
func (s *Service) Rotate(ctx context.Context, cred *Credential, grant *Grant) error {
	if grant == nil || grant.AccessToken == "" {
		return ErrInvalidInput
	}

	accessSealed, err := s.vault.Seal(grant.AccessToken)
	if err != nil {
		return fmt.Errorf("sealing access token: %w", err)
	}
	refresh := grant.RefreshToken
	refreshSealed := cred.RefreshCiphertext
	if refresh != "" {
		refreshSealed, err = s.vault.Seal(refresh)
		if err != nil {
			return fmt.Errorf("sealing refresh token: %w", err)
		}
	}

	cred.AccessCiphertext = accessSealed
	cred.RefreshCiphertext = refreshSealed
	cred.ExpiresAt = grant.ExpiresAt
	cred.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, cred); err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	return nil
}

// ActiveGrant loads the active credential for (userID, platform) and
// opens its token material.
func (s *Service) ActiveGrant(ctx context.Context, userID string, platform node.Platform) (*Credential, *Grant, error) {
	cred, err := s.repo.GetActive(ctx, userID, platform)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNoCredential
		}
		return nil, nil, fmt.Errorf("loading credential: %w", err)
	}

	access, err := s.vault.Open(cred.AccessCiphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("opening access token: %w", err)
	}
	refresh, err := s.vault.Open(cred.RefreshCiphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("opening refresh token: %w", err)
	}

	return cred, &Grant{
		AccessToken:  access,
		RefreshToken: refresh,
		Scopes:       cred.Scopes,
		ExpiresAt:    cred.ExpiresAt,
		AccountID:    cred.AccountID,
		Metadata:     cred.Metadata,
	}, nil
}

// Deactivate deactivates and scrubs the active credential for
// (userID, platform). Historical context nodes are untouched.
func (s *Service) Deactivate(ctx context.Context, userID string, platform node.Platform) error {
	if err := s.repo.DeactivateAndScrub(ctx, userID, platform); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoCredential
		}
		return fmt.Errorf("deactivating credential: %w", err)
	}
	s.logger.Info("credential deactivated", "user", userID, "platform", platform)
	return nil
}

// ListForUser returns the user's active credentials across platforms.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Credential, error) {
	return s.repo.ListActiveForUser(ctx, userID)
}

// ListActive returns every active credential. The scheduler uses this to
// drive periodic incremental syncs.
func (s *Service) ListActive(ctx context.Context) ([]Credential, error) {
	return s.repo.ListActive(ctx)
}

// FindByAccount returns active credentials bound to an external account,
// used for webhook-to-team attribution.
func (s *Service) FindByAccount(ctx context.Context, platform node.Platform, accountID string) ([]Credential, error) {
	return s.repo.FindActiveByAccount(ctx, platform, accountID)
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/pkg/apperr"
	"tracker_server/pkg/logger"
)

// OAuthService drives the consent flow that creates or replaces a
// mailbox credential.
type OAuthService struct {
	provider out.MailProviderPort
	creds    out.CredentialRepository
	states   out.StateStore
	log      *logger.Logger
}

// NewOAuthService creates a new OAuthService.
func NewOAuthService(provider out.MailProviderPort, creds out.CredentialRepository, states out.StateStore) *OAuthService {
	return &OAuthService{
		provider: provider,
		creds:    creds,
		states:   states,
		log:      logger.Default().WithField("service", "oauth"),
	}
}

// StartAuth issues a single-use state and returns the consent URL.
func (s *OAuthService) StartAuth(ctx context.Context, userID uuid.UUID) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", apperr.InternalWithError(err)
	}

	if err := s.states.Save(ctx, state, userID); err != nil {
		return "", apperr.InternalWithError(err)
	}

	return s.provider.GetAuthURL(state), nil
}

// CompleteAuth validates the callback, exchanges the code and stores
// the credential. An existing credential for the same user and
// provider is replaced, which is how a revoked grant gets repaired.
func (s *OAuthService) CompleteAuth(ctx context.Context, state, code string) (*domain.Credential, error) {
	if code == "" {
		return nil, apperr.MissingField("code")
	}

	userID, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, apperr.BadRequest("invalid or expired state")
	}

	token, err := s.provider.ExchangeToken(ctx, code)
	if err != nil {
		return nil, apperr.OAuthFailed(s.provider.GetProviderType(), err)
	}
	if token.RefreshToken == "" {
		// Without a refresh token every future expiry is fatal, so
		// reject the grant outright
		return nil, apperr.OAuthFailed(s.provider.GetProviderType(),
			fmt.Errorf("provider returned no refresh token"))
	}

	profile, err := s.provider.GetProfile(ctx, token)
	if err != nil {
		return nil, apperr.OAuthFailed(s.provider.GetProviderType(), err)
	}

	cred := &domain.Credential{
		UserID:       userID,
		Provider:     domain.MailProviderGmail,
		Email:        profile.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		IsConnected:  true,
	}

	if err := s.creds.Upsert(ctx, cred); err != nil {
		return nil, apperr.DatabaseError("upsert credential", err)
	}

	s.log.WithField("user_id", userID.String()).Info("mailbox connected: %s", profile.Email)
	return cred, nil
}

// Disconnect marks the user's credential as disconnected. The stored
// row survives so a later reconnect can reuse the same identity.
func (s *OAuthService) Disconnect(ctx context.Context, userID uuid.UUID) error {
	cred, err := s.creds.GetByUser(ctx, userID, domain.MailProviderGmail)
	if err != nil {
		if err == out.ErrNotFound {
			return apperr.NotFound("mailbox credential")
		}
		return apperr.DatabaseError("get credential", err)
	}

	if err := s.creds.Disconnect(ctx, cred.ID); err != nil {
		return apperr.DatabaseError("disconnect credential", err)
	}

	s.log.WithField("user_id", userID.String()).Info("mailbox disconnected")
	return nil
}

// Status reports whether the user has a connected mailbox.
func (s *OAuthService) Status(ctx context.Context, userID uuid.UUID) (*domain.Credential, error) {
	cred, err := s.creds.GetByUser(ctx, userID, domain.MailProviderGmail)
	if err != nil {
		if err == out.ErrNotFound {
			return nil, apperr.NotFound("mailbox credential")
		}
		return nil, apperr.DatabaseError("get credential", err)
	}
	return cred, nil
}

func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

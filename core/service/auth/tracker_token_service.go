// Package auth implements the credential lifecycle services.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/pkg/apperr"
	"tracker_server/pkg/logger"
)

// TokenService hands out valid access tokens, refreshing them against
// the provider when needed. Refreshes for the same credential are
// serialized so concurrent callers trigger at most one network call.
type TokenService struct {
	creds     out.CredentialRepository
	refresher out.MailAuthenticator
	now       func() time.Time
	log       *logger.Logger

	refreshTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTokenService creates a new TokenService.
func NewTokenService(creds out.CredentialRepository, refresher out.MailAuthenticator) *TokenService {
	return &TokenService{
		creds:          creds,
		refresher:      refresher,
		now:            time.Now,
		log:            logger.Default().WithField("service", "token"),
		refreshTimeout: 30 * time.Second,
		locks:          make(map[string]*sync.Mutex),
	}
}

// WithRefreshTimeout bounds the provider call made during a refresh.
func (s *TokenService) WithRefreshTimeout(d time.Duration) *TokenService {
	if d > 0 {
		s.refreshTimeout = d
	}
	return s
}

// lockFor returns the mutex guarding one credential's refresh path.
func (s *TokenService) lockFor(userID uuid.UUID, provider domain.Provider) *sync.Mutex {
	key := userID.String() + ":" + string(provider)

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// EnsureValid returns the user's credential with a usable access
// token. A token expiring at or before now is refreshed first; a
// still-valid token is returned without any network traffic.
func (s *TokenService) EnsureValid(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Credential, error) {
	cred, err := s.creds.GetByUser(ctx, userID, provider)
	if err != nil {
		if err == out.ErrNotFound {
			return nil, apperr.NotFound("mailbox credential")
		}
		return nil, apperr.DatabaseError("get credential", err)
	}

	if !cred.IsConnected {
		return nil, apperr.CredentialRevoked(string(provider), nil)
	}

	if !cred.ExpiredAt(s.now()) {
		return cred, nil
	}

	lock := s.lockFor(userID, provider)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock. If a concurrent caller already
	// refreshed, the new expiry makes this a no-op; if it found the
	// grant revoked, the disconnect is visible here.
	cred, err = s.creds.GetByUser(ctx, userID, provider)
	if err != nil {
		return nil, apperr.DatabaseError("get credential", err)
	}
	if !cred.IsConnected {
		return nil, apperr.CredentialRevoked(string(provider), nil)
	}
	if !cred.ExpiredAt(s.now()) {
		return cred, nil
	}

	return s.refresh(ctx, cred)
}

// refresh exchanges the refresh token for a new access token and
// persists the result. Caller holds the per-credential lock.
func (s *TokenService) refresh(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, apperr.CredentialRevoked(string(cred.Provider), fmt.Errorf("no refresh token on record"))
	}

	refreshCtx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	defer cancel()

	start := s.now()
	newToken, err := s.refresher.RefreshToken(refreshCtx, &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	})
	if err != nil {
		return nil, s.classifyRefreshError(ctx, cred, err)
	}

	cred.AccessToken = newToken.AccessToken
	cred.ExpiresAt = newToken.Expiry
	// Google only returns a refresh token on the first consent; keep
	// the stored one when the response omits it
	if newToken.RefreshToken != "" {
		cred.RefreshToken = newToken.RefreshToken
	}

	if err := s.creds.UpdateTokens(ctx, cred); err != nil {
		return nil, apperr.DatabaseError("update tokens", err)
	}

	s.log.WithField("user_id", cred.UserID.String()).
		WithDuration(s.now().Sub(start)).
		Info("access token refreshed")

	return cred, nil
}

// classifyRefreshError maps a refresh failure onto the credential
// lifecycle: a rejected grant disconnects the credential, anything
// else stays transient and leaves the stored tokens untouched.
func (s *TokenService) classifyRefreshError(ctx context.Context, cred *domain.Credential, err error) error {
	if out.IsProviderErrCode(err, out.ProviderErrRevoked) {
		if dbErr := s.creds.Disconnect(ctx, cred.ID); dbErr != nil {
			s.log.WithError(dbErr).Error("failed to mark credential disconnected")
		}
		s.log.WithField("user_id", cred.UserID.String()).Warn("refresh grant revoked, reauthorization required")
		return apperr.CredentialRevoked(string(cred.Provider), err)
	}

	return apperr.TransientAuth(string(cred.Provider), err)
}

// Token returns the oauth2 token view of a credential.
func Token(cred *domain.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	}
}

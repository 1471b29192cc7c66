package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/pkg/apperr"
)

type fakeCredentialRepo struct {
	mu          sync.Mutex
	cred        *domain.Credential
	disconnects int
	updateErr   error

	reads        int
	revokeOnRead int
}

func (r *fakeCredentialRepo) GetByUser(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cred == nil {
		return nil, out.ErrNotFound
	}
	r.reads++
	if r.revokeOnRead > 0 && r.reads == r.revokeOnRead {
		r.cred.IsConnected = false
	}
	copied := *r.cred
	return &copied, nil
}

func (r *fakeCredentialRepo) Upsert(ctx context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *cred
	r.cred = &copied
	return nil
}

func (r *fakeCredentialRepo) UpdateTokens(ctx context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	copied := *cred
	r.cred = &copied
	return nil
}

func (r *fakeCredentialRepo) Disconnect(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	if r.cred != nil {
		r.cred.IsConnected = false
	}
	return nil
}

func (r *fakeCredentialRepo) Delete(ctx context.Context, id int64) error { return nil }

type fakeRefresher struct {
	calls   atomic.Int64
	token   *oauth2.Token
	err     error
	latency time.Duration
}

func (f *fakeRefresher) GetAuthURL(state string) string { return "https://example.com/auth" }

func (f *fakeRefresher) ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	f.calls.Add(1)
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func newTestCredential(expiresAt time.Time) *domain.Credential {
	return &domain.Credential{
		ID:           1,
		UserID:       uuid.New(),
		Provider:     domain.MailProviderGmail,
		Email:        "user@example.com",
		AccessToken:  "old-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    expiresAt,
		IsConnected:  true,
	}
}

func TestEnsureValidSkipsRefreshForFreshToken(t *testing.T) {
	now := time.Now()
	repo := &fakeCredentialRepo{cred: newTestCredential(now.Add(time.Hour))}
	refresher := &fakeRefresher{}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		cred, err := svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail)
		if err != nil {
			t.Fatalf("EnsureValid: %v", err)
		}
		if cred.AccessToken != "old-access" {
			t.Errorf("access token changed: %q", cred.AccessToken)
		}
	}

	if got := refresher.calls.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0", got)
	}
}

func TestEnsureValidRefreshesExpiredToken(t *testing.T) {
	now := time.Now()
	repo := &fakeCredentialRepo{cred: newTestCredential(now.Add(-time.Minute))}
	refresher := &fakeRefresher{
		token: &oauth2.Token{
			AccessToken: "new-access",
			// Google omits the refresh token on refresh responses
			RefreshToken: "",
			Expiry:       now.Add(time.Hour),
		},
	}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	cred, err := svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail)
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}

	if cred.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q, want new-access", cred.AccessToken)
	}
	if cred.RefreshToken != "stored-refresh" {
		t.Errorf("RefreshToken = %q, want stored-refresh to be retained", cred.RefreshToken)
	}
	if repo.cred.AccessToken != "new-access" {
		t.Error("refreshed token was not persisted")
	}
}

func TestEnsureValidReplacesRefreshTokenWhenProviderReturnsOne(t *testing.T) {
	now := time.Now()
	repo := &fakeCredentialRepo{cred: newTestCredential(now.Add(-time.Minute))}
	refresher := &fakeRefresher{
		token: &oauth2.Token{
			AccessToken:  "new-access",
			RefreshToken: "rotated-refresh",
			Expiry:       now.Add(time.Hour),
		},
	}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	cred, err := svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail)
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if cred.RefreshToken != "rotated-refresh" {
		t.Errorf("RefreshToken = %q, want rotated-refresh", cred.RefreshToken)
	}
}

func TestEnsureValidTokenExpiringNowIsExpired(t *testing.T) {
	now := time.Now()
	repo := &fakeCredentialRepo{cred: newTestCredential(now)}
	refresher := &fakeRefresher{
		token: &oauth2.Token{AccessToken: "new-access", Expiry: now.Add(time.Hour)},
	}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	if _, err := svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail); err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1 for expiry == now", got)
	}
}

func TestEnsureValidConcurrentCallersRefreshOnce(t *testing.T) {
	now := time.Now()
	repo := &fakeCredentialRepo{cred: newTestCredential(now.Add(-time.Minute))}
	refresher := &fakeRefresher{
		token:   &oauth2.Token{AccessToken: "new-access", Expiry: now.Add(time.Hour)},
		latency: 10 * time.Millisecond,
	}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("EnsureValid: %v", err)
		}
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", got)
	}
}

func TestEnsureValidRevokedGrantDisconnectsCredential(t *testing.T) {
	now := time.Now()
	repo := &fakeCredentialRepo{cred: newTestCredential(now.Add(-time.Minute))}
	refresher := &fakeRefresher{
		err: out.NewProviderError("gmail", out.ProviderErrRevoked, "grant revoked", errors.New("invalid_grant"), false),
	}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	_, err := svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail)
	if !apperr.IsCode(err, apperr.CodeCredentialRevoked) {
		t.Fatalf("err = %v, want CREDENTIAL_REVOKED", err)
	}
	if repo.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", repo.disconnects)
	}

	// A disconnected credential fails fast without further refreshes
	_, err = svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail)
	if !apperr.IsCode(err, apperr.CodeCredentialRevoked) {
		t.Fatalf("second call err = %v, want CREDENTIAL_REVOKED", err)
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestEnsureValidTransientFailureKeepsTokens(t *testing.T) {
	now := time.Now()
	repo := &fakeCredentialRepo{cred: newTestCredential(now.Add(-time.Minute))}
	refresher := &fakeRefresher{
		err: out.NewProviderError("gmail", out.ProviderErrNetwork, "connection reset", errors.New("reset"), true),
	}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	_, err := svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail)
	if !apperr.IsCode(err, apperr.CodeTransientAuth) {
		t.Fatalf("err = %v, want TRANSIENT_AUTH", err)
	}

	if repo.disconnects != 0 {
		t.Errorf("disconnects = %d, want 0 for transient failure", repo.disconnects)
	}
	if repo.cred.AccessToken != "old-access" || repo.cred.RefreshToken != "stored-refresh" {
		t.Error("stored tokens changed after transient failure")
	}
}

func TestEnsureValidMissingRefreshTokenIsRevoked(t *testing.T) {
	now := time.Now()
	cred := newTestCredential(now.Add(-time.Minute))
	cred.RefreshToken = ""
	repo := &fakeCredentialRepo{cred: cred}
	refresher := &fakeRefresher{}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	_, err := svc.EnsureValid(context.Background(), cred.UserID, domain.MailProviderGmail)
	if !apperr.IsCode(err, apperr.CodeCredentialRevoked) {
		t.Fatalf("err = %v, want CREDENTIAL_REVOKED", err)
	}
	if got := refresher.calls.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0 without a refresh token", got)
	}
}

func TestEnsureValidRevokedBetweenChecksDoesNotRefresh(t *testing.T) {
	now := time.Now()
	// The credential looks connected on the first read, but the re-read
	// under the refresh lock sees a concurrent disconnect.
	repo := &fakeCredentialRepo{
		cred:         newTestCredential(now.Add(-time.Minute)),
		revokeOnRead: 2,
	}
	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "new-access", Expiry: now.Add(time.Hour)}}
	svc := NewTokenService(repo, refresher)
	svc.now = func() time.Time { return now }

	_, err := svc.EnsureValid(context.Background(), repo.cred.UserID, domain.MailProviderGmail)
	if !apperr.IsCode(err, apperr.CodeCredentialRevoked) {
		t.Fatalf("err = %v, want CREDENTIAL_REVOKED", err)
	}
	if got := refresher.calls.Load(); got != 0 {
		t.Errorf("refresh calls = %d, want 0 for a just-revoked credential", got)
	}
}

func TestEnsureValidUnknownUser(t *testing.T) {
	repo := &fakeCredentialRepo{}
	svc := NewTokenService(repo, &fakeRefresher{})

	_, err := svc.EnsureValid(context.Background(), uuid.New(), domain.MailProviderGmail)
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/core/service/auth"
	"tracker_server/pkg/apperr"
)

type fakeProvider struct {
	searchResult *out.ProviderSearchResult
	searchErr    error
	messages     map[string]*out.ProviderMailMessage

	labels      []out.ProviderMailLabel
	labelsErr   error
	createdName string
	added       []string
	markedRead  []string
	listCalls   int
}

func (f *fakeProvider) GetProviderType() string { return string(domain.MailProviderGmail) }

func (f *fakeProvider) GetAuthURL(state string) string { return "https://auth.example/?state=" + state }

func (f *fakeProvider) ExchangeToken(_ context.Context, _ string) (*oauth2.Token, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) RefreshToken(_ context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	return token, nil
}

func (f *fakeProvider) Search(_ context.Context, _ *oauth2.Token, _ *out.ProviderSearchOptions) (*out.ProviderSearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResult, nil
}

func (f *fakeProvider) GetMessage(_ context.Context, _ *oauth2.Token, id string) (*out.ProviderMailMessage, error) {
	msg, ok := f.messages[id]
	if !ok {
		return nil, out.NewProviderError("gmail", out.ProviderErrNotFound, "message not found", nil, false)
	}
	return msg, nil
}

func (f *fakeProvider) GetMessages(ctx context.Context, token *oauth2.Token, ids []string) ([]*out.ProviderMailMessage, error) {
	var msgs []*out.ProviderMailMessage
	for _, id := range ids {
		if msg, err := f.GetMessage(ctx, token, id); err == nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

func (f *fakeProvider) MarkAsRead(_ context.Context, _ *oauth2.Token, id string) error {
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeProvider) ListLabels(_ context.Context, _ *oauth2.Token) ([]out.ProviderMailLabel, error) {
	f.listCalls++
	if f.labelsErr != nil {
		return nil, f.labelsErr
	}
	return f.labels, nil
}

func (f *fakeProvider) CreateLabel(_ context.Context, _ *oauth2.Token, name string) (*out.ProviderMailLabel, error) {
	f.createdName = name
	label := out.ProviderMailLabel{ExternalID: "Label_99", Name: name, Type: "user"}
	f.labels = append(f.labels, label)
	return &label, nil
}

func (f *fakeProvider) AddLabel(_ context.Context, _ *oauth2.Token, messageID, labelID string) error {
	f.added = append(f.added, messageID+"/"+labelID)
	return nil
}

func (f *fakeProvider) GetProfile(_ context.Context, _ *oauth2.Token) (*out.ProviderProfile, error) {
	return &out.ProviderProfile{Email: "user@example.com"}, nil
}

type fakeCredRepo struct {
	cred *domain.Credential
}

func (f *fakeCredRepo) GetByUser(_ context.Context, _ uuid.UUID, _ domain.Provider) (*domain.Credential, error) {
	if f.cred == nil {
		return nil, out.ErrNotFound
	}
	c := *f.cred
	return &c, nil
}

func (f *fakeCredRepo) Upsert(_ context.Context, cred *domain.Credential) error {
	c := *cred
	f.cred = &c
	return nil
}

func (f *fakeCredRepo) UpdateTokens(_ context.Context, cred *domain.Credential) error {
	c := *cred
	f.cred = &c
	return nil
}

func (f *fakeCredRepo) Disconnect(_ context.Context, _ int64) error {
	f.cred.IsConnected = false
	return nil
}

func (f *fakeCredRepo) Delete(_ context.Context, _ int64) error {
	f.cred = nil
	return nil
}

type fakeMessageRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*domain.Message

	insertErrFor string
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{rows: make(map[string]*domain.Message)}
}

func (f *fakeMessageRepo) Insert(_ context.Context, msg *domain.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if msg.ProviderID == f.insertErrFor {
		return false, errors.New("connection reset")
	}

	key := msg.UserID.String() + ":" + msg.ProviderID
	if _, exists := f.rows[key]; exists {
		return false, nil
	}

	f.nextID++
	msg.ID = f.nextID
	stored := *msg
	f.rows[key] = &stored
	return true, nil
}

func (f *fakeMessageRepo) GetByID(_ context.Context, _ uuid.UUID, id int64) (*domain.Message, error) {
	for _, m := range f.rows {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, out.ErrNotFound
}

func (f *fakeMessageRepo) List(_ context.Context, _ *domain.MessageFilter) ([]*domain.MessageListItem, error) {
	return nil, nil
}

func (f *fakeMessageRepo) MarkProcessed(_ context.Context, _ uuid.UUID, _ int64, _ *int64) error {
	return nil
}

type fakeLinkRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.DiscoveredLink
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{rows: make(map[string]*domain.DiscoveredLink)}
}

func (f *fakeLinkRepo) Insert(_ context.Context, link *domain.DiscoveredLink) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := fmt.Sprintf("%d:%s", link.MessageID, link.URL)
	if _, exists := f.rows[id]; exists {
		return false, nil
	}
	f.rows[id] = link
	return true, nil
}

func (f *fakeLinkRepo) ListPending(_ context.Context, _ int) ([]*domain.DiscoveredLink, error) {
	return nil, nil
}

func (f *fakeLinkRepo) MarkFetched(_ context.Context, _ int64, _ int, _, _ *string) error {
	return nil
}

func (f *fakeLinkRepo) MarkError(_ context.Context, _ int64, _ string) error { return nil }

func (f *fakeLinkRepo) ListByMessage(_ context.Context, _ uuid.UUID, _ int64) ([]*domain.DiscoveredLink, error) {
	return nil, nil
}

type fakeFilterRepo struct {
	filters []*domain.DomainFilter
}

func (f *fakeFilterRepo) ListByUser(_ context.Context, _ uuid.UUID) ([]*domain.DomainFilter, error) {
	return f.filters, nil
}

func (f *fakeFilterRepo) Create(_ context.Context, filter *domain.DomainFilter) error {
	f.filters = append(f.filters, filter)
	return nil
}

func (f *fakeFilterRepo) Delete(_ context.Context, _ uuid.UUID, _ int64) error { return nil }

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*out.LabelSyncJob
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job *out.LabelSyncJob) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	return nil
}

func validCred(userID uuid.UUID) *domain.Credential {
	return &domain.Credential{
		ID:           1,
		UserID:       userID,
		Provider:     domain.MailProviderGmail,
		Email:        "user@example.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		IsConnected:  true,
	}
}

func jobMessage(id, from, subject, body string) *out.ProviderMailMessage {
	return &out.ProviderMailMessage{
		ExternalID:       id,
		ExternalThreadID: "t-" + id,
		Subject:          subject,
		Snippet:          body,
		From:             out.ProviderEmailAddress{Name: "Recruiter", Email: from},
		To:               []out.ProviderEmailAddress{{Email: "user@example.com"}},
		Date:             time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		BodyText:         body,
	}
}

type ingestFixture struct {
	svc      *Service
	provider *fakeProvider
	messages *fakeMessageRepo
	links    *fakeLinkRepo
	filters  *fakeFilterRepo
	queue    *fakeQueue
	userID   uuid.UUID
}

func newIngestFixture(provider *fakeProvider) *ingestFixture {
	userID := uuid.New()
	messages := newFakeMessageRepo()
	links := newFakeLinkRepo()
	filters := &fakeFilterRepo{}
	queue := &fakeQueue{}
	tokens := auth.NewTokenService(&fakeCredRepo{cred: validCred(userID)}, provider)

	svc := NewService(Config{
		Tokens:   tokens,
		Provider: provider,
		Messages: messages,
		Links:    links,
		Filters:  filters,
		Queue:    queue,
	})

	return &ingestFixture{
		svc:      svc,
		provider: provider,
		messages: messages,
		links:    links,
		filters:  filters,
		queue:    queue,
		userID:   userID,
	}
}

func TestRunSavesJobMessagesAndLinks(t *testing.T) {
	provider := &fakeProvider{
		searchResult: &out.ProviderSearchResult{IDs: []string{"m1", "m2"}},
		messages: map[string]*out.ProviderMailMessage{
			"m1": jobMessage("m1", "jobs@acme.com", "Your application at Acme",
				"Thanks for applying. Track it at https://jobs.acme.com/app/42"),
			"m2": jobMessage("m2", "mom@family.example", "Dinner on Sunday",
				"Are you free this weekend?"),
		},
	}
	fx := newIngestFixture(provider)

	result, err := fx.svc.Run(context.Background(), fx.userID, Options{DaysBack: 30, MaxResults: 50})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Fetched != 2 {
		t.Errorf("Fetched = %d, want 2", result.Fetched)
	}
	if result.Saved != 1 {
		t.Errorf("Saved = %d, want 1", result.Saved)
	}
	if result.Filtered != 1 {
		t.Errorf("Filtered = %d, want 1", result.Filtered)
	}
	if result.Links != 1 {
		t.Errorf("Links = %d, want 1", result.Links)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}

	if len(fx.queue.jobs) != 1 {
		t.Fatalf("enqueued jobs = %d, want 1", len(fx.queue.jobs))
	}
	if fx.queue.jobs[0].ProviderID != "m1" {
		t.Errorf("queued ProviderID = %q, want m1", fx.queue.jobs[0].ProviderID)
	}
	if fx.queue.jobs[0].LabelName != "Job Tracker/Processed" {
		t.Errorf("queued LabelName = %q", fx.queue.jobs[0].LabelName)
	}
}

func TestRunCountsDuplicatesOnRerun(t *testing.T) {
	provider := &fakeProvider{
		searchResult: &out.ProviderSearchResult{IDs: []string{"m1"}},
		messages: map[string]*out.ProviderMailMessage{
			"m1": jobMessage("m1", "jobs@acme.com", "Interview invitation",
				"We would like to schedule a call to discuss next steps."),
		},
	}
	fx := newIngestFixture(provider)

	if _, err := fx.svc.Run(context.Background(), fx.userID, Options{DaysBack: 7}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	result, err := fx.svc.Run(context.Background(), fx.userID, Options{DaysBack: 7})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if result.Saved != 0 {
		t.Errorf("Saved = %d, want 0", result.Saved)
	}
	if result.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", result.Duplicates)
	}
	if len(fx.queue.jobs) != 1 {
		t.Errorf("enqueued jobs = %d, want 1 (no re-enqueue for duplicates)", len(fx.queue.jobs))
	}
}

func TestRunSavesDegradedAndSkipsPreIngestedMessages(t *testing.T) {
	// m2 lost its body parts upstream and carries only a subject; m3
	// was already ingested by an earlier, overlapping run.
	degraded := jobMessage("m2", "talent@initech.com", "Update on your application to Initech", "")
	provider := &fakeProvider{
		searchResult: &out.ProviderSearchResult{IDs: []string{"m1", "m2", "m3"}},
		messages: map[string]*out.ProviderMailMessage{
			"m1": jobMessage("m1", "jobs@acme.com", "Your application at Acme",
				"Thanks for applying. Track it at https://jobs.acme.com/app/42"),
			"m2": degraded,
			"m3": jobMessage("m3", "jobs@globex.com", "Interview invitation",
				"We would like to schedule a call to discuss next steps."),
		},
	}
	fx := newIngestFixture(provider)

	if _, err := fx.messages.Insert(context.Background(), &domain.Message{
		UserID:     fx.userID,
		ProviderID: "m3",
	}); err != nil {
		t.Fatalf("seed insert error = %v", err)
	}

	result, err := fx.svc.Run(context.Background(), fx.userID, Options{DaysBack: 7})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Fetched != 3 {
		t.Errorf("Fetched = %d, want 3", result.Fetched)
	}
	if result.Saved != 2 {
		t.Errorf("Saved = %d, want 2", result.Saved)
	}
	if result.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", result.Duplicates)
	}
	if result.Filtered != 0 {
		t.Errorf("Filtered = %d, want 0", result.Filtered)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}

	if len(fx.queue.jobs) != 2 {
		t.Fatalf("enqueued jobs = %d, want 2 (no job for the pre-ingested message)", len(fx.queue.jobs))
	}
	for _, job := range fx.queue.jobs {
		if job.ProviderID == "m3" {
			t.Error("pre-ingested message m3 was re-enqueued for label sync")
		}
	}
}

func TestRunSkipsBlockedSenderDomains(t *testing.T) {
	provider := &fakeProvider{
		searchResult: &out.ProviderSearchResult{IDs: []string{"m1"}},
		messages: map[string]*out.ProviderMailMessage{
			"m1": jobMessage("m1", "noreply@spamboard.io", "1000 new job openings",
				"Browse thousands of jobs now."),
		},
	}
	fx := newIngestFixture(provider)
	fx.filters.filters = []*domain.DomainFilter{
		{UserID: fx.userID, Domain: "Spamboard.IO", Allow: false},
	}

	result, err := fx.svc.Run(context.Background(), fx.userID, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Saved != 0 {
		t.Errorf("Saved = %d, want 0", result.Saved)
	}
	if result.Filtered != 1 {
		t.Errorf("Filtered = %d, want 1", result.Filtered)
	}
}

func TestRunClassifiesResponses(t *testing.T) {
	provider := &fakeProvider{
		searchResult: &out.ProviderSearchResult{IDs: []string{"m1"}},
		messages: map[string]*out.ProviderMailMessage{
			"m1": jobMessage("m1", "talent@acme.com", "Update on your application",
				"Unfortunately we have decided to move forward with other candidates."),
		},
	}
	fx := newIngestFixture(provider)

	if _, err := fx.svc.Run(context.Background(), fx.userID, Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	msg, err := fx.messages.GetByID(context.Background(), fx.userID, 1)
	if err != nil {
		t.Fatalf("stored message not found: %v", err)
	}
	if msg.Category == nil || *msg.Category != domain.CategoryApplicationResponse {
		t.Errorf("Category = %v, want APPLICATION_RESPONSE", msg.Category)
	}
	if msg.SubCategory == nil || *msg.SubCategory != domain.SubCategoryDenial {
		t.Errorf("SubCategory = %v, want DENIAL", msg.SubCategory)
	}
}

func TestRunQueueFailureIsWarningNotError(t *testing.T) {
	provider := &fakeProvider{
		searchResult: &out.ProviderSearchResult{IDs: []string{"m1"}},
		messages: map[string]*out.ProviderMailMessage{
			"m1": jobMessage("m1", "jobs@acme.com", "Job offer inside",
				"We are excited to extend an offer."),
		},
	}
	fx := newIngestFixture(provider)
	fx.queue.err = errors.New("stream unavailable")

	result, err := fx.svc.Run(context.Background(), fx.userID, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if result.Saved != 1 {
		t.Errorf("Saved = %d, want 1", result.Saved)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "label sync") {
		t.Errorf("Warnings = %v, want one label sync warning", result.Warnings)
	}
}

func TestRunSingleMessagePersistFailureContinues(t *testing.T) {
	provider := &fakeProvider{
		searchResult: &out.ProviderSearchResult{IDs: []string{"m1", "m2"}},
		messages: map[string]*out.ProviderMailMessage{
			"m1": jobMessage("m1", "jobs@acme.com", "Your application was received",
				"We received your application."),
			"m2": jobMessage("m2", "jobs@globex.com", "Interview request",
				"Please share your availability for an interview."),
		},
	}
	fx := newIngestFixture(provider)
	fx.messages.insertErrFor = "m1"

	result, err := fx.svc.Run(context.Background(), fx.userID, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Saved != 1 {
		t.Errorf("Saved = %d, want 1", result.Saved)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("Warnings = %v, want one persistence warning", result.Warnings)
	}
}

func TestRunMapsRevokedSearchError(t *testing.T) {
	provider := &fakeProvider{
		searchErr: out.NewProviderError("gmail", out.ProviderErrRevoked, "grant revoked", nil, false),
	}
	fx := newIngestFixture(provider)

	_, err := fx.svc.Run(context.Background(), fx.userID, Options{})
	if !apperr.IsCode(err, apperr.CodeCredentialRevoked) {
		t.Fatalf("error = %v, want code %s", err, apperr.CodeCredentialRevoked)
	}
}

func TestRunMapsTransientSearchError(t *testing.T) {
	provider := &fakeProvider{
		searchErr: out.NewProviderError("gmail", out.ProviderErrServer, "backend error", nil, true),
	}
	fx := newIngestFixture(provider)

	_, err := fx.svc.Run(context.Background(), fx.userID, Options{})
	if !apperr.IsCode(err, apperr.CodeTransientProvider) {
		t.Fatalf("error = %v, want code %s", err, apperr.CodeTransientProvider)
	}
}

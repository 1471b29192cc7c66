package out

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"tracker_server/core/domain"
)

// Sentinel errors shared by persistence adapters.
var (
	ErrNotFound = errors.New("record not found")
)

// CredentialRepository persists mailbox OAuth credentials.
// Tokens cross this boundary in plaintext; adapters encrypt at rest.
type CredentialRepository interface {
	// GetByUser returns the user's credential for the provider.
	GetByUser(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Credential, error)

	// Upsert creates the credential or replaces tokens and expiry on
	// the existing (user, provider) row.
	Upsert(ctx context.Context, cred *domain.Credential) error

	// UpdateTokens persists a refreshed token set.
	UpdateTokens(ctx context.Context, cred *domain.Credential) error

	// Disconnect marks the credential as revoked without deleting it.
	Disconnect(ctx context.Context, id int64) error

	// Delete removes the credential.
	Delete(ctx context.Context, id int64) error
}

// MessageRepository persists ingested mailbox messages.
type MessageRepository interface {
	// Insert stores a message atomically. Returns false with a nil
	// error when a row for (user, provider message ID) already exists.
	Insert(ctx context.Context, msg *domain.Message) (bool, error)

	// GetByID returns one of the user's messages.
	GetByID(ctx context.Context, userID uuid.UUID, id int64) (*domain.Message, error)

	// List returns lightweight list items matching the filter.
	List(ctx context.Context, filter *domain.MessageFilter) ([]*domain.MessageListItem, error)

	// MarkProcessed links a message to an application and flags it
	// processed.
	MarkProcessed(ctx context.Context, userID uuid.UUID, id int64, applicationID *int64) error
}

// LinkRepository persists discovered job posting links.
type LinkRepository interface {
	// Insert stores a link. Returns false with a nil error when the
	// (message, URL) pair already exists.
	Insert(ctx context.Context, link *domain.DiscoveredLink) (bool, error)

	// ListPending returns links awaiting a crawl, oldest first.
	ListPending(ctx context.Context, limit int) ([]*domain.DiscoveredLink, error)

	// MarkFetched records a successful crawl.
	MarkFetched(ctx context.Context, id int64, confidence int, company, role *string) error

	// MarkError records a failed crawl.
	MarkError(ctx context.Context, id int64, message string) error

	// ListByMessage returns all links discovered in one message.
	ListByMessage(ctx context.Context, userID uuid.UUID, messageID int64) ([]*domain.DiscoveredLink, error)
}

// LinkContentRepository stores raw crawled page payloads.
type LinkContentRepository interface {
	Save(ctx context.Context, content *domain.LinkContent) error
	GetByLinkID(ctx context.Context, linkID int64) (*domain.LinkContent, error)
}

// DomainFilterRepository persists per-user sender domain rules.
type DomainFilterRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DomainFilter, error)
	Create(ctx context.Context, filter *domain.DomainFilter) error
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}

// StateStore holds short-lived OAuth state nonces.
type StateStore interface {
	// Save stores the state with its TTL.
	Save(ctx context.Context, state string, userID uuid.UUID) error

	// Consume validates and deletes the state in one step, returning
	// the user it was issued for.
	Consume(ctx context.Context, state string) (uuid.UUID, error)
}

// LabelSyncJob asks the worker to mirror ingestion results back to the
// provider mailbox.
type LabelSyncJob struct {
	UserID     uuid.UUID `json:"user_id"`
	ProviderID string    `json:"provider_id"`
	LabelName  string    `json:"label_name"`
	MarkRead   bool      `json:"mark_read"`
}

// LabelSyncQueue hands label jobs to the background worker.
type LabelSyncQueue interface {
	Enqueue(ctx context.Context, job *LabelSyncJob) error
}

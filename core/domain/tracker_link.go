package domain

import (
	"time"

	"github.com/google/uuid"
)

// CrawlStatus tracks the lifecycle of a discovered job posting link.
type CrawlStatus string

const (
	CrawlPending CrawlStatus = "PENDING"
	CrawlFetched CrawlStatus = "FETCHED"
	CrawlError   CrawlStatus = "ERROR"
)

// DiscoveredLink is a job posting URL extracted from an ingested
// message. Unique per (message, URL); re-ingesting the same message
// never duplicates links.
type DiscoveredLink struct {
	ID        int64       `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	MessageID int64       `json:"message_id"`
	URL       string      `json:"url"`
	Status    CrawlStatus `json:"status"`

	// Filled after a successful crawl
	Confidence       int     `json:"confidence"` // 0..100
	ExtractedCompany *string `json:"extracted_company,omitempty"`
	ExtractedRole    *string `json:"extracted_role,omitempty"`
	ErrorMessage     *string `json:"error_message,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

// LinkContent is the raw page payload stored for a fetched link.
type LinkContent struct {
	LinkID    int64     `json:"link_id" bson:"link_id"`
	URL       string    `json:"url" bson:"url"`
	HTML      string    `json:"html" bson:"html"`
	Text      string    `json:"text" bson:"text"`
	FetchedAt time.Time `json:"fetched_at" bson:"fetched_at"`
}

// DomainFilter is a per-user allow or block rule applied to sender
// domains before classification.
type DomainFilter struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Domain    string    `json:"domain"`
	Allow     bool      `json:"allow"`
	CreatedAt time.Time `json:"created_at"`
}

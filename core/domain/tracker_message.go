package domain

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	MailProviderGmail Provider = "google"
)

// MessageCategory is the coarse bucket assigned during ingestion.
type MessageCategory string

const (
	CategoryProspectSingle      MessageCategory = "PROSPECT_SINGLE"
	CategoryJobLinkList         MessageCategory = "JOB_LINK_LIST"
	CategoryApplicationResponse MessageCategory = "APPLICATION_RESPONSE"
)

// MessageSubCategory refines APPLICATION_RESPONSE messages.
type MessageSubCategory string

const (
	SubCategoryDenial     MessageSubCategory = "DENIAL"
	SubCategoryInterested MessageSubCategory = "INTERESTED"
)

// Message is a mailbox message persisted after ingestion. Header fields,
// both body variants and labels land in a single row so a message is
// either fully stored or not stored at all.
type Message struct {
	ID         int64     `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Provider   Provider  `json:"provider"`
	ProviderID string    `json:"provider_id"`
	ThreadID   string    `json:"thread_id"`

	// Headers
	Subject     string    `json:"subject"`
	FromEmail   string    `json:"from_email"`
	FromName    *string   `json:"from_name,omitempty"`
	ToEmails    []string  `json:"to_emails"`
	Snippet     string    `json:"snippet"`
	ReceivedAt  time.Time `json:"received_at"`

	// Body
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html"`

	// Provider labels as seen at fetch time
	Labels []string `json:"labels,omitempty"`

	// Classification
	Category    *MessageCategory    `json:"category,omitempty"`
	SubCategory *MessageSubCategory `json:"sub_category,omitempty"`

	// Link to a tracked application once the user processes the message
	ApplicationID *int64 `json:"application_id,omitempty"`
	Processed     bool   `json:"processed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageFilter narrows list queries.
type MessageFilter struct {
	UserID      uuid.UUID
	Category    *MessageCategory
	SubCategory *MessageSubCategory
	Processed   *bool
	Search      string
	Limit       int
	Offset      int
}

// MessageListItem is a lightweight DTO for list views.
type MessageListItem struct {
	ID          int64               `json:"id"`
	ProviderID  string              `json:"provider_id"`
	Subject     string              `json:"subject"`
	FromEmail   string              `json:"from_email"`
	FromName    *string             `json:"from_name,omitempty"`
	Snippet     string              `json:"snippet"`
	Category    *MessageCategory    `json:"category,omitempty"`
	SubCategory *MessageSubCategory `json:"sub_category,omitempty"`
	Processed   bool                `json:"processed"`
	ReceivedAt  time.Time           `json:"received_at"`
}

// ToListItem converts a Message to a MessageListItem.
func (m *Message) ToListItem() *MessageListItem {
	return &MessageListItem{
		ID:          m.ID,
		ProviderID:  m.ProviderID,
		Subject:     m.Subject,
		FromEmail:   m.FromEmail,
		FromName:    m.FromName,
		Snippet:     m.Snippet,
		Category:    m.Category,
		SubCategory: m.SubCategory,
		Processed:   m.Processed,
		ReceivedAt:  m.ReceivedAt,
	}
}

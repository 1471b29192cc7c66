// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// MailProviderPort defines the outbound port for external mail providers.
type MailProviderPort interface {
	GetProviderType() string

	MailAuthenticator
	MailMessageReader
	MailMessageModifier
	MailLabelManager

	GetProfile(ctx context.Context, token *oauth2.Token) (*ProviderProfile, error)
}

// MailAuthenticator handles OAuth authentication.
type MailAuthenticator interface {
	GetAuthURL(state string) string
	ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error)
	RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// MailMessageReader handles searching and reading messages.
type MailMessageReader interface {
	// Search returns message IDs matching the provider query, newest first.
	Search(ctx context.Context, token *oauth2.Token, opts *ProviderSearchOptions) (*ProviderSearchResult, error)

	// GetMessage returns full headers, labels and decoded bodies.
	GetMessage(ctx context.Context, token *oauth2.Token, externalID string) (*ProviderMailMessage, error)

	// GetMessages fetches several messages concurrently. Messages that
	// fail to fetch are dropped from the result, not reported as errors.
	GetMessages(ctx context.Context, token *oauth2.Token, externalIDs []string) ([]*ProviderMailMessage, error)
}

// MailMessageModifier handles modifying messages.
type MailMessageModifier interface {
	MarkAsRead(ctx context.Context, token *oauth2.Token, externalID string) error
}

// MailLabelManager handles label operations.
type MailLabelManager interface {
	ListLabels(ctx context.Context, token *oauth2.Token) ([]ProviderMailLabel, error)
	CreateLabel(ctx context.Context, token *oauth2.Token, name string) (*ProviderMailLabel, error)
	AddLabel(ctx context.Context, token *oauth2.Token, messageID, labelID string) error
}

// ProviderSearchOptions represents search options.
type ProviderSearchOptions struct {
	Query      string
	MaxResults int64
	PageToken  string
}

// ProviderSearchResult represents a page of matching message IDs.
type ProviderSearchResult struct {
	IDs           []string
	NextPageToken string
	TotalCount    int64
}

// ProviderMailMessage represents a mail message from the provider.
type ProviderMailMessage struct {
	ExternalID       string
	ExternalThreadID string

	Subject string
	Snippet string
	From    ProviderEmailAddress
	To      []ProviderEmailAddress

	Date   time.Time
	IsRead bool
	Labels []string

	// Decoded bodies; empty when the payload carries no such part or
	// the part could not be decoded.
	BodyText string
	BodyHTML string
}

// ProviderEmailAddress represents an email address.
type ProviderEmailAddress struct {
	Name  string
	Email string
}

// ProviderMailLabel represents a provider label.
type ProviderMailLabel struct {
	ExternalID string
	Name       string
	Type       string
}

// ProviderProfile represents the mailbox owner profile.
type ProviderProfile struct {
	Email     string
	Name      string
	HistoryID uint64
}

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRevoked      ProviderErrorCode = "grant_revoked"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// IsProviderErrCode reports whether err is a ProviderError with the code.
func IsProviderErrCode(err error, code ProviderErrorCode) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsRetryable reports whether err is a retryable provider error.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

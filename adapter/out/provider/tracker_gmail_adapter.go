// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"tracker_server/core/port/out"
	"tracker_server/pkg/httputil"
	"tracker_server/pkg/logger"
)

// GmailAdapter implements out.MailProviderPort for Gmail.
type GmailAdapter struct {
	config       *oauth2.Config
	cb           *gobreaker.CircuitBreaker
	httpClient   *http.Client
	fetchWorkers int
	log          *logger.Logger
}

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// FetchWorkers caps concurrent message detail fetches. Zero means
	// the default of 5.
	FetchWorkers int
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg *GmailConfig) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailModifyScope,
			gmail.GmailLabelsScope,
		},
		Endpoint: google.Endpoint,
	}

	lg := logger.Default().WithField("adapter", "gmail")

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			_, ok := err.(*nonCircuitError)
			return ok
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	workers := cfg.FetchWorkers
	if workers <= 0 {
		workers = 5
	}

	return &GmailAdapter{
		config:       config,
		cb:           gobreaker.NewCircuitBreaker(cbSettings),
		httpClient:   httputil.NewClient(httputil.GmailClientConfig()),
		fetchWorkers: workers,
		log:          lg,
	}
}

// GetProviderType returns the provider type.
func (a *GmailAdapter) GetProviderType() string {
	return "gmail"
}

// GetAuthURL returns the OAuth authorization URL. ApprovalForce is
// required so Google re-issues a refresh token on reconnect.
func (a *GmailAdapter) GetAuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeToken exchanges an authorization code for a token.
func (a *GmailAdapter) ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, a.wrapAuthError(err, "failed to exchange token")
	}
	return token, nil
}

// RefreshToken refreshes the access token against the token endpoint.
func (a *GmailAdapter) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	src := a.config.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, a.httpClient), token)
	newToken, err := src.Token()
	if err != nil {
		return nil, a.wrapAuthError(err, "failed to refresh token")
	}
	return newToken, nil
}

// Search returns message IDs matching the Gmail query.
func (a *GmailAdapter) Search(ctx context.Context, token *oauth2.Token, opts *out.ProviderSearchOptions) (*out.ProviderSearchResult, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List("me").Q(opts.Query).Context(ctx)
	if opts.MaxResults > 0 {
		call = call.MaxResults(opts.MaxResults)
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	var resp *gmail.ListMessagesResponse
	cbErr := a.executeWithCircuitBreaker(ctx, "messages.list", func() error {
		var doErr error
		resp, doErr = call.Do()
		return doErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to list messages")
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}

	return &out.ProviderSearchResult{
		IDs:           ids,
		NextPageToken: resp.NextPageToken,
		TotalCount:    int64(resp.ResultSizeEstimate),
	}, nil
}

// GetMessage fetches one message with the full payload and decodes its
// bodies.
func (a *GmailAdapter) GetMessage(ctx context.Context, token *oauth2.Token, externalID string) (*out.ProviderMailMessage, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	cbErr := a.executeWithCircuitBreaker(ctx, "messages.get", func() error {
		var doErr error
		msg, doErr = svc.Users.Messages.Get("me", externalID).Format("full").Context(ctx).Do()
		return doErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get message")
	}

	converted := a.convertMessage(msg)
	return &converted, nil
}

// GetMessages fetches message details in parallel. Failed fetches are
// dropped so one bad message never sinks the batch.
func (a *GmailAdapter) GetMessages(ctx context.Context, token *oauth2.Token, externalIDs []string) ([]*out.ProviderMailMessage, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	const perMessageTimeout = 15 * time.Second

	type result struct {
		index int
		msg   *out.ProviderMailMessage
		err   error
	}

	results := make(chan result, len(externalIDs))
	sem := make(chan struct{}, a.fetchWorkers)

	for i, id := range externalIDs {
		go func(idx int, id string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{index: idx, err: ctx.Err()}
				return
			}

			msgCtx, cancel := context.WithTimeout(ctx, perMessageTimeout)
			defer cancel()

			var msg *gmail.Message
			cbErr := a.executeWithCircuitBreaker(msgCtx, "messages.get", func() error {
				var doErr error
				msg, doErr = svc.Users.Messages.Get("me", id).Format("full").Context(msgCtx).Do()
				return doErr
			})
			if cbErr != nil {
				results <- result{index: idx, err: cbErr}
				return
			}
			converted := a.convertMessage(msg)
			results <- result{index: idx, msg: &converted}
		}(i, id)
	}

	ordered := make([]*out.ProviderMailMessage, len(externalIDs))
	collected := 0
	for collected < len(externalIDs) {
		select {
		case r := <-results:
			collected++
			if r.err != nil {
				a.log.WithError(r.err).Warn("dropping message %s from batch", externalIDs[r.index])
				continue
			}
			ordered[r.index] = r.msg
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	filtered := make([]*out.ProviderMailMessage, 0, len(ordered))
	for _, msg := range ordered {
		if msg != nil {
			filtered = append(filtered, msg)
		}
	}
	return filtered, nil
}

// MarkAsRead removes the UNREAD label.
func (a *GmailAdapter) MarkAsRead(ctx context.Context, token *oauth2.Token, externalID string) error {
	return a.modifyLabels(ctx, token, externalID, nil, []string{"UNREAD"})
}

// ListLabels returns all labels in the mailbox.
func (a *GmailAdapter) ListLabels(ctx context.Context, token *oauth2.Token) ([]out.ProviderMailLabel, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var resp *gmail.ListLabelsResponse
	cbErr := a.executeWithCircuitBreaker(ctx, "labels.list", func() error {
		var doErr error
		resp, doErr = svc.Users.Labels.List("me").Context(ctx).Do()
		return doErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to list labels")
	}

	labels := make([]out.ProviderMailLabel, len(resp.Labels))
	for i, l := range resp.Labels {
		labels[i] = out.ProviderMailLabel{
			ExternalID: l.Id,
			Name:       l.Name,
			Type:       l.Type,
		}
	}
	return labels, nil
}

// CreateLabel creates a user label visible in both label and message
// lists.
func (a *GmailAdapter) CreateLabel(ctx context.Context, token *oauth2.Token, name string) (*out.ProviderMailLabel, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	label := &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}

	var created *gmail.Label
	cbErr := a.executeWithCircuitBreaker(ctx, "labels.create", func() error {
		var doErr error
		created, doErr = svc.Users.Labels.Create("me", label).Context(ctx).Do()
		return doErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to create label")
	}

	return &out.ProviderMailLabel{
		ExternalID: created.Id,
		Name:       created.Name,
		Type:       created.Type,
	}, nil
}

// AddLabel attaches a label to a message.
func (a *GmailAdapter) AddLabel(ctx context.Context, token *oauth2.Token, messageID, labelID string) error {
	return a.modifyLabels(ctx, token, messageID, []string{labelID}, nil)
}

// GetProfile returns the mailbox owner profile.
func (a *GmailAdapter) GetProfile(ctx context.Context, token *oauth2.Token) (*out.ProviderProfile, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var profile *gmail.Profile
	cbErr := a.executeWithCircuitBreaker(ctx, "users.getProfile", func() error {
		var doErr error
		profile, doErr = svc.Users.GetProfile("me").Context(ctx).Do()
		return doErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get profile")
	}

	return &out.ProviderProfile{
		Email:     profile.EmailAddress,
		HistoryID: profile.HistoryId,
	}, nil
}

func (a *GmailAdapter) getService(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	// Route API and token traffic through the pooled Gmail client.
	poolCtx := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	authed := oauth2.NewClient(poolCtx, a.config.TokenSource(poolCtx, token))

	return gmail.NewService(ctx, option.WithHTTPClient(authed))
}

func (a *GmailAdapter) modifyLabels(ctx context.Context, token *oauth2.Token, messageID string, addLabels, removeLabels []string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    addLabels,
		RemoveLabelIds: removeLabels,
	}

	cbErr := a.executeWithCircuitBreaker(ctx, "messages.modify", func() error {
		_, doErr := svc.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
		return doErr
	})
	if cbErr != nil {
		return a.wrapError(cbErr, "failed to modify labels")
	}
	return nil
}

// executeWithCircuitBreaker wraps an API call with circuit breaker
// protection so a Gmail outage fails fast instead of piling up calls.
func (a *GmailAdapter) executeWithCircuitBreaker(ctx context.Context, operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					// Server-side trouble trips the breaker
					return nil, err
				case 400, 401, 403, 404:
					// Client errors must not open the circuit
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}

	if err != nil {
		a.log.WithError(err).
			WithField("operation", operation).
			WithField("state", a.cb.State().String()).
			Warn("gmail call failed")
	}

	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (a *GmailAdapter) IsCircuitOpen() bool {
	return a.cb.State() == gobreaker.StateOpen
}

func (a *GmailAdapter) convertMessage(msg *gmail.Message) out.ProviderMailMessage {
	result := out.ProviderMailMessage{
		ExternalID:       msg.Id,
		ExternalThreadID: msg.ThreadId,
		Snippet:          msg.Snippet,
		Labels:           msg.LabelIds,
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				result.Subject = h.Value
			case "From":
				result.From = parseEmailAddress(h.Value)
			case "To":
				result.To = parseEmailAddresses(h.Value)
			case "Date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					result.Date = t
				}
			}
		}

		body := ExtractBody(msg.Payload)
		result.BodyText = body.Text
		result.BodyHTML = body.HTML
	}

	if result.Date.IsZero() && msg.InternalDate > 0 {
		result.Date = time.UnixMilli(msg.InternalDate)
	}

	result.IsRead = !containsLabel(msg.LabelIds, "UNREAD")

	return result
}

// wrapAuthError classifies token endpoint failures. A rejected grant
// means the user revoked access and must reauthorize.
func (a *GmailAdapter) wrapAuthError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	if strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "invalid_client") ||
		strings.Contains(msg, "Token has been expired or revoked") {
		return out.NewProviderError("gmail", out.ProviderErrRevoked, "grant revoked", err, false)
	}

	if rerr, ok := err.(*oauth2.RetrieveError); ok {
		if rerr.Response != nil && rerr.Response.StatusCode >= 500 {
			return out.NewProviderError("gmail", out.ProviderErrServer, "token endpoint error", err, true)
		}
		return out.NewProviderError("gmail", out.ProviderErrAuth, defaultMsg, err, false)
	}

	// No HTTP response at all means a transport failure
	return out.NewProviderError("gmail", out.ProviderErrNetwork, defaultMsg, err, true)
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrTokenExpired, "token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError("gmail", out.ProviderErrRateLimit, "rate limit exceeded", err, true)
			}
			return out.NewProviderError("gmail", out.ProviderErrAuth, "access denied", err, false)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "not found", err, false)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "server error", err, true)
		}
	}

	return out.NewProviderError("gmail", out.ProviderErrServer, defaultMsg, err, true)
}

func parseEmailAddress(s string) out.ProviderEmailAddress {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return out.ProviderEmailAddress{Email: s}
	}
	return out.ProviderEmailAddress{
		Name:  addr.Name,
		Email: addr.Address,
	}
}

func parseEmailAddresses(s string) []out.ProviderEmailAddress {
	list, err := mail.ParseAddressList(s)
	if err != nil {
		if s != "" {
			return []out.ProviderEmailAddress{{Email: s}}
		}
		return nil
	}

	result := make([]out.ProviderEmailAddress, len(list))
	for i, addr := range list {
		result[i] = out.ProviderEmailAddress{
			Name:  addr.Name,
			Email: addr.Address,
		}
	}
	return result
}

func containsLabel(labels []string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}

var _ out.MailProviderPort = (*GmailAdapter)(nil)

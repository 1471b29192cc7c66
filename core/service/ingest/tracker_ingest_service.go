package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/core/service/auth"
	"tracker_server/core/service/classify"
	"tracker_server/pkg/apperr"
	"tracker_server/pkg/logger"
)

// Options controls one ingestion run.
type Options struct {
	DaysBack   int
	MaxResults int64
	Keywords   []string
}

// Result summarizes one ingestion run. Warnings carry non-fatal
// failures (label sync handoff, single-message errors) that must not
// abort the run.
type Result struct {
	Fetched    int      `json:"fetched"`
	Saved      int      `json:"saved"`
	Duplicates int      `json:"duplicates"`
	Filtered   int      `json:"filtered"`
	Links      int      `json:"links"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Service coordinates a full ingestion pass: search, fetch, classify,
// persist, and hand label write-backs to the background queue.
type Service struct {
	tokens   *auth.TokenService
	provider out.MailProviderPort
	messages out.MessageRepository
	links    out.LinkRepository
	filters  out.DomainFilterRepository
	gate     *classify.Gate
	queue    out.LabelSyncQueue

	labelName string
	now       func() time.Time
	log       *logger.Logger
}

// Config wires a Service.
type Config struct {
	Tokens    *auth.TokenService
	Provider  out.MailProviderPort
	Messages  out.MessageRepository
	Links     out.LinkRepository
	Filters   out.DomainFilterRepository
	Queue     out.LabelSyncQueue
	LabelName string
}

// NewService creates a new ingestion Service.
func NewService(cfg Config) *Service {
	labelName := cfg.LabelName
	if labelName == "" {
		labelName = "Job Tracker/Processed"
	}
	return &Service{
		tokens:    cfg.Tokens,
		provider:  cfg.Provider,
		messages:  cfg.Messages,
		links:     cfg.Links,
		filters:   cfg.Filters,
		gate:      classify.NewGate(),
		queue:     cfg.Queue,
		labelName: labelName,
		now:       time.Now,
		log:       logger.Default().WithField("service", "ingest"),
	}
}

// Run executes one ingestion pass for a user. Re-running over the same
// window is safe: already stored messages surface as duplicates, and
// their links are not re-created.
func (s *Service) Run(ctx context.Context, userID uuid.UUID, opts Options) (*Result, error) {
	cred, err := s.tokens.EnsureValid(ctx, userID, domain.MailProviderGmail)
	if err != nil {
		return nil, err
	}
	token := auth.Token(cred)

	query := BuildQuery(opts.Keywords, SinceDate(s.now(), opts.DaysBack))

	search, err := s.provider.Search(ctx, token, &out.ProviderSearchOptions{
		Query:      query,
		MaxResults: opts.MaxResults,
	})
	if err != nil {
		return nil, mapProviderError(err)
	}

	msgs, err := s.provider.GetMessages(ctx, token, search.IDs)
	if err != nil {
		return nil, mapProviderError(err)
	}

	blocked, err := s.blockedDomains(ctx, userID)
	if err != nil {
		return nil, apperr.DatabaseError("list domain filters", err)
	}

	result := &Result{Fetched: len(msgs)}

	for _, pm := range msgs {
		if isBlockedSender(pm.From.Email, blocked) {
			result.Filtered++
			continue
		}

		links := classify.ExtractLinks(pm.BodyText, pm.BodyHTML)
		verdict := s.gate.Classify(pm.Subject, pm.BodyText, len(links))
		if !verdict.JobRelated {
			result.Filtered++
			continue
		}

		msg := s.toMessage(userID, pm, verdict)

		inserted, err := s.messages.Insert(ctx, msg)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("failed to store message %s: %v", pm.ExternalID, err))
			continue
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		result.Saved++

		result.Links += s.storeLinks(ctx, userID, msg.ID, links, result)

		// Fire and forget: a full mailbox write-back failure must not
		// fail the ingestion
		if err := s.queue.Enqueue(ctx, &out.LabelSyncJob{
			UserID:     userID,
			ProviderID: pm.ExternalID,
			LabelName:  s.labelName,
		}); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("label sync not scheduled for %s: %v", pm.ExternalID, err))
		}
	}

	s.log.WithField("user_id", userID.String()).
		Info("ingestion done: fetched=%d saved=%d duplicates=%d filtered=%d",
			result.Fetched, result.Saved, result.Duplicates, result.Filtered)

	return result, nil
}

func (s *Service) toMessage(userID uuid.UUID, pm *out.ProviderMailMessage, verdict classify.Result) *domain.Message {
	msg := &domain.Message{
		UserID:     userID,
		Provider:   domain.MailProviderGmail,
		ProviderID: pm.ExternalID,
		ThreadID:   pm.ExternalThreadID,
		Subject:    pm.Subject,
		FromEmail:  pm.From.Email,
		Snippet:    pm.Snippet,
		BodyText:   pm.BodyText,
		BodyHTML:   pm.BodyHTML,
		Labels:     pm.Labels,
		ReceivedAt: pm.Date,
	}

	if pm.From.Name != "" {
		name := pm.From.Name
		msg.FromName = &name
	}
	for _, to := range pm.To {
		msg.ToEmails = append(msg.ToEmails, to.Email)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}

	category := verdict.Category
	msg.Category = &category
	msg.SubCategory = verdict.SubCategory

	return msg
}

func (s *Service) storeLinks(ctx context.Context, userID uuid.UUID, messageID int64, urls []string, result *Result) int {
	stored := 0
	for _, u := range urls {
		inserted, err := s.links.Insert(ctx, &domain.DiscoveredLink{
			UserID:    userID,
			MessageID: messageID,
			URL:       u,
			Status:    domain.CrawlPending,
		})
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("failed to store link %s: %v", u, err))
			continue
		}
		if inserted {
			stored++
		}
	}
	return stored
}

func (s *Service) blockedDomains(ctx context.Context, userID uuid.UUID) (map[string]struct{}, error) {
	filters, err := s.filters.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	blocked := make(map[string]struct{})
	for _, f := range filters {
		if !f.Allow {
			blocked[strings.ToLower(f.Domain)] = struct{}{}
		}
	}
	return blocked, nil
}

func isBlockedSender(email string, blocked map[string]struct{}) bool {
	if len(blocked) == 0 {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	_, ok := blocked[strings.ToLower(email[at+1:])]
	return ok
}

// mapProviderError translates provider failures into the application
// error taxonomy.
func mapProviderError(err error) error {
	switch {
	case out.IsProviderErrCode(err, out.ProviderErrRevoked),
		out.IsProviderErrCode(err, out.ProviderErrTokenExpired):
		return apperr.CredentialRevoked("gmail", err)
	case out.IsProviderErrCode(err, out.ProviderErrNotFound):
		return apperr.NotFound("message")
	case out.IsRetryable(err):
		return apperr.TransientProvider("gmail", err)
	default:
		return apperr.TransientProvider("gmail", err)
	}
}

package ingest

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/core/service/auth"
	"tracker_server/pkg/logger"
)

// LabelSyncService applies the processed label (and optional read
// marker) to messages in the user's mailbox. It runs from the queue
// consumer, decoupled from ingestion.
type LabelSyncService struct {
	tokens   *auth.TokenService
	provider out.MailProviderPort
	log      *logger.Logger

	mu       sync.Mutex
	labelIDs map[uuid.UUID]string
}

// NewLabelSyncService creates a new LabelSyncService.
func NewLabelSyncService(tokens *auth.TokenService, provider out.MailProviderPort) *LabelSyncService {
	return &LabelSyncService{
		tokens:   tokens,
		provider: provider,
		log:      logger.Default().WithField("service", "label_sync"),
		labelIDs: make(map[uuid.UUID]string),
	}
}

// Apply labels one message. A returned error leaves the job pending so
// the consumer can redeliver it; permanent failures are logged and
// swallowed because the message itself is already stored.
func (s *LabelSyncService) Apply(ctx context.Context, job *out.LabelSyncJob) error {
	cred, err := s.tokens.EnsureValid(ctx, job.UserID, domain.MailProviderGmail)
	if err != nil {
		// Without a usable credential redelivery cannot succeed either
		s.log.WithError(err).WithField("user_id", job.UserID.String()).
			Warn("label sync skipped: no valid credential")
		return nil
	}
	token := auth.Token(cred)

	labelID, err := s.labelID(ctx, job, token)
	if err != nil {
		if out.IsRetryable(err) {
			return err
		}
		s.log.WithError(err).Warn("label sync skipped: label unavailable")
		return nil
	}

	if err := s.provider.AddLabel(ctx, token, job.ProviderID, labelID); err != nil {
		if out.IsRetryable(err) {
			return err
		}
		s.log.WithError(err).WithField("provider_id", job.ProviderID).
			Warn("failed to add label")
	}

	if job.MarkRead {
		if err := s.provider.MarkAsRead(ctx, token, job.ProviderID); err != nil {
			if out.IsRetryable(err) {
				return err
			}
			s.log.WithError(err).WithField("provider_id", job.ProviderID).
				Warn("failed to mark message read")
		}
	}

	return nil
}

// labelID resolves the processed label for the user's mailbox, creating
// it on first use. Label IDs are mailbox scoped, so the cache is keyed
// by user.
func (s *LabelSyncService) labelID(ctx context.Context, job *out.LabelSyncJob, token *oauth2.Token) (string, error) {
	s.mu.Lock()
	cached, ok := s.labelIDs[job.UserID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	labels, err := s.provider.ListLabels(ctx, token)
	if err != nil {
		return "", err
	}

	var id string
	for _, l := range labels {
		if l.Name == job.LabelName {
			id = l.ExternalID
			break
		}
	}

	if id == "" {
		created, err := s.provider.CreateLabel(ctx, token, job.LabelName)
		if err != nil {
			return "", err
		}
		id = created.ExternalID
	}

	s.mu.Lock()
	s.labelIDs[job.UserID] = id
	s.mu.Unlock()

	return id, nil
}

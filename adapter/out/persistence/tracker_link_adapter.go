package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
)

// LinkAdapter implements out.LinkRepository using PostgreSQL.
type LinkAdapter struct {
	db *sqlx.DB
}

// NewLinkAdapter creates a new LinkAdapter.
func NewLinkAdapter(db *sqlx.DB) *LinkAdapter {
	return &LinkAdapter{db: db}
}

const linkSelectColumns = `
	id, user_id, message_id, url, status, confidence,
	extracted_company, extracted_role, error_message,
	created_at, fetched_at`

type linkRow struct {
	ID        int64     `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	MessageID int64     `db:"message_id"`
	URL       string    `db:"url"`
	Status    string    `db:"status"`

	Confidence       int            `db:"confidence"`
	ExtractedCompany sql.NullString `db:"extracted_company"`
	ExtractedRole    sql.NullString `db:"extracted_role"`
	ErrorMessage     sql.NullString `db:"error_message"`

	CreatedAt time.Time    `db:"created_at"`
	FetchedAt sql.NullTime `db:"fetched_at"`
}

func (r *linkRow) toDomain() *domain.DiscoveredLink {
	link := &domain.DiscoveredLink{
		ID:         r.ID,
		UserID:     r.UserID,
		MessageID:  r.MessageID,
		URL:        r.URL,
		Status:     domain.CrawlStatus(r.Status),
		Confidence: r.Confidence,
		CreatedAt:  r.CreatedAt,
	}

	if r.ExtractedCompany.Valid {
		link.ExtractedCompany = &r.ExtractedCompany.String
	}
	if r.ExtractedRole.Valid {
		link.ExtractedRole = &r.ExtractedRole.String
	}
	if r.ErrorMessage.Valid {
		link.ErrorMessage = &r.ErrorMessage.String
	}
	if r.FetchedAt.Valid {
		link.FetchedAt = &r.FetchedAt.Time
	}

	return link
}

// Insert stores a discovered link. The unique constraint on
// (message_id, url) makes re-ingestion a no-op.
func (a *LinkAdapter) Insert(ctx context.Context, link *domain.DiscoveredLink) (bool, error) {
	query := `
		INSERT INTO discovered_links (user_id, message_id, url, status, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, url) DO NOTHING
		RETURNING id`

	err := a.db.QueryRowContext(ctx, query,
		link.UserID,
		link.MessageID,
		link.URL,
		string(domain.CrawlPending),
		link.Confidence,
		time.Now(),
	).Scan(&link.ID)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListPending returns links awaiting a crawl, oldest first.
func (a *LinkAdapter) ListPending(ctx context.Context, limit int) ([]*domain.DiscoveredLink, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []linkRow
	query := `
		SELECT ` + linkSelectColumns + `
		FROM discovered_links
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	if err := a.db.SelectContext(ctx, &rows, query, string(domain.CrawlPending), limit); err != nil {
		return nil, err
	}

	links := make([]*domain.DiscoveredLink, 0, len(rows))
	for i := range rows {
		links = append(links, rows[i].toDomain())
	}
	return links, nil
}

// MarkFetched records a successful crawl.
func (a *LinkAdapter) MarkFetched(ctx context.Context, id int64, confidence int, company, role *string) error {
	var companyVal, roleVal sql.NullString
	if company != nil {
		companyVal = sql.NullString{String: *company, Valid: true}
	}
	if role != nil {
		roleVal = sql.NullString{String: *role, Valid: true}
	}

	query := `
		UPDATE discovered_links
		SET status = $1, confidence = $2, extracted_company = $3,
		    extracted_role = $4, error_message = NULL, fetched_at = $5
		WHERE id = $6`

	_, err := a.db.ExecContext(ctx, query,
		string(domain.CrawlFetched), confidence, companyVal, roleVal, time.Now(), id)
	return err
}

// MarkError records a failed crawl.
func (a *LinkAdapter) MarkError(ctx context.Context, id int64, message string) error {
	query := `
		UPDATE discovered_links
		SET status = $1, error_message = $2, fetched_at = $3
		WHERE id = $4`

	_, err := a.db.ExecContext(ctx, query,
		string(domain.CrawlError), message, time.Now(), id)
	return err
}

// ListByMessage returns all links discovered in one message.
func (a *LinkAdapter) ListByMessage(ctx context.Context, userID uuid.UUID, messageID int64) ([]*domain.DiscoveredLink, error) {
	var rows []linkRow
	query := `
		SELECT ` + linkSelectColumns + `
		FROM discovered_links
		WHERE user_id = $1 AND message_id = $2
		ORDER BY created_at ASC`

	if err := a.db.SelectContext(ctx, &rows, query, userID, messageID); err != nil {
		return nil, err
	}

	links := make([]*domain.DiscoveredLink, 0, len(rows))
	for i := range rows {
		links = append(links, rows[i].toDomain())
	}
	return links, nil
}

var _ out.LinkRepository = (*LinkAdapter)(nil)

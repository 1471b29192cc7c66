package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
)

// MessageAdapter implements out.MessageRepository using PostgreSQL.
type MessageAdapter struct {
	db *sqlx.DB
}

// NewMessageAdapter creates a new MessageAdapter.
func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

const messageSelectColumns = `
	id, user_id, provider, provider_id, thread_id,
	subject, from_email, from_name, to_emails, snippet,
	body_text, body_html, labels,
	category, sub_category, application_id, processed,
	received_at, created_at, updated_at`

type messageRow struct {
	ID         int64     `db:"id"`
	UserID     uuid.UUID `db:"user_id"`
	Provider   string    `db:"provider"`
	ProviderID string    `db:"provider_id"`
	ThreadID   string    `db:"thread_id"`

	Subject   string         `db:"subject"`
	FromEmail string         `db:"from_email"`
	FromName  sql.NullString `db:"from_name"`
	ToEmails  pq.StringArray `db:"to_emails"`
	Snippet   string         `db:"snippet"`

	BodyText string         `db:"body_text"`
	BodyHTML string         `db:"body_html"`
	Labels   pq.StringArray `db:"labels"`

	Category      sql.NullString `db:"category"`
	SubCategory   sql.NullString `db:"sub_category"`
	ApplicationID sql.NullInt64  `db:"application_id"`
	Processed     bool           `db:"processed"`

	ReceivedAt time.Time `db:"received_at"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r *messageRow) toDomain() *domain.Message {
	msg := &domain.Message{
		ID:         r.ID,
		UserID:     r.UserID,
		Provider:   domain.Provider(r.Provider),
		ProviderID: r.ProviderID,
		ThreadID:   r.ThreadID,
		Subject:    r.Subject,
		FromEmail:  r.FromEmail,
		ToEmails:   r.ToEmails,
		Snippet:    r.Snippet,
		BodyText:   r.BodyText,
		BodyHTML:   r.BodyHTML,
		Labels:     r.Labels,
		Processed:  r.Processed,
		ReceivedAt: r.ReceivedAt,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}

	if r.FromName.Valid {
		msg.FromName = &r.FromName.String
	}
	if r.Category.Valid {
		c := domain.MessageCategory(r.Category.String)
		msg.Category = &c
	}
	if r.SubCategory.Valid {
		s := domain.MessageSubCategory(r.SubCategory.String)
		msg.SubCategory = &s
	}
	if r.ApplicationID.Valid {
		msg.ApplicationID = &r.ApplicationID.Int64
	}

	return msg
}

// Insert stores a message in a single row. The unique constraint on
// (user_id, provider_id) serializes concurrent ingestions of the same
// message: the loser sees no returned row and reports inserted=false.
func (a *MessageAdapter) Insert(ctx context.Context, msg *domain.Message) (bool, error) {
	now := time.Now()

	var category, subCategory sql.NullString
	if msg.Category != nil {
		category = sql.NullString{String: string(*msg.Category), Valid: true}
	}
	if msg.SubCategory != nil {
		subCategory = sql.NullString{String: string(*msg.SubCategory), Valid: true}
	}
	var fromName sql.NullString
	if msg.FromName != nil {
		fromName = sql.NullString{String: *msg.FromName, Valid: true}
	}

	query := `
		INSERT INTO messages (user_id, provider, provider_id, thread_id,
		                      subject, from_email, from_name, to_emails, snippet,
		                      body_text, body_html, labels,
		                      category, sub_category, processed,
		                      received_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, false, $15, $16, $16)
		ON CONFLICT (user_id, provider_id) DO NOTHING
		RETURNING id`

	err := a.db.QueryRowContext(ctx, query,
		msg.UserID,
		string(msg.Provider),
		msg.ProviderID,
		msg.ThreadID,
		msg.Subject,
		msg.FromEmail,
		fromName,
		pq.StringArray(msg.ToEmails),
		msg.Snippet,
		msg.BodyText,
		msg.BodyHTML,
		pq.StringArray(msg.Labels),
		category,
		subCategory,
		msg.ReceivedAt,
		now,
	).Scan(&msg.ID)

	if errors.Is(err, sql.ErrNoRows) {
		// Another ingestion won the race or the message was stored on
		// a previous run
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

// GetByID returns one of the user's messages.
func (a *MessageAdapter) GetByID(ctx context.Context, userID uuid.UUID, id int64) (*domain.Message, error) {
	var row messageRow
	query := `
		SELECT ` + messageSelectColumns + `
		FROM messages
		WHERE user_id = $1 AND id = $2`

	if err := a.db.GetContext(ctx, &row, query, userID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// List returns lightweight list items matching the filter.
func (a *MessageAdapter) List(ctx context.Context, filter *domain.MessageFilter) ([]*domain.MessageListItem, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT ` + messageSelectColumns + `
		FROM messages
		WHERE user_id = $1`)

	args := []any{filter.UserID}

	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		fmt.Fprintf(&sb, " AND category = $%d", len(args))
	}
	if filter.SubCategory != nil {
		args = append(args, string(*filter.SubCategory))
		fmt.Fprintf(&sb, " AND sub_category = $%d", len(args))
	}
	if filter.Processed != nil {
		args = append(args, *filter.Processed)
		fmt.Fprintf(&sb, " AND processed = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		fmt.Fprintf(&sb, " AND (subject ILIKE $%d OR from_email ILIKE $%d)", len(args), len(args))
	}

	sb.WriteString(" ORDER BY received_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, " LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, err
	}

	items := make([]*domain.MessageListItem, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toDomain().ToListItem())
	}
	return items, nil
}

// MarkProcessed links a message to an application and flags it
// processed.
func (a *MessageAdapter) MarkProcessed(ctx context.Context, userID uuid.UUID, id int64, applicationID *int64) error {
	var appID sql.NullInt64
	if applicationID != nil {
		appID = sql.NullInt64{Int64: *applicationID, Valid: true}
	}

	query := `
		UPDATE messages
		SET processed = true, application_id = $1, updated_at = $2
		WHERE user_id = $3 AND id = $4`

	res, err := a.db.ExecContext(ctx, query, appID, time.Now(), userID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ out.MessageRepository = (*MessageAdapter)(nil)

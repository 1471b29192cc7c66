package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
)

// DomainFilterAdapter implements out.DomainFilterRepository using
// PostgreSQL.
type DomainFilterAdapter struct {
	db *sqlx.DB
}

// NewDomainFilterAdapter creates a new DomainFilterAdapter.
func NewDomainFilterAdapter(db *sqlx.DB) *DomainFilterAdapter {
	return &DomainFilterAdapter{db: db}
}

type domainFilterRow struct {
	ID        int64     `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Domain    string    `db:"domain"`
	Allow     bool      `db:"allow"`
	CreatedAt time.Time `db:"created_at"`
}

// ListByUser returns all filter rules for a user.
func (a *DomainFilterAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.DomainFilter, error) {
	var rows []domainFilterRow
	query := `
		SELECT id, user_id, domain, allow, created_at
		FROM domain_filters
		WHERE user_id = $1
		ORDER BY created_at ASC`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	filters := make([]*domain.DomainFilter, 0, len(rows))
	for _, r := range rows {
		filters = append(filters, &domain.DomainFilter{
			ID:        r.ID,
			UserID:    r.UserID,
			Domain:    r.Domain,
			Allow:     r.Allow,
			CreatedAt: r.CreatedAt,
		})
	}
	return filters, nil
}

// Create inserts a filter rule. Duplicate (user, domain) pairs update
// the allow flag instead of erroring.
func (a *DomainFilterAdapter) Create(ctx context.Context, filter *domain.DomainFilter) error {
	query := `
		INSERT INTO domain_filters (user_id, domain, allow, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, domain) DO UPDATE SET allow = EXCLUDED.allow
		RETURNING id`

	return a.db.QueryRowContext(ctx, query,
		filter.UserID, filter.Domain, filter.Allow, time.Now(),
	).Scan(&filter.ID)
}

// Delete removes a filter rule.
func (a *DomainFilterAdapter) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM domain_filters WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ out.DomainFilterRepository = (*DomainFilterAdapter)(nil)

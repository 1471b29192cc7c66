// Package ingest implements mailbox ingestion.
package ingest

import (
	"fmt"
	"strings"
	"time"
)

// DefaultKeywords is the job-search taxonomy baked into the mailbox
// query. Order is fixed so the generated query is deterministic.
var DefaultKeywords = []string{
	"job", "position", "opportunity", "hiring", "recruitment",
	"application", "interview", "offer", "reject", "candidate",
}

// BuildQuery renders the provider search query: each keyword quoted
// and OR-joined, followed by an after: date clause. Example:
//
//	("job" OR "position") after:2024/01/02
func BuildQuery(keywords []string, since time.Time) string {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}

	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%q", kw))
	}

	var sb strings.Builder
	if len(parts) > 0 {
		sb.WriteString("(")
		sb.WriteString(strings.Join(parts, " OR "))
		sb.WriteString(")")
	}

	if !since.IsZero() {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("after:")
		sb.WriteString(since.Format("2006/01/02"))
	}

	return sb.String()
}

// SinceDate returns the query cutoff for a look-back window, measured
// from now in whole days.
func SinceDate(now time.Time, daysBack int) time.Time {
	if daysBack <= 0 {
		daysBack = 7
	}
	return now.AddDate(0, 0, -daysBack)
}

// Package classify assigns ingestion categories with keyword
// heuristics. No external calls; everything runs on the already
// fetched message.
package classify

import (
	"strings"

	"tracker_server/core/domain"
)

// Thresholds and phrase lists for the keyword gate. Matching is
// case-insensitive substring search over subject and plain text body.
var (
	jobKeywords = []string{
		"job", "position", "opportunity", "hiring", "recruitment",
		"application", "interview", "offer", "reject", "candidate",
	}

	denialPhrases = []string{
		"unfortunately",
		"we regret",
		"not selected",
		"not moving forward",
		"other candidates",
		"decided to pursue",
		"will not be moving",
	}

	interestPhrases = []string{
		"interview",
		"next steps",
		"schedule a call",
		"move forward with your application",
		"your availability",
		"excited to",
	}
)

// linkListThreshold is the number of distinct job posting links above
// which a message is treated as a digest rather than a single
// prospect.
const linkListThreshold = 3

// Result is the outcome of classifying one message.
type Result struct {
	JobRelated  bool
	Category    domain.MessageCategory
	SubCategory *domain.MessageSubCategory
}

// Gate classifies messages without leaving the process.
type Gate struct{}

// NewGate creates a new Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Classify buckets a message. linkCount is the number of job posting
// links discovered in its body.
func (g *Gate) Classify(subject, bodyText string, linkCount int) Result {
	text := strings.ToLower(subject + "\n" + bodyText)

	if !containsAny(text, jobKeywords) {
		return Result{JobRelated: false}
	}

	if phrase := firstMatch(text, denialPhrases); phrase != "" {
		sub := domain.SubCategoryDenial
		return Result{
			JobRelated:  true,
			Category:    domain.CategoryApplicationResponse,
			SubCategory: &sub,
		}
	}

	if phrase := firstMatch(text, interestPhrases); phrase != "" {
		sub := domain.SubCategoryInterested
		return Result{
			JobRelated:  true,
			Category:    domain.CategoryApplicationResponse,
			SubCategory: &sub,
		}
	}

	if linkCount >= linkListThreshold {
		return Result{JobRelated: true, Category: domain.CategoryJobLinkList}
	}

	return Result{JobRelated: true, Category: domain.CategoryProspectSingle}
}

func containsAny(text string, phrases []string) bool {
	return firstMatch(text, phrases) != ""
}

func firstMatch(text string, phrases []string) string {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return p
		}
	}
	return ""
}

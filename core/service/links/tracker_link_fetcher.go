// Package links crawls discovered job posting links in the background.
package links

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/pkg/apperr"
	"tracker_server/pkg/httputil"
	"tracker_server/pkg/logger"
)

const (
	maxBodyBytes   = 2 << 20
	crawlUserAgent = "Mozilla/5.0 (compatible; JobTrackerBot/1.0)"
)

// Hosts of applicant tracking systems. A link pointing at one of these
// is almost certainly a real job posting.
var atsHosts = map[string]struct{}{
	"boards.greenhouse.io":     {},
	"jobs.lever.co":            {},
	"jobs.ashbyhq.com":         {},
	"apply.workable.com":       {},
	"jobs.smartrecruiters.com": {},
	"wellfound.com":            {},
}

var (
	titlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]+>`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// Fetcher crawls pending links, scores them and stores the page
// payload for later inspection.
type Fetcher struct {
	links    out.LinkRepository
	contents out.LinkContentRepository
	client   *http.Client
	now      func() time.Time
	log      *logger.Logger
}

// NewFetcher creates a Fetcher with the crawler HTTP profile.
func NewFetcher(links out.LinkRepository, contents out.LinkContentRepository) *Fetcher {
	return &Fetcher{
		links:    links,
		contents: contents,
		client:   httputil.NewClient(httputil.CrawlerClientConfig()),
		now:      time.Now,
		log:      logger.Default().WithField("service", "link_fetcher"),
	}
}

// Run crawls pending links on a fixed interval until the context is
// cancelled.
func (f *Fetcher) Run(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := f.RunOnce(ctx, batch); err != nil {
				f.log.WithError(err).Error("crawl pass failed")
			} else if n > 0 {
				f.log.Info("crawled %d links", n)
			}
		}
	}
}

// RunOnce crawls up to batch pending links and returns how many were
// attempted. Per-link failures are recorded on the link itself and do
// not abort the pass.
func (f *Fetcher) RunOnce(ctx context.Context, batch int) (int, error) {
	pending, err := f.links.ListPending(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("list pending links: %w", err)
	}

	for _, link := range pending {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err := f.fetchOne(ctx, link); err != nil {
			crawlErr := apperr.ExtractionFailed(link.URL, err)
			f.log.WithError(crawlErr).Warn("crawl failed")
			if dbErr := f.links.MarkError(ctx, link.ID, crawlErr.Error()); dbErr != nil {
				f.log.WithError(dbErr).Error("failed to record crawl error")
			}
		}
	}
	return len(pending), nil
}

func (f *Fetcher) fetchOne(ctx context.Context, link *domain.DiscoveredLink) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", crawlUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	html := string(body)
	page := AnalyzePage(link.URL, html)

	if err := f.contents.Save(ctx, &domain.LinkContent{
		LinkID:    link.ID,
		URL:       link.URL,
		HTML:      html,
		Text:      page.Text,
		FetchedAt: f.now(),
	}); err != nil {
		return fmt.Errorf("save content: %w", err)
	}

	if err := f.links.MarkFetched(ctx, link.ID, page.Confidence, page.Company, page.Role); err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	return nil
}

// Page is what AnalyzePage distills from a crawled document.
type Page struct {
	Text       string
	Confidence int
	Company    *string
	Role       *string
}

// AnalyzePage extracts plain text from an HTML document and scores how
// likely the page is an actual job posting (0..100).
func AnalyzePage(rawURL, html string) Page {
	page := Page{Text: htmlToText(html)}

	confidence := 30

	if u, err := url.Parse(rawURL); err == nil {
		host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
		if _, ok := atsHosts[host]; ok {
			confidence += 40
		}
		path := strings.ToLower(u.Path)
		if strings.Contains(path, "job") || strings.Contains(path, "career") || strings.Contains(path, "position") {
			confidence += 15
		}
	}

	if role, company := parseTitle(html); role != "" {
		confidence += 15
		page.Role = &role
		if company != "" {
			page.Company = &company
		}
	}

	lower := strings.ToLower(page.Text)
	if strings.Contains(lower, "apply") || strings.Contains(lower, "responsibilities") {
		confidence += 10
	}

	if confidence > 100 {
		confidence = 100
	}
	page.Confidence = confidence
	return page
}

// parseTitle splits a page title into a role and a company. Handles
// the common "Role - Company", "Role | Company" and the Greenhouse
// "Job Application for Role at Company" shapes.
func parseTitle(html string) (role, company string) {
	m := titlePattern.FindStringSubmatch(html)
	if m == nil {
		return "", ""
	}
	title := strings.TrimSpace(spacePattern.ReplaceAllString(m[1], " "))
	if title == "" {
		return "", ""
	}

	title = strings.TrimPrefix(title, "Job Application for ")

	if i := strings.Index(title, " at "); i > 0 {
		return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+4:])
	}
	for _, sep := range []string{" - ", " | ", " – "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+len(sep):])
		}
	}
	return title, ""
}

func htmlToText(html string) string {
	text := scriptPattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&#39;", "'", "&quot;", `"`).Replace(text)
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

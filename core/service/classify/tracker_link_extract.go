package classify

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	hrefPattern = regexp.MustCompile(`(?i)href=["']([^"']+)["']`)
	urlPattern  = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

	// Link noise that is never a job posting
	skipFragments = []string{
		"unsubscribe",
		"email-settings",
		"notification-settings",
		"privacy",
		"terms",
		"mailto:",
	}
)

// ExtractLinks pulls candidate job posting URLs from a message body.
// HTML hrefs are preferred; the plain text is scanned too for
// text-only messages. Order of first appearance is preserved and
// duplicates are dropped, so re-running over the same body yields the
// same list.
func ExtractLinks(bodyText, bodyHTML string) []string {
	var raw []string

	for _, m := range hrefPattern.FindAllStringSubmatch(bodyHTML, -1) {
		raw = append(raw, m[1])
	}
	raw = append(raw, urlPattern.FindAllString(bodyText, -1)...)

	seen := make(map[string]struct{}, len(raw))
	links := make([]string, 0, len(raw))

	for _, candidate := range raw {
		link, ok := normalizeLink(candidate)
		if !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	return links
}

func normalizeLink(s string) (string, bool) {
	s = strings.TrimRight(s, ".,;:!)>]")

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", false
	}
	for _, frag := range skipFragments {
		if strings.Contains(lower, frag) {
			return "", false
		}
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}

	// Fragments never change the target posting
	u.Fragment = ""
	return u.String(), true
}

package classify

import (
	"testing"

	"tracker_server/core/domain"
)

func TestClassifyNonJobMessage(t *testing.T) {
	gate := NewGate()

	res := gate.Classify("Your package has shipped", "Track your order at the link below.", 0)
	if res.JobRelated {
		t.Error("shipping notification classified as job related")
	}
}

func TestClassifyDenial(t *testing.T) {
	gate := NewGate()

	res := gate.Classify(
		"Your application to Acme",
		"Unfortunately we have decided to move forward with other candidates.",
		0,
	)

	if !res.JobRelated {
		t.Fatal("denial not job related")
	}
	if res.Category != domain.CategoryApplicationResponse {
		t.Errorf("Category = %s, want APPLICATION_RESPONSE", res.Category)
	}
	if res.SubCategory == nil || *res.SubCategory != domain.SubCategoryDenial {
		t.Errorf("SubCategory = %v, want DENIAL", res.SubCategory)
	}
}

func TestClassifyDenialWinsOverInterest(t *testing.T) {
	gate := NewGate()

	// A rejection that mentions the interview stage is still a denial
	res := gate.Classify(
		"Interview outcome",
		"Thank you for the interview. Unfortunately we will not be moving forward.",
		0,
	)
	if res.SubCategory == nil || *res.SubCategory != domain.SubCategoryDenial {
		t.Errorf("SubCategory = %v, want DENIAL", res.SubCategory)
	}
}

func TestClassifyInterested(t *testing.T) {
	gate := NewGate()

	res := gate.Classify(
		"Next steps for your application",
		"We would like to schedule a call to discuss the position.",
		0,
	)

	if res.Category != domain.CategoryApplicationResponse {
		t.Errorf("Category = %s", res.Category)
	}
	if res.SubCategory == nil || *res.SubCategory != domain.SubCategoryInterested {
		t.Errorf("SubCategory = %v, want INTERESTED", res.SubCategory)
	}
}

func TestClassifyLinkList(t *testing.T) {
	gate := NewGate()

	res := gate.Classify("10 new jobs for you", "Fresh openings matching your profile.", 5)
	if res.Category != domain.CategoryJobLinkList {
		t.Errorf("Category = %s, want JOB_LINK_LIST", res.Category)
	}
	if res.SubCategory != nil {
		t.Errorf("SubCategory = %v, want nil", res.SubCategory)
	}
}

func TestClassifyProspectSingle(t *testing.T) {
	gate := NewGate()

	res := gate.Classify(
		"Exciting opportunity at Initech",
		"I came across your profile and think you would be a great fit for this role.",
		1,
	)
	if res.Category != domain.CategoryProspectSingle {
		t.Errorf("Category = %s, want PROSPECT_SINGLE", res.Category)
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	gate := NewGate()

	res := gate.Classify("JOB OPPORTUNITY", "HIRING NOW", 0)
	if !res.JobRelated {
		t.Error("uppercase keywords not matched")
	}
}

func TestExtractLinksFromHTML(t *testing.T) {
	html := `<p>Check out <a href="https://jobs.example.com/123">this role</a>
		and <a href="https://boards.example.org/456?ref=email">another</a>.
		<a href="https://example.com/unsubscribe?u=1">Unsubscribe</a></p>`

	links := ExtractLinks("", html)
	want := []string{
		"https://jobs.example.com/123",
		"https://boards.example.org/456?ref=email",
	}

	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %s, want %s", i, links[i], want[i])
		}
	}
}

func TestExtractLinksFromPlainText(t *testing.T) {
	text := "Apply here: https://jobs.example.com/789. Good luck!"

	links := ExtractLinks(text, "")
	if len(links) != 1 || links[0] != "https://jobs.example.com/789" {
		t.Errorf("links = %v", links)
	}
}

func TestExtractLinksDeduplicates(t *testing.T) {
	text := "https://jobs.example.com/1 https://jobs.example.com/1"
	html := `<a href="https://jobs.example.com/1">same</a>`

	links := ExtractLinks(text, html)
	if len(links) != 1 {
		t.Errorf("links = %v, want single entry", links)
	}
}

func TestExtractLinksIgnoresNonHTTP(t *testing.T) {
	html := `<a href="mailto:recruiter@example.com">mail</a>
		<a href="ftp://example.com/file">ftp</a>`

	if links := ExtractLinks("", html); len(links) != 0 {
		t.Errorf("links = %v, want none", links)
	}
}

package ingest

import (
	"strings"
	"testing"
	"time"
)

func TestBuildQueryDefaultKeywords(t *testing.T) {
	since := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	got := BuildQuery(nil, since)
	want := `("job" OR "position" OR "opportunity" OR "hiring" OR "recruitment" OR "application" OR "interview" OR "offer" OR "reject" OR "candidate") after:2024/03/05`
	if got != want {
		t.Errorf("BuildQuery =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildQueryCustomKeywords(t *testing.T) {
	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	got := BuildQuery([]string{"golang", "backend"}, since)
	want := `("golang" OR "backend") after:2024/01/02`
	if got != want {
		t.Errorf("BuildQuery = %s, want %s", got, want)
	}
}

func TestBuildQueryIsDeterministic(t *testing.T) {
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	first := BuildQuery(nil, since)
	for i := 0; i < 5; i++ {
		if got := BuildQuery(nil, since); got != first {
			t.Fatalf("query changed between calls: %s vs %s", got, first)
		}
	}
}

func TestBuildQuerySkipsBlankKeywords(t *testing.T) {
	got := BuildQuery([]string{" ", "job", ""}, time.Time{})
	if got != `("job")` {
		t.Errorf("BuildQuery = %s", got)
	}
}

func TestBuildQueryZeroSinceOmitsAfterClause(t *testing.T) {
	got := BuildQuery([]string{"job"}, time.Time{})
	if strings.Contains(got, "after:") {
		t.Errorf("query should omit after clause: %s", got)
	}
}

func TestSinceDate(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	got := SinceDate(now, 7)
	want := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("SinceDate = %v, want %v", got, want)
	}

	// Non-positive windows fall back to a week
	if got := SinceDate(now, 0); !got.Equal(want) {
		t.Errorf("SinceDate(0) = %v, want %v", got, want)
	}
}

package model

import (
	"errors"
	"testing"
	"time"

	"snipr-audio/internal/domain"
)

func TestNewConversionJob(t *testing.T) {
	t.Run("should create pending job for url source", func(t *testing.T) {
		job, err := NewConversionJob("owner-1", SourceRef{URL: " https://example.com/article "})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.ID == "" {
			t.Error("expected generated id")
		}
		if job.Status != JobStatusPending {
			t.Errorf("expected pending, got %s", job.Status)
		}
		if job.Source.URL != "https://example.com/article" {
			t.Errorf("expected trimmed url, got %q", job.Source.URL)
		}
		if job.AudioURL != "" || job.DurationSeconds != 0 || job.Error != "" {
			t.Error("expected empty result fields")
		}
	})

	tests := []struct {
		name  string
		owner string
		src   SourceRef
	}{
		{"missing owner", "", SourceRef{URL: "https://example.com"}},
		{"missing source", "owner", SourceRef{}},
		{"both url and text", "owner", SourceRef{URL: "https://example.com", Text: "hi"}},
		{"relative url", "owner", SourceRef{URL: "/article"}},
		{"ftp url", "owner", SourceRef{URL: "ftp://example.com/a"}},
	}
	for _, tc := range tests {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			_, err := NewConversionJob(tc.owner, tc.src)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestConversionJob_StateMachine(t *testing.T) {
	newJob := func(t *testing.T) *ConversionJob {
		t.Helper()
		job, err := NewConversionJob("owner", SourceRef{Text: "Hello. World."})
		if err != nil {
			t.Fatalf("new job: %v", err)
		}
		return job
	}

	t.Run("completed job carries url and duration", func(t *testing.T) {
		job := newJob(t)
		if err := job.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := job.Complete("https://cdn.example/a.mp3", 12000, 1); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if err := job.CheckInvariants(); err != nil {
			t.Fatalf("invariants: %v", err)
		}
	})

	t.Run("complete rejects zero duration and empty url", func(t *testing.T) {
		job := newJob(t)
		_ = job.Start()
		if err := job.Complete("", 1, 1); err == nil {
			t.Error("expected error for empty url")
		}
		if err := job.Complete("https://cdn.example/a.mp3", 1, 0); err == nil {
			t.Error("expected error for zero duration")
		}
		if job.Status != JobStatusProcessing {
			t.Errorf("status should be unchanged, got %s", job.Status)
		}
	})

	t.Run("failed job always has error", func(t *testing.T) {
		job := newJob(t)
		_ = job.Start()
		if err := job.Fail("  "); err != nil {
			t.Fatalf("fail: %v", err)
		}
		if job.Error == "" {
			t.Error("expected fallback error message")
		}
		if err := job.CheckInvariants(); err != nil {
			t.Fatalf("invariants: %v", err)
		}
	})

	t.Run("terminal states never change", func(t *testing.T) {
		job := newJob(t)
		_ = job.Start()
		_ = job.Fail("boom")
		if err := job.Start(); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition on start, got %v", err)
		}
		if err := job.Complete("https://cdn.example/a.mp3", 1, 1); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition on complete, got %v", err)
		}
		if err := job.Fail("again"); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition on fail, got %v", err)
		}
		if job.Error != "boom" {
			t.Errorf("error overwritten: %q", job.Error)
		}
	})

	t.Run("pending cannot complete directly", func(t *testing.T) {
		job := newJob(t)
		if err := job.Complete("https://cdn.example/a.mp3", 1, 1); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestFeedEntryFromJob(t *testing.T) {
	job, _ := NewConversionJob("owner", SourceRef{URL: "https://example.com/a"})
	job.Title = "Test"
	_ = job.Start()
	_ = job.Complete("https://cdn.example/a.mp3", 12000, 3725)

	published := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	entry, err := NewFeedEntryFromJob(job, published)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.GUID != job.ID {
		t.Errorf("guid should be job id, got %s", entry.GUID)
	}
	if entry.DurationLabel != "01:02:05" {
		t.Errorf("unexpected duration label %q", entry.DurationLabel)
	}
	if entry.Description != "Test" {
		t.Errorf("description should fall back to title, got %q", entry.Description)
	}
	if entry.SourceLink != "https://example.com/a" {
		t.Errorf("unexpected link %q", entry.SourceLink)
	}

	pending, _ := NewConversionJob("owner", SourceRef{Text: "x."})
	if _, err := NewFeedEntryFromJob(pending, published); err == nil {
		t.Error("expected error for non-completed job")
	}
}

func TestUserFeed_SortedEntries(t *testing.T) {
	feed, err := NewUserFeed("owner", "", "a@b.c", "")
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}
	if feed.FeedID == "" || len(feed.FeedID) != 32 {
		t.Errorf("unexpected feed id %q", feed.FeedID)
	}
	if !feed.MatchesFeedID(feed.FeedID) || feed.MatchesFeedID("other") || feed.MatchesFeedID("") {
		t.Error("feed id matching is wrong")
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feed.Entries = []FeedEntry{
		{GUID: "a", PublishedAt: base},
		{GUID: "c", PublishedAt: base.Add(2 * time.Hour)},
		{GUID: "b", PublishedAt: base.Add(time.Hour)},
	}
	got := feed.SortedEntries()
	want := []string{"c", "b", "a"}
	for i, e := range got {
		if e.GUID != want[i] {
			t.Fatalf("position %d: want %s got %s", i, want[i], e.GUID)
		}
	}
	if feed.Entries[0].GUID != "a" {
		t.Error("SortedEntries must not reorder the stored slice")
	}
}

func TestFeedEntry_Validate(t *testing.T) {
	e := &FeedEntry{}
	err := e.Validate()
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

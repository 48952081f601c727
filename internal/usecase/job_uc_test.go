package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/infra/db/memory"

	"github.com/rs/zerolog"
)

func newJobUC(t *testing.T, limiter adapter.RateLimiter) (*jobUC, *memory.JobRepo, *int) {
	t.Helper()
	feeds, _, _, _ := newFeedUC(t)
	logger := zerolog.Nop()
	repo := memory.NewJobRepo()
	woken := 0
	uc := NewJobUseCase(repo, feeds, limiter, nil, JobLimits{RateLimit: 2, RateWindow: time.Hour, ListLimit: 10},
		func() { woken++ }, &logger)
	return uc, repo, &woken
}

func TestJobUseCase_Submit(t *testing.T) {
	ctx := context.Background()
	p := adapter.Principal{ID: "owner-1"}

	t.Run("creates pending job and wakes the worker", func(t *testing.T) {
		uc, repo, woken := newJobUC(t, nil)
		job, err := uc.Submit(ctx, p, model.SourceRef{URL: "https://example.com/a"})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if job.Status != model.JobStatusPending || job.OwnerID != "owner-1" {
			t.Errorf("unexpected job %+v", job)
		}
		if _, err := repo.FindByID(ctx, nil, job.ID); err != nil {
			t.Errorf("job not persisted: %v", err)
		}
		if *woken != 1 {
			t.Errorf("expected one wake, got %d", *woken)
		}
	})

	t.Run("rejects anonymous callers", func(t *testing.T) {
		uc, _, _ := newJobUC(t, nil)
		if _, err := uc.Submit(ctx, adapter.Principal{}, model.SourceRef{Text: "Hi."}); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected ErrAuth, got %v", err)
		}
	})

	t.Run("rejects invalid sources without creating a job", func(t *testing.T) {
		uc, repo, _ := newJobUC(t, nil)
		if _, err := uc.Submit(ctx, p, model.SourceRef{URL: "not a url"}); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		jobs, _ := repo.ListByOwner(ctx, nil, "owner-1", 0)
		if len(jobs) != 0 {
			t.Errorf("no job should be created, got %d", len(jobs))
		}
	})

	t.Run("rate limits per owner", func(t *testing.T) {
		limiter := &fakeLimiter{n: 1}
		uc, _, _ := newJobUC(t, limiter)
		if _, err := uc.Submit(ctx, p, model.SourceRef{Text: "One."}); err != nil {
			t.Fatalf("first submit: %v", err)
		}
		if _, err := uc.Submit(ctx, p, model.SourceRef{Text: "Two."}); !errors.Is(err, domain.ErrRateLimited) {
			t.Fatalf("expected ErrRateLimited, got %v", err)
		}
		for _, k := range limiter.keys {
			if k != "rate_limit:submit:owner-1" {
				t.Errorf("unexpected limiter key %q", k)
			}
		}
	})

	t.Run("limiter outage does not block submissions", func(t *testing.T) {
		uc, _, _ := newJobUC(t, &fakeLimiter{err: errors.New("redis down")})
		if _, err := uc.Submit(ctx, p, model.SourceRef{Text: "One."}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	})
}

func TestJobUseCase_GetAndList(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newJobUC(t, nil)
	owner := adapter.Principal{ID: "owner-1"}
	job, _ := uc.Submit(ctx, owner, model.SourceRef{Text: "Hello."})

	if got, err := uc.Get(ctx, owner, job.ID); err != nil || got.ID != job.ID {
		t.Fatalf("get own job: %+v %v", got, err)
	}
	if _, err := uc.Get(ctx, adapter.Principal{ID: "owner-2"}, job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign job should be not found, got %v", err)
	}
	if _, err := uc.Get(ctx, owner, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	jobs, err := uc.List(ctx, owner)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("list: %v %v", jobs, err)
	}
}

func TestJobUseCase_SubmitDocument(t *testing.T) {
	ctx := context.Background()
	p := adapter.Principal{ID: "owner-1"}
	newUC := func(t *testing.T, docs adapter.DocumentReader) (*jobUC, *memory.JobRepo) {
		uc, repo, _ := newJobUC(t, nil)
		uc.docs = docs
		return uc, repo
	}

	t.Run("submits book text under the book title", func(t *testing.T) {
		uc, repo := newUC(t, &fakeDocs{article: adapter.Article{Title: "The Quiet Harbor", CleanText: "Chapter one.\n\nChapter two."}})
		job, err := uc.SubmitDocument(ctx, p, "harbor.epub", []byte("zip"))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		stored, _ := repo.FindByID(ctx, nil, job.ID)
		if stored.Source.Title != "The Quiet Harbor" || stored.Source.Text != "Chapter one.\n\nChapter two." {
			t.Errorf("unexpected source %+v", stored.Source)
		}
	})

	t.Run("falls back to the file name", func(t *testing.T) {
		uc, _ := newUC(t, &fakeDocs{article: adapter.Article{CleanText: "Body."}})
		job, err := uc.SubmitDocument(ctx, p, "uploads/field-notes.epub", []byte("zip"))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if job.Source.Title != "field-notes" {
			t.Errorf("title = %q", job.Source.Title)
		}
	})

	tests := []struct {
		name string
		docs adapter.DocumentReader
		data []byte
	}{
		{"uploads disabled", nil, []byte("zip")},
		{"empty upload", &fakeDocs{}, nil},
		{"unreadable book", &fakeDocs{err: errors.New("not a zip")}, []byte("zip")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uc, repo := newUC(t, tc.docs)
			if _, err := uc.SubmitDocument(ctx, p, "x.epub", tc.data); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if jobs, _ := repo.ListByOwner(ctx, nil, "owner-1", 0); len(jobs) != 0 {
				t.Errorf("no job should be created, got %d", len(jobs))
			}
		})
	}
}

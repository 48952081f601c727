package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"snipr-audio/internal/domain"
	"snipr-audio/internal/domain/model"
	"snipr-audio/internal/domain/ports/adapter"
	"snipr-audio/internal/domain/ports/repository"
	"snipr-audio/internal/infra/adapters/speech"
	"snipr-audio/internal/infra/adapters/storage"
	"snipr-audio/internal/infra/db/memory"

	"github.com/rs/zerolog"
)

// --- fakes ---

type fakeExtractor struct {
	article adapter.Article
	err     error
	calls   int
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (adapter.Article, error) {
	f.calls++
	return f.article, f.err
}

type fakeSummarizer struct {
	fn func(title, text string) (adapter.Summary, error)
}

func (f *fakeSummarizer) Summarize(ctx context.Context, title, text string) (adapter.Summary, error) {
	if f.fn != nil {
		return f.fn(title, text)
	}
	return adapter.Summary{Synopsis: "A summary.", SpokenText: text}, nil
}

// echoSynth returns the chunk text as audio so ordering can be checked.
type echoSynth struct {
	mu     sync.Mutex
	chunks []string
	size   int
}

func (s *echoSynth) Synthesize(ctx context.Context, chunk string, voice adapter.Voice) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	if s.size > 0 {
		return make([]byte, s.size), nil
	}
	return []byte("[" + chunk + "]"), nil
}

type fakeStore struct {
	mu    sync.Mutex
	url   string
	err   error
	keys  []string
	audio []byte
}

func (s *fakeStore) Put(ctx context.Context, key string, audio []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	s.audio = audio
	return s.url, s.err
}

// hookSynth calls onChunk with the 1-based call number before answering.
type hookSynth struct {
	mu      sync.Mutex
	calls   int
	onChunk func(n int)
}

func (s *hookSynth) Synthesize(ctx context.Context, chunk string, voice adapter.Voice) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if s.onChunk != nil {
		s.onChunk(n)
	}
	return make([]byte, 12000), nil
}

// cancellingStore cancels the job context once the artifact is written.
type cancellingStore struct {
	*fakeStore
	cancel context.CancelFunc
}

func (s *cancellingStore) Put(ctx context.Context, key string, audio []byte) (string, error) {
	url, err := s.fakeStore.Put(ctx, key, audio)
	s.cancel()
	return url, err
}

type fakeFeeds struct {
	mu       sync.Mutex
	appended []*model.ConversionJob
	err      error
	ctxs     []context.Context
}

func (f *fakeFeeds) Append(ctx context.Context, job *model.ConversionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxs = append(f.ctxs, ctx)
	cp := *job
	f.appended = append(f.appended, &cp)
	return f.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	finished []model.JobStatus
	ctxErrs  []error
}

func (n *fakeNotifier) JobFinished(ctx context.Context, job *model.ConversionJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, job.Status)
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	return nil
}

// titleRecordingRepo records the title visible at each save.
type titleRecordingRepo struct {
	*memory.JobRepo
	mu    sync.Mutex
	saves []model.ConversionJob
}

func (r *titleRecordingRepo) Save(ctx context.Context, tx repository.Tx, job *model.ConversionJob) error {
	r.mu.Lock()
	r.saves = append(r.saves, *job)
	r.mu.Unlock()
	return r.JobRepo.Save(ctx, tx, job)
}

type harness struct {
	repo     *titleRecordingRepo
	ext      *fakeExtractor
	sum      *fakeSummarizer
	synth    adapter.SpeechSynthesizer
	store    adapter.ArtifactStore
	feeds    *fakeFeeds
	notifier *fakeNotifier
	cfg      ProcessorConfig
}

func newHarness() *harness {
	return &harness{
		repo:     &titleRecordingRepo{JobRepo: memory.NewJobRepo()},
		ext:      &fakeExtractor{article: adapter.Article{Title: "Test", CleanText: "Hello.\n\nWorld."}},
		sum:      &fakeSummarizer{},
		synth:    &echoSynth{size: 12000},
		store:    &fakeStore{url: "https://cdn.example/a.mp3"},
		feeds:    &fakeFeeds{},
		notifier: &fakeNotifier{},
	}
}

func (h *harness) processor() *ConversionProcessor {
	logger := zerolog.Nop()
	return NewConversionProcessor(h.repo, Stages{
		Extractor:   h.ext,
		Summarizer:  h.sum,
		Synthesizer: h.synth,
		Store:       h.store,
	}, h.feeds, h.notifier, h.cfg, &logger)
}

// claimed saves a new job and claims it as the poller would.
func (h *harness) claimed(t *testing.T, src model.SourceRef) *model.ConversionJob {
	t.Helper()
	job, err := model.NewConversionJob("owner-1", src)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := h.repo.Save(context.Background(), nil, job); err != nil {
		t.Fatalf("save: %v", err)
	}
	claimed, err := h.repo.ClaimNextPending(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	h.repo.mu.Lock()
	h.repo.saves = nil
	h.repo.mu.Unlock()
	return claimed
}

func (h *harness) stored(t *testing.T, id string) *model.ConversionJob {
	t.Helper()
	job, err := h.repo.FindByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := job.CheckInvariants(); err != nil {
		t.Fatalf("terminal invariants broken for %+v", job)
	}
	return job
}

// --- scenarios ---

func TestRun_URLJobCompletes(t *testing.T) {
	h := newHarness()
	job := h.claimed(t, model.SourceRef{URL: "https://example.com/article"})

	h.processor().Run(context.Background(), job)

	got := h.stored(t, job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.Error)
	}
	if got.AudioURL != "https://cdn.example/a.mp3" || got.DurationSeconds != 1 || got.AudioBytes != 12000 {
		t.Errorf("unexpected result fields %+v", got)
	}
	if got.Title != "Test" || got.Summary != "A summary." {
		t.Errorf("unexpected title/summary %q %q", got.Title, got.Summary)
	}
	synth := h.synth.(*echoSynth)
	if len(synth.chunks) != 1 || synth.chunks[0] != "Hello.\n\nWorld." {
		t.Errorf("unexpected chunks %q", synth.chunks)
	}
	if keys := h.store.(*fakeStore).keys; len(keys) != 1 || keys[0] != "podcasts/owner-1/"+job.ID+".mp3" {
		t.Errorf("unexpected storage keys %v", keys)
	}
	if len(h.feeds.appended) != 1 || h.feeds.appended[0].ID != job.ID {
		t.Errorf("expected one append for the job, got %d", len(h.feeds.appended))
	}
	if len(h.notifier.finished) != 1 || h.notifier.finished[0] != model.JobStatusCompleted {
		t.Errorf("unexpected notifications %v", h.notifier.finished)
	}

	// the title is visible before completion
	first := h.repo.saves[0]
	if first.Status != model.JobStatusProcessing || first.Title != "Test" || first.AudioURL != "" {
		t.Errorf("first save should persist title while processing, got %+v", first)
	}
}

func TestRun_SynthesisTimeoutFailsJob(t *testing.T) {
	h := newHarness()
	logger := zerolog.Nop()
	h.synth = speech.NewSynthesizer(hangingEngine{}, adapter.Voice{}, 20*time.Millisecond, &logger)
	job := h.claimed(t, model.SourceRef{URL: "https://example.com/article"})

	h.processor().Run(context.Background(), job)

	got := h.stored(t, job.ID)
	if got.Status != model.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if !strings.Contains(strings.ToLower(got.Error), "timeout") {
		t.Errorf("error should mention timeout: %q", got.Error)
	}
	if got.AudioURL != "" {
		t.Error("failed job must not reference audio")
	}
	if len(h.feeds.appended) != 0 {
		t.Error("failed job must not be appended")
	}
	if len(h.store.(*fakeStore).keys) != 0 {
		t.Error("nothing should be uploaded")
	}
}

type hangingEngine struct{}

func (hangingEngine) SpeakSSML(ctx context.Context, ssml string) (adapter.SynthesisResult, error) {
	time.Sleep(time.Second)
	return adapter.SynthesisResult{Reason: adapter.SynthesisCompleted, Audio: []byte{1}}, nil
}

type flakyBucket struct {
	failures int
	puts     int
}

func (b *flakyBucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	b.puts++
	if b.puts <= b.failures {
		return errors.New("503 backend error")
	}
	return nil
}

func (b *flakyBucket) Exists(ctx context.Context, key string) (bool, error) { return b.puts > b.failures, nil }

func (b *flakyBucket) PublicURL(ctx context.Context, key string) (string, error) {
	return "https://cdn.example/" + key, nil
}

func TestRun_StorageRetriesAreTransparent(t *testing.T) {
	h := newHarness()
	logger := zerolog.Nop()
	var waits []time.Duration
	bucket := &flakyBucket{failures: 2}
	h.store = storage.NewArtifactStore(bucket, &logger, storage.WithSleep(func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))
	job := h.claimed(t, model.SourceRef{URL: "https://example.com/article"})

	h.processor().Run(context.Background(), job)

	got := h.stored(t, job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.Error)
	}
	if bucket.puts != 3 {
		t.Errorf("expected 3 upload attempts, got %d", bucket.puts)
	}
	var total time.Duration
	for _, w := range waits {
		total += w
	}
	if total < 6*time.Second {
		t.Errorf("expected at least 6s of backoff, got %v (%v)", total, waits)
	}
}

func TestRun_FailurePaths(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(h *harness)
		wantErr string
		wantIs  error
	}{
		{
			name:    "extraction error stops the pipeline",
			setup:   func(h *harness) { h.ext.err = domain.ErrExtraction },
			wantErr: "extract",
		},
		{
			name: "summarization error",
			setup: func(h *harness) {
				h.sum.fn = func(title, text string) (adapter.Summary, error) { return adapter.Summary{}, errors.New("quota") }
			},
			wantErr: "summarization failed",
		},
		{
			name: "panic is contained",
			setup: func(h *harness) {
				h.sum.fn = func(title, text string) (adapter.Summary, error) { panic("nil map") }
			},
			wantErr: "internal error: nil map",
		},
		{
			name:    "storage error",
			setup:   func(h *harness) { h.store = &fakeStore{err: domain.ErrStorage} },
			wantErr: "store",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			tc.setup(h)
			job := h.claimed(t, model.SourceRef{URL: "https://example.com/article"})

			h.processor().Run(context.Background(), job)

			got := h.stored(t, job.ID)
			if got.Status != model.JobStatusFailed {
				t.Fatalf("expected failed, got %s", got.Status)
			}
			if !strings.Contains(got.Error, tc.wantErr) {
				t.Errorf("error %q should contain %q", got.Error, tc.wantErr)
			}
			if len(h.feeds.appended) != 0 {
				t.Error("failed job must not be appended")
			}
		})
	}

	t.Run("extraction failure skips later stages", func(t *testing.T) {
		h := newHarness()
		h.ext.err = domain.ErrExtraction
		called := false
		h.sum.fn = func(title, text string) (adapter.Summary, error) {
			called = true
			return adapter.Summary{}, nil
		}
		h.processor().Run(context.Background(), h.claimed(t, model.SourceRef{URL: "https://example.com/a"}))
		if called {
			t.Error("summarizer must not run after extraction failure")
		}
	})
}

func TestRun_AppendFailureKeepsJobCompleted(t *testing.T) {
	h := newHarness()
	h.feeds.err = errors.New("feed store down")
	job := h.claimed(t, model.SourceRef{URL: "https://example.com/article"})

	h.processor().Run(context.Background(), job)

	if got := h.stored(t, job.ID); got.Status != model.JobStatusCompleted {
		t.Fatalf("append failure must not fail the job, got %s", got.Status)
	}
	if len(h.feeds.appended) != 1 {
		t.Errorf("append should be attempted exactly once, got %d", len(h.feeds.appended))
	}
}

func TestRun_TextSourceChunksInOrder(t *testing.T) {
	h := newHarness()
	synth := &echoSynth{}
	h.synth = synth
	h.cfg.MaxChunk = 12
	job := h.claimed(t, model.SourceRef{Text: "First one. Second one. Third one."})

	h.processor().Run(context.Background(), job)

	got := h.stored(t, job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.Error)
	}
	if h.ext.calls != 0 {
		t.Error("inline text must not be fetched")
	}
	if got.Title != "First one." {
		t.Errorf("title should fall back to first sentence, got %q", got.Title)
	}
	want := "[First one.][Second one.][Third one.]"
	if audio := string(h.store.(*fakeStore).audio); audio != want {
		t.Errorf("audio out of order: %q", audio)
	}
}

func TestRun_CancelledContextMarksInterrupted(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.sum.fn = func(title, text string) (adapter.Summary, error) {
		cancel()
		return adapter.Summary{}, context.Canceled
	}
	job := h.claimed(t, model.SourceRef{URL: "https://example.com/article"})

	h.processor().Run(ctx, job)

	got := h.stored(t, job.ID)
	if got.Status != model.JobStatusFailed || got.Error != model.InterruptedReason {
		t.Fatalf("expected interrupted failure, got %s %q", got.Status, got.Error)
	}
}

func TestRecoverStale(t *testing.T) {
	h := newHarness()
	h.cfg.StaleAfter = time.Millisecond
	job := h.claimed(t, model.SourceRef{Text: "Hi."})
	time.Sleep(5 * time.Millisecond)

	n, err := h.processor().RecoverStale(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected one recovered job, got %d err=%v", n, err)
	}
	if got := h.stored(t, job.ID); got.Error != model.InterruptedReason {
		t.Errorf("unexpected error %q", got.Error)
	}
}

func TestRecoverStale_SkipsJobsRunningInProcess(t *testing.T) {
	h := newHarness()
	h.cfg.StaleAfter = time.Millisecond
	h.cfg.MaxChunk = 5
	synth := &hookSynth{}
	h.synth = synth
	p := h.processor()
	job := h.claimed(t, model.SourceRef{Text: "One. Two. Three."})

	var swept []int
	synth.onChunk = func(n int) {
		// older than StaleAfter by timestamp alone
		time.Sleep(5 * time.Millisecond)
		if ids := p.ActiveJobIDs(); len(ids) != 1 || ids[0] != job.ID {
			t.Errorf("expected %s active, got %v", job.ID, ids)
		}
		got, err := p.RecoverStale(context.Background())
		if err != nil {
			t.Errorf("recover: %v", err)
		}
		swept = append(swept, got)
	}

	p.Run(context.Background(), job)

	if len(swept) != 3 {
		t.Fatalf("expected a sweep per chunk, got %v", swept)
	}
	for _, n := range swept {
		if n != 0 {
			t.Fatalf("sweep failed a running job: %v", swept)
		}
	}
	if got := h.stored(t, job.ID); got.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s %q", got.Status, got.Error)
	}
	if len(h.feeds.appended) != 1 {
		t.Errorf("expected one feed entry, got %d", len(h.feeds.appended))
	}
	if ids := p.ActiveJobIDs(); len(ids) != 0 {
		t.Errorf("finished job still active: %v", ids)
	}
}

func TestRun_HeartbeatKeepsJobFreshForOtherReplicas(t *testing.T) {
	h := newHarness()
	h.cfg.StaleAfter = 300 * time.Millisecond
	h.cfg.MaxChunk = 5
	synth := &hookSynth{}
	h.synth = synth
	other := h.processor()
	job := h.claimed(t, model.SourceRef{Text: "One. Two. Three."})

	var swept int
	synth.onChunk = func(n int) {
		time.Sleep(150 * time.Millisecond)
		if n == 3 {
			var err error
			if swept, err = other.RecoverStale(context.Background()); err != nil {
				t.Errorf("recover: %v", err)
			}
		}
	}

	h.processor().Run(context.Background(), job)

	if swept != 0 {
		t.Fatalf("other replica failed %d live jobs", swept)
	}
	got := h.stored(t, job.ID)
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s %q", got.Status, got.Error)
	}
	if len(h.feeds.appended) != 1 {
		t.Errorf("expected one feed entry, got %d", len(h.feeds.appended))
	}
}

func TestRun_StopsWhenSweptElsewhere(t *testing.T) {
	h := newHarness()
	h.cfg.StaleAfter = time.Millisecond
	synth := &hookSynth{}
	h.synth = synth
	store := &fakeStore{url: "https://cdn.example/a.mp3"}
	h.store = store
	job := h.claimed(t, model.SourceRef{Text: "Hello there."})

	synth.onChunk = func(int) {
		time.Sleep(5 * time.Millisecond)
		if _, err := h.repo.FailStale(context.Background(), time.Now(), model.InterruptedReason, nil); err != nil {
			t.Errorf("fail stale: %v", err)
		}
	}

	h.processor().Run(context.Background(), job)

	got := h.stored(t, job.ID)
	if got.Status != model.JobStatusFailed || got.Error != model.InterruptedReason {
		t.Fatalf("expected the sweep's failure to stand, got %s %q", got.Status, got.Error)
	}
	if len(store.keys) != 0 {
		t.Errorf("artifact stored for a failed job: %v", store.keys)
	}
	if len(h.feeds.appended) != 0 {
		t.Errorf("feed entry appended for a failed job")
	}
}

func TestRun_FinalWritesOutliveJobContext(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.store = &cancellingStore{fakeStore: &fakeStore{url: "https://cdn.example/a.mp3"}, cancel: cancel}
	job := h.claimed(t, model.SourceRef{Text: "Hello there."})

	h.processor().Run(ctx, job)

	if got := h.stored(t, job.ID); got.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s %q", got.Status, got.Error)
	}
	if len(h.feeds.ctxs) != 1 {
		t.Fatalf("expected one append, got %d", len(h.feeds.ctxs))
	}
	if _, ok := h.feeds.ctxs[0].Deadline(); !ok {
		t.Error("append context has no deadline")
	}
	if h.feeds.ctxs[0].Err() == nil {
		t.Error("append context should be released after Run")
	}
	if len(h.notifier.ctxErrs) != 1 || h.notifier.ctxErrs[0] != nil {
		t.Errorf("notifier saw a cancelled context: %v", h.notifier.ctxErrs)
	}
}

func TestStart_ProcessesSubmittedJobs(t *testing.T) {
	h := newHarness()
	h.cfg.PollInterval = time.Hour
	p := h.processor()
	logger := zerolog.Nop()
	pool := NewPool(2, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	go p.Start(ctx, pool)

	var ids []string
	for i := 0; i < 4; i++ {
		job, _ := model.NewConversionJob("owner-1", model.SourceRef{Text: "Hello there."})
		_ = h.repo.Save(ctx, nil, job)
		ids = append(ids, job.ID)
	}
	p.Wake()

	deadline := time.Now().Add(5 * time.Second)
	for _, id := range ids {
		for {
			job, _ := h.repo.FindByID(ctx, nil, id)
			if job.Status.Terminal() {
				if job.Status != model.JobStatusCompleted {
					t.Fatalf("job %s ended %s: %s", id, job.Status, job.Error)
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("job %s still %s", id, job.Status)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	pool.Stop()
}

package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cesargomez89/dictation/internal/domain"
	"github.com/cesargomez89/dictation/internal/logger"
	"github.com/cesargomez89/dictation/internal/registry"
	"github.com/cesargomez89/dictation/internal/storage"
	"github.com/cesargomez89/dictation/internal/store"
	"github.com/cesargomez89/dictation/internal/subtitle"
	"github.com/cesargomez89/dictation/internal/worker"
)

const testTranscript = `1
00:00:00,080 --> 00:00:01,360
alright

2
00:00:01,600 --> 00:00:03,760
so here we are

3
00:00:03.900 --> 00:00:04,200
malformed timing

4
00:00:04,500 --> 00:00:06,000
one of the elephants
`

type stubDownloader struct {
	layout *storage.Layout
	title  string
	err    error
	block  chan struct{}
	onCall func(key string)
	calls  int32
}

func (d *stubDownloader) Download(ctx context.Context, key string) (*domain.Audio, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.onCall != nil {
		d.onCall(key)
	}
	if d.block != nil {
		<-d.block
	}
	if d.err != nil {
		return nil, d.err
	}
	path := d.layout.AudioPath(key)
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		return nil, err
	}
	return &domain.Audio{Key: key, Title: d.title, Path: path}, nil
}

type stubTranscriber struct {
	layout *storage.Layout
	raw    string
	err    error
	onCall func(key string)
	calls  int32
}

func (tr *stubTranscriber) Transcribe(ctx context.Context, key, audioPath string) (*domain.Transcript, error) {
	atomic.AddInt32(&tr.calls, 1)
	if tr.onCall != nil {
		tr.onCall(key)
	}
	if tr.err != nil {
		return nil, tr.err
	}
	path := tr.layout.TranscriptPath(key)
	if err := os.WriteFile(path, []byte(tr.raw), 0644); err != nil {
		return nil, err
	}
	return &domain.Transcript{Path: path, Raw: tr.raw}, nil
}

type panickingDownloader struct{}

func (panickingDownloader) Download(ctx context.Context, key string) (*domain.Audio, error) {
	panic("unexpected nil")
}

type failingDocument struct{}

func (failingDocument) Load() ([]byte, error) { return nil, nil }
func (failingDocument) Save([]byte) error    { return errors.New("disk full") }

type panickingDocument struct{}

func (panickingDocument) Load() ([]byte, error) { return nil, nil }
func (panickingDocument) Save([]byte) error    { panic("write to closed store") }

type stubTagger struct {
	err      error
	calls    int32
	segments int
}

func (tg *stubTagger) EmbedTranscript(audioPath string, segments []domain.Segment) error {
	atomic.AddInt32(&tg.calls, 1)
	tg.segments = len(segments)
	return tg.err
}

// testClock is a settable time source for the registry
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	clock       *testClock
	svc         *JobService
	reader      *StatusReader
	store       *store.MetadataStore
	registry    *registry.Registry
	worker      *worker.Worker
	layout      *storage.Layout
	downloader  *stubDownloader
	transcriber *stubTranscriber
}

func setupService(t *testing.T, doc store.Document) *testEnv {
	layout := storage.NewLayout(t.TempDir(), "mp3")
	if doc == nil {
		doc = store.NewFileDocument(filepath.Join(layout.Dir, "cache.json"))
	}

	log := logger.Discard()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	env := &testEnv{
		clock:       clock,
		store:       store.NewMetadataStore(doc, log),
		registry:    registry.NewWithClock(clock.Now),
		worker:      worker.NewWorker(4, log),
		layout:      layout,
		downloader:  &stubDownloader{layout: layout, title: "Elephants Dream"},
		transcriber: &stubTranscriber{layout: layout, raw: testTranscript},
	}
	env.svc = NewJobService(JobServiceDeps{
		Store:       env.store,
		Registry:    env.registry,
		Worker:      env.worker,
		Downloader:  env.downloader,
		Transcriber: env.transcriber,
		Layout:      layout,
	}, log)
	env.reader = NewStatusReader(env.registry, env.store, log)
	return env
}

// waitRuns fails the test instead of hanging when runs never finish
func waitRuns(t *testing.T, w *worker.Worker) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Runs did not finish")
	}
}

func TestJobService_SubmitInvalidReference(t *testing.T) {
	env := setupService(t, nil)

	_, err := env.svc.Submit("https://vimeo.com/123")
	if !errors.Is(err, domain.ErrInvalidReference) {
		t.Errorf("Expected ErrInvalidReference, got %v", err)
	}
	if env.registry.Len() != 0 {
		t.Error("Expected nothing registered for an invalid reference")
	}
}

func TestJobService_EndToEnd(t *testing.T) {
	env := setupService(t, nil)

	var phases []domain.Phase
	var mu sync.Mutex
	record := func(key string) {
		st, _ := env.registry.Get(key)
		mu.Lock()
		phases = append(phases, st.Phase)
		mu.Unlock()
	}
	env.downloader.onCall = record
	env.transcriber.onCall = func(key string) {
		record(key)
		st, _ := env.registry.Get(key)
		if st.Title == nil || *st.Title != "Elephants Dream" {
			t.Errorf("Expected title to be known while transcribing, got %v", st.Title)
		}
	}

	sub, err := env.svc.Submit("https://www.youtube.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub.Key != "abc123" {
		t.Errorf("Expected key abc123, got %s", sub.Key)
	}
	if sub.Phase != domain.PhaseQueued {
		t.Errorf("Expected queued, got %s", sub.Phase)
	}

	env.worker.Wait()

	want := []domain.Phase{domain.PhaseDownloading, domain.PhaseTranscribing}
	if len(phases) != len(want) || phases[0] != want[0] || phases[1] != want[1] {
		t.Errorf("Expected phases %v during the run, got %v", want, phases)
	}

	view, err := env.reader.Query("abc123")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if view.Phase != domain.PhaseCompleted {
		t.Fatalf("Expected completed, got %s (%s)", view.Phase, view.ErrorMessage)
	}
	if view.Title == nil || *view.Title != "Elephants Dream" {
		t.Errorf("Expected title, got %v", view.Title)
	}

	onDisk, _ := os.ReadFile(env.layout.TranscriptPath("abc123"))
	recount := subtitle.Count(string(onDisk))
	if view.SegmentCount != len(view.Segments) || view.SegmentCount != recount {
		t.Errorf("Expected segment_count == len(segments) == %d, got %d and %d", recount, view.SegmentCount, len(view.Segments))
	}
	if recount != 3 {
		t.Errorf("Expected 3 segments after skipping the malformed block, got %d", recount)
	}

	rec := env.store.Get("abc123")
	if rec == nil {
		t.Fatal("Expected record to be stored")
	}
	if rec.SegmentCount != 3 || rec.Title != "Elephants Dream" {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if rec.AudioPath != env.layout.AudioPath("abc123") || rec.TranscriptPath != env.layout.TranscriptPath("abc123") {
		t.Errorf("Unexpected artifact paths: %+v", rec)
	}
}

func TestJobService_IdempotentSubmission(t *testing.T) {
	env := setupService(t, nil)
	env.downloader.block = make(chan struct{})

	first, err := env.svc.Submit("https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := env.svc.Submit("https://www.youtube.com/watch?v=abc123")
	if err != nil {
		t.Fatalf("Second submit failed: %v", err)
	}

	if first.Key != second.Key {
		t.Errorf("Expected same key, got %s and %s", first.Key, second.Key)
	}
	if first.Phase.IsTerminal() || second.Phase.IsTerminal() {
		t.Errorf("Expected non-terminal phases, got %s and %s", first.Phase, second.Phase)
	}

	close(env.downloader.block)
	env.worker.Wait()

	if calls := atomic.LoadInt32(&env.downloader.calls); calls != 1 {
		t.Errorf("Expected exactly 1 download, got %d", calls)
	}
}

func TestJobService_ConcurrentSubmission(t *testing.T) {
	env := setupService(t, nil)
	env.downloader.block = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := env.svc.Submit("https://youtu.be/abc123")
			if err != nil {
				t.Errorf("Submit failed: %v", err)
				return
			}
			if sub.Phase.IsTerminal() {
				t.Errorf("Expected non-terminal phase, got %s", sub.Phase)
			}
		}()
	}
	wg.Wait()

	close(env.downloader.block)
	env.worker.Wait()

	if calls := atomic.LoadInt32(&env.downloader.calls); calls != 1 {
		t.Errorf("Expected exactly 1 download, got %d", calls)
	}
}

func TestJobService_CacheHit(t *testing.T) {
	env := setupService(t, nil)

	_ = os.WriteFile(env.layout.AudioPath("abc123"), []byte("audio"), 0644)
	_ = os.WriteFile(env.layout.TranscriptPath("abc123"), []byte(testTranscript), 0644)
	err := env.store.Upsert(domain.JobRecord{
		Key:            "abc123",
		Title:          "Cached",
		AudioPath:      env.layout.AudioPath("abc123"),
		TranscriptPath: env.layout.TranscriptPath("abc123"),
		SegmentCount:   3,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	sub, err := env.svc.Submit("https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	env.worker.Wait()

	if sub.Phase != domain.PhaseCompleted {
		t.Errorf("Expected completed, got %s", sub.Phase)
	}
	if env.downloader.calls != 0 || env.transcriber.calls != 0 {
		t.Errorf("Expected no capability calls, got %d downloads and %d transcriptions", env.downloader.calls, env.transcriber.calls)
	}
	if env.registry.Contains("abc123") {
		t.Error("Expected no run to be registered")
	}
}

func TestJobService_CacheMissWhenArtifactsGone(t *testing.T) {
	env := setupService(t, nil)

	_ = env.store.Upsert(domain.JobRecord{
		Key:            "abc123",
		Title:          "Cached",
		AudioPath:      env.layout.AudioPath("abc123"),
		TranscriptPath: env.layout.TranscriptPath("abc123"),
	})

	sub, err := env.svc.Submit("https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	env.worker.Wait()

	if sub.Phase != domain.PhaseQueued {
		t.Errorf("Expected a new run, got %s", sub.Phase)
	}
	if env.downloader.calls != 1 {
		t.Errorf("Expected 1 download, got %d", env.downloader.calls)
	}
}

func TestJobService_DownloadFailure(t *testing.T) {
	env := setupService(t, nil)
	env.downloader.err = errors.New("video unavailable")

	if _, err := env.svc.Submit("https://youtu.be/abc123"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	env.worker.Wait()

	view, err := env.reader.Query("abc123")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if view.Phase != domain.PhaseFailed {
		t.Errorf("Expected failed, got %s", view.Phase)
	}
	if view.ErrorMessage == "" {
		t.Error("Expected a non-empty error message")
	}
	if view.Segments != nil || view.SegmentCount != 0 {
		t.Errorf("Expected no segments on failure, got %v", view.Segments)
	}
	if env.store.Exists("abc123") {
		t.Error("Expected no record to be written")
	}
	if env.transcriber.calls != 0 {
		t.Error("Expected transcription to be skipped")
	}
}

func TestJobService_TranscriptionFailureKeepsTitle(t *testing.T) {
	env := setupService(t, nil)
	env.transcriber.err = errors.New("deepgram: status=401")

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	st, _ := env.registry.Get("abc123")
	if st.Phase != domain.PhaseFailed {
		t.Fatalf("Expected failed, got %s", st.Phase)
	}
	if st.Title == nil || *st.Title != "Elephants Dream" {
		t.Errorf("Expected title to be kept, got %v", st.Title)
	}

	if st.ErrorMessage != "transcribe failed: deepgram: status=401" {
		t.Errorf("Unexpected error message: %s", st.ErrorMessage)
	}
	if env.store.Exists("abc123") {
		t.Error("Expected no record to be written")
	}
}

func TestJobService_RetryAfterFailure(t *testing.T) {
	env := setupService(t, nil)
	env.downloader.err = errors.New("network down")

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	env.downloader.err = nil
	sub, err := env.svc.Submit("https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	if sub.Phase != domain.PhaseQueued {
		t.Errorf("Expected a fresh run, got %s", sub.Phase)
	}
	env.worker.Wait()

	view, _ := env.reader.Query("abc123")
	if view.Phase != domain.PhaseCompleted {
		t.Errorf("Expected completed after retry, got %s", view.Phase)
	}
	if env.downloader.calls != 2 {
		t.Errorf("Expected 2 downloads, got %d", env.downloader.calls)
	}
}

func TestJobService_PanicBecomesFailed(t *testing.T) {
	env := setupService(t, nil)
	env.svc.downloader = panickingDownloader{}

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	st, ok := env.registry.Get("abc123")
	if !ok {
		t.Fatal("Expected the accepted key to stay registered")
	}
	if st.Phase != domain.PhaseFailed || st.ErrorMessage != internalErrorMessage {
		t.Errorf("Expected generic failure, got %s %q", st.Phase, st.ErrorMessage)
	}
}

func TestJobService_PanicInStoreBecomesFailed(t *testing.T) {
	env := setupService(t, panickingDocument{})

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	waitRuns(t, env.worker)

	st, _ := env.registry.Get("abc123")
	if st.Phase != domain.PhaseFailed || st.ErrorMessage != internalErrorMessage {
		t.Errorf("Expected generic failure, got %s %q", st.Phase, st.ErrorMessage)
	}

	submitted := make(chan error, 1)
	go func() {
		_, err := env.svc.Submit("https://youtu.be/zzz999")
		submitted <- err
	}()
	select {
	case err := <-submitted:
		if err != nil {
			t.Errorf("Expected second submission to be accepted, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Submit for another key blocked after a panicking store write")
	}
	waitRuns(t, env.worker)
}

func TestJobService_TaggerEmbedsSegments(t *testing.T) {
	env := setupService(t, nil)
	tagger := &stubTagger{}
	env.svc.tagger = tagger

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	if tagger.calls != 1 {
		t.Fatalf("Expected 1 tagger call, got %d", tagger.calls)
	}
	if tagger.segments != 3 {
		t.Errorf("Expected 3 segments to be embedded, got %d", tagger.segments)
	}
}

func TestJobService_TaggerFailureStillCompletes(t *testing.T) {
	env := setupService(t, nil)
	tagger := &stubTagger{err: errors.New("unsupported audio format")}
	env.svc.tagger = tagger

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	st, _ := env.registry.Get("abc123")
	if st.Phase != domain.PhaseCompleted {
		t.Errorf("Expected completed despite tagging failure, got %s (%s)", st.Phase, st.ErrorMessage)
	}
	if tagger.calls != 1 {
		t.Errorf("Expected 1 tagger call, got %d", tagger.calls)
	}
	if !env.store.Exists("abc123") {
		t.Error("Expected record to be stored")
	}
}

func TestJobService_StoreFailureDefault(t *testing.T) {
	env := setupService(t, failingDocument{})

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	st, _ := env.registry.Get("abc123")
	if st.Phase != domain.PhaseCompleted {
		t.Errorf("Expected completed despite store failure, got %s", st.Phase)
	}
	if len(st.Segments) != 3 {
		t.Errorf("Expected 3 segments, got %d", len(st.Segments))
	}
}

func TestJobService_StoreFailureStrict(t *testing.T) {
	env := setupService(t, failingDocument{})
	env.svc.StrictPersistence = true

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	st, _ := env.registry.Get("abc123")
	if st.Phase != domain.PhaseFailed {
		t.Errorf("Expected failed under strict persistence, got %s", st.Phase)
	}
	if st.ErrorMessage == "" {
		t.Error("Expected an error message")
	}
}

func TestJobService_Forget(t *testing.T) {
	env := setupService(t, nil)

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	if err := env.svc.Forget("abc123"); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, err := env.reader.Query("abc123"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after forget, got %v", err)
	}
	if err := env.svc.Forget("abc123"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second forget, got %v", err)
	}
}

func TestJobService_Purge(t *testing.T) {
	env := setupService(t, nil)

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	if err := env.svc.Purge("abc123"); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if env.layout.AudioExists("abc123") || env.layout.TranscriptExists("abc123") {
		t.Error("Expected artifacts to be removed")
	}
	if _, err := env.reader.Query("abc123"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after purge, got %v", err)
	}
	if err := env.svc.Purge("abc123"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second purge, got %v", err)
	}
}

func TestJobService_PurgeRefusesActiveRun(t *testing.T) {
	env := setupService(t, nil)
	env.downloader.block = make(chan struct{})

	_, _ = env.svc.Submit("https://youtu.be/abc123")

	if err := env.svc.Purge("abc123"); !errors.Is(err, domain.ErrRunInProgress) {
		t.Errorf("Expected ErrRunInProgress, got %v", err)
	}

	close(env.downloader.block)
	env.worker.Wait()

	if err := env.svc.Purge("abc123"); err != nil {
		t.Errorf("Expected purge to succeed after the run, got %v", err)
	}
}

func TestJobService_ClearAndList(t *testing.T) {
	env := setupService(t, nil)

	_, _ = env.svc.Submit("https://youtu.be/aaa111")
	_, _ = env.svc.Submit("https://youtu.be/bbb222")
	env.worker.Wait()

	if n := len(env.svc.ListRecords()); n != 2 {
		t.Errorf("Expected 2 records, got %d", n)
	}

	if err := env.svc.ClearRecords(); err != nil {
		t.Fatalf("ClearRecords failed: %v", err)
	}
	if n := len(env.svc.ListRecords()); n != 0 {
		t.Errorf("Expected 0 records, got %d", n)
	}
	if env.registry.Len() != 0 {
		t.Errorf("Expected finished statuses to be dropped, got %d", env.registry.Len())
	}
}

func TestJobService_PruneStatuses(t *testing.T) {
	env := setupService(t, nil)

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	env.clock.Advance(48 * time.Hour)
	if n := env.svc.PruneStatuses(); n != 0 {
		t.Errorf("Expected zero retention to keep statuses, pruned %d", n)
	}
	if !env.registry.Contains("abc123") {
		t.Error("Expected status to be kept")
	}
}

func TestJobService_PruneEvictionOutcomes(t *testing.T) {
	env := setupService(t, nil)
	env.svc.Retention = time.Hour
	env.svc.FailedRetention = 24 * time.Hour

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()

	env.downloader.err = errors.New("video unavailable")
	_, _ = env.svc.Submit("https://youtu.be/def456")
	env.worker.Wait()

	env.clock.Advance(2 * time.Hour)
	if n := env.svc.PruneStatuses(); n != 1 {
		t.Errorf("Expected only the completed status to be pruned, got %d", n)
	}
	if env.registry.Contains("abc123") {
		t.Error("Expected completed status to be evicted")
	}

	view, err := env.reader.Query("abc123")
	if err != nil {
		t.Fatalf("Expected evicted completed video to be served from the store, got %v", err)
	}
	if view.Phase != domain.PhaseCompleted || view.SegmentCount != 3 || len(view.Segments) != 3 {
		t.Errorf("Unexpected view from store: %s with %d/%d segments", view.Phase, view.SegmentCount, len(view.Segments))
	}

	view, err = env.reader.Query("def456")
	if err != nil || view.Phase != domain.PhaseFailed {
		t.Fatalf("Expected failed status to outlive completed retention, got %v %v", view, err)
	}

	env.clock.Advance(23 * time.Hour)
	if n := env.svc.PruneStatuses(); n != 1 {
		t.Errorf("Expected the failed status to be pruned, got %d", n)
	}
	if _, err := env.reader.Query("def456"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound once the failed status is evicted, got %v", err)
	}

	env.downloader.err = nil
	sub, err := env.svc.Submit("https://youtu.be/def456")
	if err != nil || sub.Phase != domain.PhaseQueued {
		t.Errorf("Expected a fresh run after eviction, got %v %v", sub, err)
	}
	env.worker.Wait()
}

func TestJobService_StartRetention(t *testing.T) {
	env := setupService(t, nil)
	env.svc.Retention = time.Hour

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()
	env.clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.svc.StartRetention(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for env.registry.Contains("abc123") {
		if time.Now().After(deadline) {
			t.Fatal("Expected the retention loop to evict the completed status")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobService_StartRetentionDisabled(t *testing.T) {
	env := setupService(t, nil)

	_, _ = env.svc.Submit("https://youtu.be/abc123")
	env.worker.Wait()
	env.clock.Advance(48 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.svc.StartRetention(ctx, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	if !env.registry.Contains("abc123") {
		t.Error("Expected zero retention to keep statuses")
	}
}

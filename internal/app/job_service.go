package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/dictation/internal/domain"
	"github.com/cesargomez89/dictation/internal/logger"
	"github.com/cesargomez89/dictation/internal/reference"
	"github.com/cesargomez89/dictation/internal/registry"
	"github.com/cesargomez89/dictation/internal/storage"
	"github.com/cesargomez89/dictation/internal/store"
	"github.com/cesargomez89/dictation/internal/subtitle"
	"github.com/cesargomez89/dictation/internal/worker"
)

const internalErrorMessage = "internal error while processing video"

// JobServiceDeps are the collaborators a JobService drives
type JobServiceDeps struct {
	Store       *store.MetadataStore
	Registry    *registry.Registry
	Worker      *worker.Worker
	Downloader  Downloader
	Transcriber Transcriber
	// Tagger is optional
	Tagger TranscriptTagger
	// Layout is only needed to purge artifacts
	Layout *storage.Layout
}

// JobService accepts submissions and drives each video through
// queued, downloading, transcribing and then completed or failed.
//
// mu is held across the whole check-and-register step of Submit and around
// every store mutation, so at most one run per key is ever in flight.
type JobService struct {
	mu          sync.Mutex
	store       *store.MetadataStore
	registry    *registry.Registry
	worker      *worker.Worker
	downloader  Downloader
	transcriber Transcriber
	tagger      TranscriptTagger
	layout      *storage.Layout
	Logger      *logger.Logger
	newRunID    func() string

	// StrictPersistence fails a run whose record could not be stored.
	// Otherwise the run completes and the store error is only logged.
	StrictPersistence bool
	// Retention is how long completed statuses stay in the registry. Zero keeps them.
	Retention time.Duration
	// FailedRetention is how long failed statuses stay in the registry. Zero keeps them.
	FailedRetention time.Duration
}

func NewJobService(deps JobServiceDeps, log *logger.Logger) *JobService {
	if log == nil {
		log = logger.Default()
	}
	return &JobService{
		store:       deps.Store,
		registry:    deps.Registry,
		worker:      deps.Worker,
		downloader:  deps.Downloader,
		transcriber: deps.Transcriber,
		tagger:      deps.Tagger,
		layout:      deps.Layout,
		Logger:      log.WithComponent("job_service"),
		newRunID:    func() string { return uuid.New().String() },
	}
}

// Submit resolves ref to a key and starts a run unless the video is already
// stored with its artifacts or a run for it is in progress. It never waits
// for the run.
func (s *JobService) Submit(ref string) (*domain.Submission, error) {
	key, err := reference.ExtractKey(ref)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec := s.store.Get(key); rec != nil && storage.ArtifactsExist(rec.AudioPath, rec.TranscriptPath) {
		s.Logger.Info("Video already processed", "video_id", key)
		return &domain.Submission{Key: key, Phase: domain.PhaseCompleted}, nil
	}

	if st, ok := s.registry.Get(key); ok && !st.Phase.IsTerminal() {
		s.Logger.Info("Video already processing", "video_id", key, "run_id", st.RunID, "status", st.Phase)
		return &domain.Submission{Key: key, Phase: st.Phase}, nil
	}

	runID := s.newRunID()
	s.registry.Set(key, domain.LiveStatus{RunID: runID, Phase: domain.PhaseQueued})

	err = s.worker.Go("pipeline:"+key, func(ctx context.Context) {
		s.run(ctx, key, runID)
	})
	if err != nil {
		s.registry.Set(key, domain.LiveStatus{RunID: runID, Phase: domain.PhaseFailed, ErrorMessage: "service is shutting down"})
		return nil, fmt.Errorf("failed to schedule run: %w", err)
	}

	s.Logger.Info("Run queued", "video_id", key, "run_id", runID)
	return &domain.Submission{Key: key, Phase: domain.PhaseQueued}, nil
}

func (s *JobService) run(ctx context.Context, key, runID string) {
	log := s.Logger.WithJob(key, runID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in run", "panic", r)
			s.setStatus(key, runID, domain.LiveStatus{Phase: domain.PhaseFailed, ErrorMessage: internalErrorMessage})
		}
	}()

	log.Info("Run started")
	s.setStatus(key, runID, domain.LiveStatus{Phase: domain.PhaseDownloading})

	audio, err := s.downloader.Download(ctx, key)
	if err != nil {
		s.fail(log, key, runID, nil, domain.NewCapabilityError(domain.StageDownload, err))
		return
	}

	title := audio.Title
	if title == "" {
		title = key
	}
	s.setStatus(key, runID, domain.LiveStatus{Phase: domain.PhaseTranscribing, Title: &title})

	transcript, err := s.transcriber.Transcribe(ctx, key, audio.Path)
	if err != nil {
		s.fail(log, key, runID, &title, domain.NewCapabilityError(domain.StageTranscribe, err))
		return
	}

	segments, diagnostics := subtitle.Parse(transcript.Raw)
	for _, d := range diagnostics {
		log.Warn("Skipped malformed transcript block", "block", d.Block, "reason", d.Reason)
	}

	if s.tagger != nil && len(segments) > 0 {
		if err := s.tagger.EmbedTranscript(audio.Path, segments); err != nil {
			log.Warn("Failed to embed transcript into audio", "error", err)
		}
	}

	rec := domain.JobRecord{
		Key:            key,
		Title:          title,
		AudioPath:      audio.Path,
		TranscriptPath: transcript.Path,
		SegmentCount:   len(segments),
	}
	if err := s.persist(rec); err != nil {
		log.Error("Failed to store record", "error", err)
		if s.StrictPersistence {
			s.fail(log, key, runID, &title, domain.NewCapabilityError(domain.StagePersist, err))
			return
		}
	}

	s.setStatus(key, runID, domain.LiveStatus{Phase: domain.PhaseCompleted, Title: &title, Segments: segments})
	log.Info("Run completed", "title", title, "segments", len(segments))
}

// persist writes rec under mu. The unlock is deferred so a panic in the
// store still reaches the run's recover with mu released.
func (s *JobService) persist(rec domain.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Upsert(rec)
}

func (s *JobService) fail(log *logger.Logger, key, runID string, title *string, err error) {
	log.Error("Run failed", "error", err)
	s.setStatus(key, runID, domain.LiveStatus{Phase: domain.PhaseFailed, Title: title, ErrorMessage: err.Error()})
}

// setStatus records st for key unless the registry entry now belongs to
// another run or was removed.
func (s *JobService) setStatus(key, runID string, st domain.LiveStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.registry.Get(key)
	if !ok || current.RunID != runID {
		return
	}
	st.RunID = runID
	s.registry.Set(key, st)
}

// Forget deletes the stored record for key along with its finished status.
// Artifacts stay on disk so a later submission can reuse them.
func (s *JobService) Forget(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(key); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
		}
		return err
	}
	if st, ok := s.registry.Get(key); ok && st.Phase.IsTerminal() {
		s.registry.Delete(key)
	}
	s.Logger.Info("Video forgotten", "video_id", key)
	return nil
}

// Purge forgets key and deletes its artifacts. It refuses while a run for
// key is in flight.
func (s *JobService) Purge(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.registry.Get(key); ok && !st.Phase.IsTerminal() {
		return fmt.Errorf("%w: %s", domain.ErrRunInProgress, key)
	}
	if s.layout == nil {
		return errors.New("purge is not configured")
	}

	err := s.store.Delete(key)
	if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
		return err
	}
	found := err == nil
	if s.registry.Delete(key) {
		found = true
	}
	if !found && !s.layout.AudioExists(key) && !s.layout.TranscriptExists(key) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	if err := s.layout.Remove(key); err != nil {
		return fmt.Errorf("failed to remove artifacts: %w", err)
	}
	s.Logger.Info("Video purged", "video_id", key)
	return nil
}

// ClearRecords empties the store and drops every finished status
func (s *JobService) ClearRecords() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		return err
	}
	dropped := s.registry.DropTerminal()
	s.Logger.Info("Records cleared", "statuses_dropped", dropped)
	return nil
}

func (s *JobService) ListRecords() []domain.JobRecord {
	return s.store.ReadAll()
}

// PruneStatuses evicts completed statuses older than Retention and failed
// ones older than FailedRetention
func (s *JobService) PruneStatuses() int {
	removed := s.registry.Prune(s.Retention, s.FailedRetention)
	if removed > 0 {
		s.Logger.Debug("Pruned finished statuses", "count", removed)
	}
	return removed
}

// StartRetention prunes statuses every interval until ctx is done
func (s *JobService) StartRetention(ctx context.Context, interval time.Duration) {
	if (s.Retention <= 0 && s.FailedRetention <= 0) || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.PruneStatuses()
			}
		}
	}()
}

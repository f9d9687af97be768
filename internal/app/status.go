package app

import (
	"fmt"

	"github.com/cesargomez89/dictation/internal/domain"
	"github.com/cesargomez89/dictation/internal/logger"
	"github.com/cesargomez89/dictation/internal/registry"
	"github.com/cesargomez89/dictation/internal/storage"
	"github.com/cesargomez89/dictation/internal/store"
	"github.com/cesargomez89/dictation/internal/subtitle"
)

const missingFilesMessage = "missing files"

// StatusReader answers status polls. The registry is authoritative for runs
// of this process; the store covers videos processed by earlier ones.
type StatusReader struct {
	registry *registry.Registry
	store    *store.MetadataStore
	Logger   *logger.Logger
}

func NewStatusReader(reg *registry.Registry, st *store.MetadataStore, log *logger.Logger) *StatusReader {
	if log == nil {
		log = logger.Default()
	}
	return &StatusReader{
		registry: reg,
		store:    st,
		Logger:   log.WithComponent("status_reader"),
	}
}

// Query returns the status view for key, or domain.ErrNotFound when the key
// is unknown to both the registry and the store.
func (r *StatusReader) Query(key string) (*domain.StatusView, error) {
	if st, ok := r.registry.Get(key); ok {
		view := st.View()
		return &view, nil
	}

	rec := r.store.Get(key)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}

	if !storage.ArtifactsExist(rec.AudioPath, rec.TranscriptPath) {
		r.Logger.Warn("Stored video is missing artifacts", "video_id", key)
		return &domain.StatusView{Phase: domain.PhaseFailed, ErrorMessage: missingFilesMessage}, nil
	}

	segments, diagnostics, err := subtitle.ParseFile(rec.TranscriptPath)
	if err != nil {
		r.Logger.Error("Failed to read transcript", "video_id", key, "error", err)
		return &domain.StatusView{Phase: domain.PhaseFailed, ErrorMessage: missingFilesMessage}, nil
	}
	if len(diagnostics) > 0 {
		r.Logger.Debug("Transcript has malformed blocks", "video_id", key, "skipped", len(diagnostics))
	}

	return &domain.StatusView{
		Phase:        domain.PhaseCompleted,
		Title:        domain.StringPtr(rec.Title),
		Segments:     segments,
		SegmentCount: len(segments),
	}, nil
}

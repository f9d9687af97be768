package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cesargomez89/dictation/internal/domain"
	"github.com/cesargomez89/dictation/internal/logger"
)

var (
	ErrMissingKey     = errors.New("record key is required")
	ErrMissingTitle   = errors.New("record title is required")
	ErrRecordNotFound = errors.New("record not found")
)

// MetadataStore persists job records as one ordered JSON array held in a
// Document. Every mutation is a full read-modify-write of the document and
// is not serialized here: callers that need atomicity across a read and a
// write must hold their own lock.
type MetadataStore struct {
	doc    Document
	logger *logger.Logger
	now    func() time.Time
}

func NewMetadataStore(doc Document, log *logger.Logger) *MetadataStore {
	if log == nil {
		log = logger.Default()
	}
	return &MetadataStore{
		doc:    doc,
		logger: log.WithComponent("metadata_store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ReadAll returns every record in insertion order. A missing, unreadable or
// malformed document is logged and read as empty.
func (s *MetadataStore) ReadAll() []domain.JobRecord {
	data, err := s.doc.Load()
	if err != nil {
		s.logger.Error("Failed to load metadata document", "error", err)
		return []domain.JobRecord{}
	}
	if len(data) == 0 {
		return []domain.JobRecord{}
	}

	var stored []storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.Error("Metadata document is corrupt, treating as empty", "error", err)
		return []domain.JobRecord{}
	}

	records := make([]domain.JobRecord, 0, len(stored))
	for _, sr := range stored {
		if sr.VideoID == "" {
			s.logger.Warn("Skipping stored record without video_id", "title", sr.Title)
			continue
		}
		records = append(records, sr.toRecord())
	}
	return records
}

// Upsert replaces the record with the same key in place, or appends it.
// CreatedAt is kept from the stored record when the incoming one has none,
// and set to the current time when neither has one.
func (s *MetadataStore) Upsert(rec domain.JobRecord) error {
	if rec.Key == "" {
		return ErrMissingKey
	}
	if rec.Title == "" {
		return ErrMissingTitle
	}

	records := s.ReadAll()
	idx := indexOf(records, rec.Key)

	if rec.CreatedAt == nil {
		if idx >= 0 && records[idx].CreatedAt != nil {
			rec.CreatedAt = records[idx].CreatedAt
		} else {
			now := s.now()
			rec.CreatedAt = &now
		}
	}

	if idx >= 0 {
		records[idx] = rec
	} else {
		records = append(records, rec)
	}

	return s.write(records)
}

// Get returns the record for key, or nil if there is none
func (s *MetadataStore) Get(key string) *domain.JobRecord {
	records := s.ReadAll()
	if idx := indexOf(records, key); idx >= 0 {
		rec := records[idx]
		return &rec
	}
	return nil
}

func (s *MetadataStore) Exists(key string) bool {
	return s.Get(key) != nil
}

func (s *MetadataStore) Delete(key string) error {
	records := s.ReadAll()
	idx := indexOf(records, key)
	if idx < 0 {
		s.logger.Warn("Record not found for deletion", "video_id", key)
		return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}

	records = append(records[:idx], records[idx+1:]...)
	return s.write(records)
}

func (s *MetadataStore) Clear() error {
	return s.write([]domain.JobRecord{})
}

func (s *MetadataStore) write(records []domain.JobRecord) error {
	stored := make([]storedRecord, 0, len(records))
	for _, rec := range records {
		stored = append(stored, toStored(rec))
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := s.doc.Save(data); err != nil {
		s.logger.Error("Failed to save metadata document", "error", err)
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}

func indexOf(records []domain.JobRecord, key string) int {
	for i := range records {
		if records[i].Key == key {
			return i
		}
	}
	return -1
}

package store

import (
	"time"

	"github.com/cesargomez89/dictation/internal/domain"
)

// storedRecord is the on-disk shape of a JobRecord. Field names follow the
// cache.json layout of existing deployments so their files load as is.
type storedRecord struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	AudioPath    string `json:"audio_path,omitempty"`
	SRTPath      string `json:"srt_path,omitempty"`
	SegmentCount int    `json:"segment_count"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// Timestamps written without a zone are local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func toStored(rec domain.JobRecord) storedRecord {
	out := storedRecord{
		VideoID:      rec.Key,
		Title:        rec.Title,
		AudioPath:    rec.AudioPath,
		SRTPath:      rec.TranscriptPath,
		SegmentCount: rec.SegmentCount,
	}
	if rec.CreatedAt != nil {
		out.Timestamp = rec.CreatedAt.Format(time.RFC3339Nano)
	}
	return out
}

func (r storedRecord) toRecord() domain.JobRecord {
	return domain.JobRecord{
		Key:            r.VideoID,
		Title:          r.Title,
		AudioPath:      r.AudioPath,
		TranscriptPath: r.SRTPath,
		SegmentCount:   r.SegmentCount,
		CreatedAt:      parseTimestamp(r.Timestamp),
	}
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

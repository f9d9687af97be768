package dto

import (
	"time"

	"github.com/cesargomez89/dictation/internal/domain"
)

// ProcessVideoRequest is the body of a submission, as JSON or as a form post
type ProcessVideoRequest struct {
	YoutubeURL string `json:"youtube_url" form:"youtube_url" validate:"required"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	App    string `json:"app"`
}

type VideoResponse struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	SegmentCount int    `json:"segment_count"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func NewVideoResponse(rec domain.JobRecord) VideoResponse {
	resp := VideoResponse{
		VideoID:      rec.Key,
		Title:        rec.Title,
		SegmentCount: rec.SegmentCount,
	}
	if rec.CreatedAt != nil {
		resp.CreatedAt = rec.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func NewVideoListResponse(recs []domain.JobRecord) []VideoResponse {
	out := make([]VideoResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, NewVideoResponse(rec))
	}
	return out
}

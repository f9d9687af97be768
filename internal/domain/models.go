package domain

import (
	"time"
)

// Phase is the stage of the pipeline state machine for one video
type Phase string

const (
	PhaseQueued       Phase = "queued"
	PhaseDownloading  Phase = "downloading"
	PhaseTranscribing Phase = "transcribing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// IsTerminal reports whether no further transitions happen for the run.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Segment is one time-coded unit of transcribed text.
// Index is a zero-based renumbering of emitted segments.
type Segment struct {
	Index int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// JobRecord is the durable metadata of a completed video. Its stored
// layout belongs to the store package.
type JobRecord struct {
	Key            string
	Title          string
	AudioPath      string
	TranscriptPath string
	SegmentCount   int
	CreatedAt      *time.Time
}

// LiveStatus is the in-memory progress of the latest run for a video
type LiveStatus struct {
	Key          string
	RunID        string
	Phase        Phase
	Title        *string
	Segments     []Segment
	ErrorMessage string
	UpdatedAt    time.Time
}

// StatusView is what pollers see for a video, whichever source answered
type StatusView struct {
	Phase        Phase     `json:"status"`
	Title        *string   `json:"title"`
	Segments     []Segment `json:"segments"`
	SegmentCount int       `json:"segment_count"`
	ErrorMessage string    `json:"error,omitempty"`
}

// Submission is the synchronous answer to a submit call
type Submission struct {
	Key   string `json:"video_id"`
	Phase Phase  `json:"status"`
}

// Audio is what the download capability produces
type Audio struct {
	Key   string
	Title string
	Path  string
}

// Transcript is what the transcription capability produces
type Transcript struct {
	Path string
	Raw  string
}

// View converts a live status into the poller-facing view.
func (s LiveStatus) View() StatusView {
	view := StatusView{
		Phase:        s.Phase,
		Title:        s.Title,
		ErrorMessage: s.ErrorMessage,
	}
	if s.Phase == PhaseCompleted {
		view.Segments = s.Segments
		view.SegmentCount = len(s.Segments)
	}
	return view
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

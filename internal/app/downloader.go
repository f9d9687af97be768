package app

import (
	"context"

	"github.com/cesargomez89/dictation/internal/domain"
)

// Downloader produces the audio artifact and title for a video key. It must
// return an existing artifact without fetching it again.
type Downloader interface {
	Download(ctx context.Context, key string) (*domain.Audio, error)
}

// Transcriber produces the raw SRT transcript for an audio artifact. It must
// return an existing transcript without calling the remote service again.
type Transcriber interface {
	Transcribe(ctx context.Context, key, audioPath string) (*domain.Transcript, error)
}

// TranscriptTagger embeds parsed segments into the audio artifact
type TranscriptTagger interface {
	EmbedTranscript(audioPath string, segments []domain.Segment) error
}

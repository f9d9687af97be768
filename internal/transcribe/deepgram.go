// Package transcribe turns audio artifacts into SRT transcripts through the
// Deepgram pre-recorded audio API.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/cesargomez89/dictation/internal/constants"
	"github.com/cesargomez89/dictation/internal/domain"
	"github.com/cesargomez89/dictation/internal/httpclient"
	"github.com/cesargomez89/dictation/internal/logger"
	"github.com/cesargomez89/dictation/internal/storage"
	"github.com/cesargomez89/dictation/internal/subtitle"
)

// Deepgram writes transcripts into a storage.Layout
type Deepgram struct {
	client  *httpclient.Client
	layout  *storage.Layout
	logger  *logger.Logger
	BaseURL string
	APIKey  string
	Model   string
}

func NewDeepgram(baseURL, apiKey, model string, client *httpclient.Client, layout *storage.Layout, log *logger.Logger) *Deepgram {
	if baseURL == "" {
		baseURL = constants.DefaultDeepgramURL
	}
	if model == "" {
		model = constants.DefaultDeepgramModel
	}
	if client == nil {
		client = httpclient.NewClient(nil, 0)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Deepgram{
		client:  client,
		layout:  layout,
		logger:  log.WithComponent("deepgram"),
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
	}
}

type utterance struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Transcript string  `json:"transcript"`
}

type listenResponse struct {
	Metadata struct {
		RequestID string  `json:"request_id"`
		Duration  float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Utterances []utterance `json:"utterances"`
		Channels   []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe produces the SRT transcript for key. A transcript artifact
// already on disk is returned without calling the API.
func (d *Deepgram) Transcribe(ctx context.Context, key, audioPath string) (*domain.Transcript, error) {
	srtPath := d.layout.TranscriptPath(key)
	log := d.logger.WithVideo(key)

	if d.layout.TranscriptExists(key) {
		raw, err := storage.ReadFile(srtPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read existing transcript: %w", err)
		}
		log.Info("Transcript already exists", "path", srtPath)
		return &domain.Transcript{Path: srtPath, Raw: string(raw)}, nil
	}

	audio, err := storage.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}
	log.Info("Starting transcription", "audio", audioPath, "size", humanize.Bytes(uint64(len(audio))))

	resp, err := d.listen(ctx, audioPath, audio)
	if err != nil {
		return nil, err
	}

	raw := subtitle.Encode(cues(resp))
	if err := storage.WriteFile(srtPath, []byte(raw)); err != nil {
		return nil, fmt.Errorf("failed to write transcript: %w", err)
	}

	log.Info("Transcript generated",
		"path", srtPath,
		"request_id", resp.Metadata.RequestID,
		"size", humanize.Bytes(uint64(len(raw))),
	)
	return &domain.Transcript{Path: srtPath, Raw: raw}, nil
}

func (d *Deepgram) listen(ctx context.Context, audioPath string, audio []byte) (*listenResponse, error) {
	q := url.Values{}
	q.Set("model", d.Model)
	q.Set("utterances", "true")
	q.Set("smart_format", "true")
	endpoint := d.BaseURL + "/v1/listen?" + q.Encode()

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.APIKey)
	req.Header.Set("Content-Type", contentType(audioPath))
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read deepgram response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return nil, apiErr
	}

	var out listenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode deepgram response: %w", err)
	}
	return &out, nil
}

// cues prefers utterances. Without them the whole channel transcript
// becomes one cue spanning the audio.
func cues(resp *listenResponse) []subtitle.Cue {
	if len(resp.Results.Utterances) > 0 {
		out := make([]subtitle.Cue, 0, len(resp.Results.Utterances))
		for _, u := range resp.Results.Utterances {
			out = append(out, subtitle.Cue{Start: u.Start, End: u.End, Text: u.Transcript})
		}
		return out
	}

	for _, ch := range resp.Results.Channels {
		for _, alt := range ch.Alternatives {
			if strings.TrimSpace(alt.Transcript) != "" {
				return []subtitle.Cue{{Start: 0, End: resp.Metadata.Duration, Text: alt.Transcript}}
			}
		}
	}
	return nil
}

func contentType(audioPath string) string {
	switch strings.ToLower(filepath.Ext(audioPath)) {
	case ".flac":
		return constants.MimeTypeFLAC
	case ".mp3":
		return constants.MimeTypeMP3
	default:
		return "application/octet-stream"
	}
}

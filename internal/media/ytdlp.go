// Package media fetches the audio track of a video with yt-dlp.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/cesargomez89/dictation/internal/constants"
	"github.com/cesargomez89/dictation/internal/domain"
	"github.com/cesargomez89/dictation/internal/logger"
	"github.com/cesargomez89/dictation/internal/reference"
	"github.com/cesargomez89/dictation/internal/storage"
	"github.com/cesargomez89/dictation/internal/tagging"
)

// Tagger reads and writes tags of downloaded audio
type Tagger interface {
	TagFile(filePath string, md tagging.Metadata) error
	ReadTitle(filePath string) (string, error)
}

// YtDlp downloads audio artifacts into a storage.Layout
type YtDlp struct {
	layout    *storage.Layout
	runner    commandRunner
	tagger    Tagger
	logger    *logger.Logger
	Path      string
	Quality   string
	EmbedTags bool
}

func NewYtDlp(path string, layout *storage.Layout, embedTags bool, log *logger.Logger) *YtDlp {
	if path == "" {
		path = constants.DefaultYtDlpPath
	}
	if log == nil {
		log = logger.Default()
	}
	return &YtDlp{
		layout:    layout,
		runner:    &execRunner{},
		tagger:    tagging.New(),
		logger:    log.WithComponent("ytdlp"),
		Path:      path,
		Quality:   constants.DefaultAudioQuality,
		EmbedTags: embedTags,
	}
}

// Download fetches the audio for key. An audio artifact already on disk is
// returned as is without running yt-dlp.
func (d *YtDlp) Download(ctx context.Context, key string) (*domain.Audio, error) {
	audioPath := d.layout.AudioPath(key)
	log := d.logger.WithVideo(key)

	if d.layout.AudioExists(key) {
		log.Info("Audio already exists", "path", audioPath)
		return &domain.Audio{Key: key, Title: d.existingTitle(key), Path: audioPath}, nil
	}

	if err := d.layout.EnsureDir(); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}

	log.Info("Starting download", "url", reference.WatchURL(key))
	res, err := d.runner.Run(ctx, d.Path, d.args(key)...)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp exited with code %d: %s", res.ExitCode, lastLine(res.Stderr, err))
	}

	if !d.layout.AudioExists(key) {
		return nil, fmt.Errorf("yt-dlp finished but %s was not created", audioPath)
	}

	title := readInfoTitle(d.layout.InfoPath(key))
	if title == "" {
		title = key
	}

	if d.EmbedTags {
		d.embed(key, title, log)
	}

	log.Info("Audio downloaded",
		"path", audioPath,
		"title", title,
		"size", humanize.Bytes(storage.FileSize(audioPath)),
	)
	return &domain.Audio{Key: key, Title: title, Path: audioPath}, nil
}

func (d *YtDlp) args(key string) []string {
	return []string{
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", d.layout.AudioExt,
		"--audio-quality", d.Quality,
		"--write-info-json",
		"--write-thumbnail",
		"--convert-thumbnails", "jpg",
		"--no-playlist",
		"--no-progress",
		"--output", d.layout.OutputTemplate(key),
		reference.WatchURL(key),
	}
}

// existingTitle resolves the title of an earlier download: the info file
// first, then the audio's own title tag, then the key itself.
func (d *YtDlp) existingTitle(key string) string {
	if title := readInfoTitle(d.layout.InfoPath(key)); title != "" {
		return title
	}
	if d.tagger != nil {
		if title, err := d.tagger.ReadTitle(d.layout.AudioPath(key)); err == nil && title != "" {
			return title
		}
	}
	return key
}

func (d *YtDlp) embed(key, title string, log *logger.Logger) {
	if d.tagger == nil {
		return
	}

	cover, err := storage.ReadFile(d.layout.ThumbnailPath(key))
	if err != nil {
		cover = nil
	}

	if err := d.tagger.TagFile(d.layout.AudioPath(key), tagging.Metadata{Title: title, Cover: cover}); err != nil {
		log.Warn("Failed to tag audio", "error", err)
	}
}

type videoInfo struct {
	Title string `json:"title"`
}

func readInfoTitle(path string) string {
	data, err := storage.ReadFile(path)
	if err != nil {
		return ""
	}
	var info videoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return ""
	}
	return strings.TrimSpace(info.Title)
}

func lastLine(stderr string, err error) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return last
	}
	return err.Error()
}

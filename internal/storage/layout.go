package storage

import (
	"path/filepath"
	"strings"

	"github.com/cesargomez89/dictation/internal/constants"
)

// Layout maps a video key to the artifact files stored for it. Every
// artifact lives directly in Dir and is named after the key.
type Layout struct {
	Dir      string
	AudioExt string // without the leading dot, e.g. "mp3"
}

func NewLayout(dir, audioFormat string) *Layout {
	ext := strings.TrimPrefix(strings.ToLower(audioFormat), ".")
	if ext == "" {
		ext = constants.DefaultAudioFormat
	}
	return &Layout{Dir: dir, AudioExt: ext}
}

func (l *Layout) path(key, ext string) string {
	return filepath.Join(l.Dir, Sanitize(key)+ext)
}

func (l *Layout) AudioPath(key string) string {
	return l.path(key, "."+l.AudioExt)
}

func (l *Layout) TranscriptPath(key string) string {
	return l.path(key, constants.ExtSRT)
}

func (l *Layout) InfoPath(key string) string {
	return l.path(key, constants.ExtInfoJSON)
}

func (l *Layout) ThumbnailPath(key string) string {
	return l.path(key, constants.ExtJPG)
}

// OutputTemplate is the yt-dlp output template that produces AudioPath,
// InfoPath and ThumbnailPath for key.
func (l *Layout) OutputTemplate(key string) string {
	return l.path(key, ".%(ext)s")
}

func (l *Layout) AudioExists(key string) bool {
	return FileExists(l.AudioPath(key))
}

func (l *Layout) TranscriptExists(key string) bool {
	return FileExists(l.TranscriptPath(key))
}

// ArtifactsExist reports whether both files a record points at are present.
// Empty locators count as missing.
func ArtifactsExist(audioPath, transcriptPath string) bool {
	if audioPath == "" || transcriptPath == "" {
		return false
	}
	return FileExists(audioPath) && FileExists(transcriptPath)
}

func (l *Layout) EnsureDir() error {
	return EnsureDir(l.Dir)
}

// Remove deletes every artifact stored for key
func (l *Layout) Remove(key string) error {
	for _, p := range []string{l.AudioPath(key), l.TranscriptPath(key), l.InfoPath(key), l.ThumbnailPath(key)} {
		if err := RemoveFile(p); err != nil {
			return err
		}
	}
	return nil
}

// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultAppName           = "English Dictation App"
	DefaultPort              = "8000"
	DefaultAudioDir          = "data/audios"
	DefaultDBPath            = "dictation.db"
	DefaultStoreBackend      = StoreBackendFile
	DefaultDeepgramURL       = "https://api.deepgram.com"
	DefaultDeepgramModel     = "nova-3"
	DefaultYtDlpPath         = "yt-dlp"
	DefaultAudioFormat       = AudioFormatMP3
	DefaultAudioQuality      = "192K"
	DefaultConcurrency       = 2
	DefaultStatusRetention   = 1 * time.Hour
	DefaultFailedRetention   = 24 * time.Hour
	DefaultRetentionInterval = 5 * time.Minute
	DefaultHTTPTimeout       = 10 * time.Minute
	DefaultRetryCount        = 3
	DefaultRetryBase         = 1 * time.Second
	DefaultShutdownTimeout   = 30 * time.Second
)

// Metadata store backends
const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
)

// Audio formats produced by the extractor
const (
	AudioFormatMP3  = "mp3"
	AudioFormatFLAC = "flac"
)

// Artifact names
const (
	MetadataFileName  = "cache.json"
	MetadataDocument  = "job_records"
	ExtSRT            = ".srt"
	ExtInfoJSON       = ".info.json"
	ExtJPG            = ".jpg"
	SubtitleLineWords = 8
)

// MIME Types
const (
	MimeTypeFLAC = "audio/flac"
	MimeTypeMP3  = "audio/mpeg"
	MimeTypeJPEG = "image/jpeg"
)

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Request limits
const (
	MaxReferenceLength = 2048
	MaxRequestBytes    = 64 * 1024
)

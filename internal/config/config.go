package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cesargomez89/dictation/internal/constants"
)

// Config holds all application configuration
type Config struct {
	AppName           string
	Port              string
	AudioDir          string
	StoreBackend      string
	DBPath            string
	DeepgramAPIKey    string
	DeepgramURL       string
	DeepgramModel     string
	YtDlpPath         string
	AudioFormat       string
	LogLevel          string
	LogFormat         string
	MaxConcurrentJobs int
	StatusRetention   time.Duration
	FailedRetention   time.Duration
	StrictPersistence bool
	EmbedTags         bool

	parseErrors []string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		AppName:        getEnv("APP_NAME", constants.DefaultAppName),
		Port:           getEnv("PORT", constants.DefaultPort),
		AudioDir:       getEnv("AUDIO_DIR", constants.DefaultAudioDir),
		StoreBackend:   getEnv("STORE_BACKEND", constants.DefaultStoreBackend),
		DBPath:         getEnv("DB_PATH", constants.DefaultDBPath),
		DeepgramAPIKey: getEnv("DEEPGRAM_API_KEY", ""),
		DeepgramURL:    getEnv("DEEPGRAM_URL", constants.DefaultDeepgramURL),
		DeepgramModel:  getEnv("DEEPGRAM_MODEL", constants.DefaultDeepgramModel),
		YtDlpPath:      getEnv("YTDLP_PATH", constants.DefaultYtDlpPath),
		AudioFormat:    strings.ToLower(getEnv("AUDIO_FORMAT", constants.DefaultAudioFormat)),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}

	cfg.MaxConcurrentJobs = cfg.getEnvInt("MAX_CONCURRENT_JOBS", constants.DefaultConcurrency)
	cfg.StatusRetention = cfg.getEnvDuration("STATUS_RETENTION", constants.DefaultStatusRetention)
	cfg.FailedRetention = cfg.getEnvDuration("FAILED_STATUS_RETENTION", constants.DefaultFailedRetention)
	cfg.StrictPersistence = cfg.getEnvBool("STRICT_PERSISTENCE", false)
	cfg.EmbedTags = cfg.getEnvBool("EMBED_TAGS", true)

	return cfg
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	errors := append([]string(nil), c.parseErrors...)

	// Validate Port
	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.AudioDir == "" {
		errors = append(errors, "AUDIO_DIR cannot be empty")
	}

	switch c.StoreBackend {
	case constants.StoreBackendFile:
	case constants.StoreBackendSQLite:
		if c.DBPath == "" {
			errors = append(errors, "DB_PATH cannot be empty when STORE_BACKEND is sqlite")
		}
	default:
		errors = append(errors, fmt.Sprintf("STORE_BACKEND must be one of: file, sqlite, got: %s", c.StoreBackend))
	}

	if c.DeepgramAPIKey == "" {
		errors = append(errors, "DEEPGRAM_API_KEY cannot be empty")
	}
	if c.DeepgramURL == "" {
		errors = append(errors, "DEEPGRAM_URL cannot be empty")
	}
	if c.YtDlpPath == "" {
		errors = append(errors, "YTDLP_PATH cannot be empty")
	}

	validFormats := map[string]bool{
		constants.AudioFormatMP3:  true,
		constants.AudioFormatFLAC: true,
	}
	if !validFormats[c.AudioFormat] {
		errors = append(errors, fmt.Sprintf("AUDIO_FORMAT must be one of: mp3, flac, got: %s", c.AudioFormat))
	}

	if c.MaxConcurrentJobs < 1 {
		errors = append(errors, fmt.Sprintf("MAX_CONCURRENT_JOBS must be at least 1, got: %d", c.MaxConcurrentJobs))
	}
	if c.StatusRetention < 0 {
		errors = append(errors, fmt.Sprintf("STATUS_RETENTION cannot be negative, got: %s", c.StatusRetention))
	}
	if c.FailedRetention < 0 {
		errors = append(errors, fmt.Sprintf("FAILED_STATUS_RETENTION cannot be negative, got: %s", c.FailedRetention))
	}

	// Validate LogLevel
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	// Validate LogFormat
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func (c *Config) getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s must be a valid number, got: %s", key, value))
		return fallback
	}
	return n
}

func (c *Config) getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	if value == "0" {
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s must be a valid duration, got: %s", key, value))
		return fallback
	}
	return d
}

func (c *Config) getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("%s must be true or false, got: %s", key, value))
		return fallback
	}
	return b
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/cesargomez89/dictation/internal/app"
	"github.com/cesargomez89/dictation/internal/config"
	"github.com/cesargomez89/dictation/internal/constants"
	httpapp "github.com/cesargomez89/dictation/internal/http"
	"github.com/cesargomez89/dictation/internal/httpclient"
	"github.com/cesargomez89/dictation/internal/logger"
	"github.com/cesargomez89/dictation/internal/media"
	"github.com/cesargomez89/dictation/internal/registry"
	"github.com/cesargomez89/dictation/internal/storage"
	"github.com/cesargomez89/dictation/internal/store"
	"github.com/cesargomez89/dictation/internal/tagging"
	"github.com/cesargomez89/dictation/internal/transcribe"
	"github.com/cesargomez89/dictation/internal/worker"
)

func main() {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	layout := storage.NewLayout(cfg.AudioDir, cfg.AudioFormat)
	if err := layout.EnsureDir(); err != nil {
		appLogger.Error("Failed to create audio directory", "dir", cfg.AudioDir, "error", err)
		os.Exit(1)
	}

	// Initialize metadata store
	var doc store.Document
	switch cfg.StoreBackend {
	case constants.StoreBackendSQLite:
		db, err := store.NewSQLiteDB(cfg.DBPath)
		if err != nil {
			appLogger.Error("Failed to init DB", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		doc = store.NewSQLDocument(db, constants.MetadataDocument)
	default:
		doc = store.NewFileDocument(filepath.Join(cfg.AudioDir, constants.MetadataFileName))
	}
	metadata := store.NewMetadataStore(doc, appLogger)
	appLogger.Info("Metadata store ready", "backend", cfg.StoreBackend, "records", len(metadata.ReadAll()))

	reg := registry.New()
	w := worker.NewWorker(cfg.MaxConcurrentJobs, appLogger)

	// Initialize capabilities
	downloader := media.NewYtDlp(cfg.YtDlpPath, layout, cfg.EmbedTags, appLogger)
	transcriber := transcribe.NewDeepgram(cfg.DeepgramURL, cfg.DeepgramAPIKey, cfg.DeepgramModel,
		httpclient.NewClient(nil, 0), layout, appLogger)

	deps := app.JobServiceDeps{
		Store:       metadata,
		Registry:    reg,
		Worker:      w,
		Downloader:  downloader,
		Transcriber: transcriber,
		Layout:      layout,
	}
	if cfg.EmbedTags {
		deps.Tagger = tagging.New()
	}

	// Initialize Services
	jobService := app.NewJobService(deps, appLogger)
	jobService.StrictPersistence = cfg.StrictPersistence
	jobService.Retention = cfg.StatusRetention
	jobService.FailedRetention = cfg.FailedRetention

	ctx, stopRetention := context.WithCancel(context.Background())
	defer stopRetention()
	jobService.StartRetention(ctx, constants.DefaultRetentionInterval)

	statusReader := app.NewStatusReader(reg, metadata, appLogger)

	// Initialize Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Routes
	h := httpapp.NewHandler(jobService, statusReader, cfg.AppName, appLogger)
	h.RegisterRoutes(r)

	// Start Server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		appLogger.Info("Server listening", "addr", srv.Addr, "app", cfg.AppName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	if err := w.Stop(shutdownCtx); err != nil {
		appLogger.Warn("Runs still in flight at shutdown", "error", err)
	}

	appLogger.Info("Server exiting")
}

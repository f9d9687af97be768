package httpapp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/form/v4"

	"github.com/cesargomez89/dictation/internal/app"
	"github.com/cesargomez89/dictation/internal/http/dto"
	"github.com/cesargomez89/dictation/internal/logger"
)

type Handler struct {
	JobService   *app.JobService
	StatusReader *app.StatusReader
	AppName      string
	Logger       *logger.Logger

	formDecoder *form.Decoder
}

func NewHandler(js *app.JobService, sr *app.StatusReader, appName string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		JobService:   js,
		StatusReader: sr,
		AppName:      appName,
		Logger:       log.WithComponent("http"),
		formDecoder:  form.NewDecoder(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/process-video", h.ProcessVideo)
		r.Get("/videos", h.ListVideos)
		r.Delete("/videos", h.ClearVideos)
		r.Get("/video/{id}/status", h.VideoStatus)
		r.Delete("/video/{id}", h.ForgetVideo)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/dictation/internal/constants"
	"github.com/cesargomez89/dictation/internal/domain"
	"github.com/cesargomez89/dictation/internal/http/dto"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", App: h.AppName})
}

func (h *Handler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeProcessVideo(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if errs := dto.Validate(req); len(errs) > 0 {
		h.writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:  dto.ToResponse(errs),
			Fields: dto.ToMap(errs),
		})
		return
	}

	sub, err := h.JobService.Submit(req.YoutubeURL)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidReference) {
			h.writeError(w, http.StatusBadRequest, "Invalid YouTube URL")
			return
		}
		h.Logger.Error("Failed to submit video", "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, sub)
}

// decodeProcessVideo accepts a JSON body or a form post
func (h *Handler) decodeProcessVideo(w http.ResponseWriter, r *http.Request) (*dto.ProcessVideoRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBytes)

	var req dto.ProcessVideoRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
		if err := h.formDecoder.Decode(&req, r.PostForm); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
	}

	return &req, nil
}

func (h *Handler) VideoStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.StatusReader.Query(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Video not found")
			return
		}
		h.Logger.Error("Failed to read status", "video_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, dto.NewVideoListResponse(h.JobService.ListRecords()))
}

func (h *Handler) ForgetVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var err error
	if purge, _ := strconv.ParseBool(r.URL.Query().Get("purge")); purge {
		err = h.JobService.Purge(id)
	} else {
		err = h.JobService.Forget(id)
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "Video not found")
			return
		case errors.Is(err, domain.ErrRunInProgress):
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.Logger.Error("Failed to forget video", "video_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearVideos(w http.ResponseWriter, r *http.Request) {
	if err := h.JobService.ClearRecords(); err != nil {
		h.Logger.Error("Failed to clear records", "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

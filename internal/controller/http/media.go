package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flintapp/flint-core/internal/domain/media/entity"
	"github.com/flintapp/flint-core/internal/domain/media/service"
	"github.com/flintapp/flint-core/internal/httpx/response"
	"github.com/flintapp/flint-core/internal/storage"
)

// MediaService defines the interface for ephemeral media sessions
type MediaService interface {
	Open(ctx context.Context, in service.OpenInput) (*service.Snapshot, error)
	MarkLoaded(ctx context.Context, sessionID string) (*service.Snapshot, error)
	MarkLoadFailed(ctx context.Context, sessionID string) (*service.Snapshot, error)
	Dismiss(ctx context.Context, sessionID string) (*service.Snapshot, error)
	Signal(ctx context.Context, sessionID string, sig entity.Signal) (*service.Snapshot, error)
	State(ctx context.Context, sessionID string) (*service.Snapshot, error)
}

// PhotoUploader stores a sender's photo and returns its media reference
type PhotoUploader interface {
	Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadOutput, error)
}

// MediaHandler handles HTTP requests for self-destructing photos
type MediaHandler struct {
	svc      MediaService
	uploader PhotoUploader
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(svc MediaService, uploader PhotoUploader) *MediaHandler {
	return &MediaHandler{svc: svc, uploader: uploader}
}

// RegisterRoutes registers media session routes
func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.Route("/media", func(r chi.Router) {
		r.Post("/photos", h.UploadPhoto())
		r.Post("/sessions", h.OpenSession())
		r.Get("/sessions/{sessionId}", h.SessionState())
		r.Post("/sessions/{sessionId}/loaded", h.Loaded())
		r.Post("/sessions/{sessionId}/load-failed", h.LoadFailed())
		r.Post("/sessions/{sessionId}/dismiss", h.Dismiss())
		r.Post("/sessions/{sessionId}/signals", h.Signal())
	})
}

// UploadPhotoResponse represents the response for a photo upload
type UploadPhotoResponse struct {
	MediaRef string `json:"media_ref"`
	Size     int64  `json:"size"`
}

// UploadPhoto handles POST /media/photos (multipart is overkill for a single
// image; the body is the raw image bytes)
func (h *MediaHandler) UploadPhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			response.BadRequest(w, "Content-Type is required")
			return
		}

		out, err := h.uploader.Upload(r.Context(), storage.UploadInput{
			Reader:      r.Body,
			ContentType: contentType,
			Size:        r.ContentLength,
		})
		if err != nil {
			response.InternalError(w, "upload failed")
			return
		}

		response.Created(w, UploadPhotoResponse{MediaRef: out.Key, Size: out.Size})
	}
}

// OpenSessionRequest represents the request body for opening a viewing session
type OpenSessionRequest struct {
	MatchID         string `json:"match_id"`
	MediaRef        string `json:"media_ref"`
	SenderName      string `json:"sender_name"`
	ViewerID        string `json:"viewer_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

// SessionResponse represents the viewer-facing session snapshot
type SessionResponse struct {
	Session     entity.Session `json:"session"`
	RemainingMs int64          `json:"remaining_ms"`
	URL         string         `json:"url,omitempty"`
	Placeholder bool           `json:"placeholder"`
}

func sessionResponse(snap *service.Snapshot) SessionResponse {
	return SessionResponse{
		Session:     snap.Session,
		RemainingMs: snap.Remaining.Milliseconds(),
		URL:         snap.URL,
		Placeholder: snap.Placeholder,
	}
}

// OpenSession handles POST /media/sessions
func (h *MediaHandler) OpenSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid JSON")
			return
		}

		if req.MediaRef == "" {
			response.BadRequest(w, "media_ref is required")
			return
		}
		if req.ViewerID == "" {
			response.BadRequest(w, "viewer_id is required")
			return
		}

		snap, err := h.svc.Open(r.Context(), service.OpenInput{
			MatchID:    req.MatchID,
			MediaRef:   req.MediaRef,
			SenderName: req.SenderName,
			ViewerID:   req.ViewerID,
			Duration:   time.Duration(req.DurationSeconds) * time.Second,
		})
		if err != nil {
			handleMediaError(w, err)
			return
		}

		response.Created(w, sessionResponse(snap))
	}
}

// SessionState handles GET /media/sessions/{sessionId}
func (h *MediaHandler) SessionState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.svc.State(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			handleMediaError(w, err)
			return
		}

		response.OK(w, sessionResponse(snap))
	}
}

// Loaded handles POST /media/sessions/{sessionId}/loaded
func (h *MediaHandler) Loaded() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.svc.MarkLoaded(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			handleMediaError(w, err)
			return
		}

		response.OK(w, sessionResponse(snap))
	}
}

// LoadFailed handles POST /media/sessions/{sessionId}/load-failed
func (h *MediaHandler) LoadFailed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.svc.MarkLoadFailed(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			handleMediaError(w, err)
			return
		}

		response.OK(w, sessionResponse(snap))
	}
}

// Dismiss handles POST /media/sessions/{sessionId}/dismiss
func (h *MediaHandler) Dismiss() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.svc.Dismiss(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			handleMediaError(w, err)
			return
		}

		response.OK(w, sessionResponse(snap))
	}
}

// SignalRequest represents a reported capture-deterrence trigger
type SignalRequest struct {
	Signal entity.Signal `json:"signal"`
}

// Signal handles POST /media/sessions/{sessionId}/signals
func (h *MediaHandler) Signal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid JSON")
			return
		}

		snap, err := h.svc.Signal(r.Context(), chi.URLParam(r, "sessionId"), req.Signal)
		if err != nil {
			handleMediaError(w, err)
			return
		}

		response.OK(w, sessionResponse(snap))
	}
}

func handleMediaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrMediaSessionNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrMediaUnavailable):
		response.Gone(w, err.Error())
	case errors.Is(err, entity.ErrInvalidDuration), errors.Is(err, entity.ErrInvalidSignal):
		response.BadRequest(w, err.Error())
	default:
		response.InternalError(w, "internal server error")
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flintapp/flint-core/internal/domain/conversation/entity"
	"github.com/flintapp/flint-core/internal/domain/conversation/policy"
	"github.com/flintapp/flint-core/internal/domain/upsell"
	"github.com/flintapp/flint-core/internal/httpx/response"
)

// ConversationPolicy defines the interface for conversation operations
type ConversationPolicy interface {
	CreateSession(ctx context.Context, in policy.CreateSessionInput) (*entity.ConversationSession, error)
	SessionState(ctx context.Context, in policy.SessionStateInput) (*policy.SessionStateOutput, error)
	Reopen(ctx context.Context, in policy.ReopenInput) (*entity.ConversationSession, error)
	SendMessage(ctx context.Context, in policy.SendMessageInput) (*entity.Message, error)
	GetMessages(ctx context.Context, in policy.GetMessagesInput) ([]entity.Message, error)
	MarkRead(ctx context.Context, matchID, viewerID string) error
}

// ConversationHandler handles HTTP requests for conversation sessions
type ConversationHandler struct {
	policy  ConversationPolicy
	prompts *upsell.PromptStore
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(p ConversationPolicy, prompts *upsell.PromptStore) *ConversationHandler {
	return &ConversationHandler{policy: p, prompts: prompts}
}

// RegisterRoutes registers conversation routes
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.CreateSession())
		r.Get("/{matchId}", h.SessionState())
		r.Post("/{matchId}/reopen", h.Reopen())
		r.Get("/{matchId}/messages", h.GetMessages())
		r.Post("/{matchId}/messages", h.SendMessage())
		r.Post("/{matchId}/read", h.MarkRead())
	})

	r.Get("/prompts/{userId}", h.TakePrompt())
}

// CreateSessionRequest represents the request body for creating a session
type CreateSessionRequest struct {
	MatchID string `json:"match_id"`
	UserA   string `json:"user_a"`
	UserB   string `json:"user_b"`
}

// CreateSession handles POST /conversations
func (h *ConversationHandler) CreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid JSON")
			return
		}

		if req.UserA == "" || req.UserB == "" {
			response.BadRequest(w, "user_a and user_b are required")
			return
		}
		if req.UserA == req.UserB {
			response.BadRequest(w, "participants must be distinct")
			return
		}

		sess, err := h.policy.CreateSession(r.Context(), policy.CreateSessionInput{
			MatchID: req.MatchID,
			UserA:   req.UserA,
			UserB:   req.UserB,
		})
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.Created(w, sess)
	}
}

// SessionStateResponse represents the viewer-facing session state
type SessionStateResponse struct {
	Session     *entity.ConversationSession `json:"session"`
	RemainingMs int64                       `json:"remaining_ms"`
	Timer       entity.TimerState           `json:"timer"`
	Nudge       entity.NudgePhase           `json:"nudge"`
	Display     entity.TimerDisplay         `json:"display"`
	Overlay     entity.OverlayKind          `json:"overlay"`
	Expired     bool                        `json:"expired"`
	Unread      int64                       `json:"unread"`
	Prompt      *upsell.Prompt              `json:"prompt,omitempty"`
}

// SessionState handles GET /conversations/{matchId}
func (h *ConversationHandler) SessionState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchId")
		viewerID := r.URL.Query().Get("viewer_id")
		if viewerID == "" {
			response.BadRequest(w, "viewer_id is required")
			return
		}

		result, err := h.policy.SessionState(r.Context(), policy.SessionStateInput{
			MatchID:  matchID,
			ViewerID: viewerID,
		})
		if err != nil {
			handleConversationError(w, err)
			return
		}

		state := result.State
		response.OK(w, SessionStateResponse{
			Session:     state.Session,
			RemainingMs: state.Remaining.Milliseconds(),
			Timer:       state.Timer,
			Nudge:       state.Nudge,
			Display:     state.Display,
			Overlay:     state.Overlay,
			Expired:     state.Expired,
			Unread:      state.Unread,
			Prompt:      result.Prompt,
		})
	}
}

// ReopenRequest represents the request body for reopening a conversation
type ReopenRequest struct {
	RequesterID string `json:"requester_id"`
}

// ReopenResponse represents the response for a reopen
type ReopenResponse struct {
	Session   *entity.ConversationSession `json:"session"`
	WindowEnd time.Time                   `json:"window_end"`
}

// Reopen handles POST /conversations/{matchId}/reopen
func (h *ConversationHandler) Reopen() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchId")

		var req ReopenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid JSON")
			return
		}
		if req.RequesterID == "" {
			response.BadRequest(w, "requester_id is required")
			return
		}

		sess, err := h.policy.Reopen(r.Context(), policy.ReopenInput{
			MatchID:     matchID,
			RequesterID: req.RequesterID,
		})
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, ReopenResponse{Session: sess, WindowEnd: sess.WindowEnd})
	}
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

// SendMessage handles POST /conversations/{matchId}/messages
func (h *ConversationHandler) SendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchId")

		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid JSON")
			return
		}
		if req.SenderID == "" {
			response.BadRequest(w, "sender_id is required")
			return
		}

		msg, err := h.policy.SendMessage(r.Context(), policy.SendMessageInput{
			MatchID:  matchID,
			SenderID: req.SenderID,
			Text:     req.Text,
		})
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.Created(w, msg)
	}
}

// GetMessagesResponse represents the response for listing messages
type GetMessagesResponse struct {
	Messages []entity.Message `json:"messages"`
}

// GetMessages handles GET /conversations/{matchId}/messages
func (h *ConversationHandler) GetMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchId")
		viewerID := r.URL.Query().Get("viewer_id")
		if viewerID == "" {
			response.BadRequest(w, "viewer_id is required")
			return
		}

		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
				if limit > 100 {
					limit = 100
				}
			}
		}

		offset := 0
		if o := r.URL.Query().Get("offset"); o != "" {
			if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
				offset = parsed
			}
		}

		msgs, err := h.policy.GetMessages(r.Context(), policy.GetMessagesInput{
			MatchID:  matchID,
			ViewerID: viewerID,
			Limit:    limit,
			Offset:   offset,
		})
		if err != nil {
			handleConversationError(w, err)
			return
		}

		response.OK(w, GetMessagesResponse{Messages: msgs})
	}
}

// MarkReadRequest represents the request body for marking messages read
type MarkReadRequest struct {
	ViewerID string `json:"viewer_id"`
}

// MarkRead handles POST /conversations/{matchId}/read
func (h *ConversationHandler) MarkRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := chi.URLParam(r, "matchId")

		var req MarkReadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "invalid JSON")
			return
		}
		if req.ViewerID == "" {
			response.BadRequest(w, "viewer_id is required")
			return
		}

		if err := h.policy.MarkRead(r.Context(), matchID, req.ViewerID); err != nil {
			handleConversationError(w, err)
			return
		}

		response.NoContent(w)
	}
}

// TakePrompt handles GET /prompts/{userId}: consumes the pending upsell
// prompt for a user, if any
func (h *ConversationHandler) TakePrompt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userId")

		prompt, ok := h.prompts.Take(userID)
		if !ok {
			response.NoContent(w)
			return
		}

		response.OK(w, prompt)
	}
}

func handleConversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrSessionNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, entity.ErrNotAuthorized):
		response.Forbidden(w, err.Error())
	case errors.Is(err, entity.ErrConversationExpired):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrReopenInFlight):
		response.Conflict(w, err.Error())
	case errors.Is(err, entity.ErrEmptyMessage), errors.Is(err, entity.ErrMessageTooLong):
		response.BadRequest(w, err.Error())
	case errors.Is(err, entity.ErrTransient):
		response.Unavailable(w, "temporarily unavailable, retry shortly")
	default:
		response.InternalError(w, "internal server error")
	}
}

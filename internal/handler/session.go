package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/middleware"
	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/internal/service"
	"github.com/realorai/session-service/pkg/logger"
)

// SessionHandler handles the current user's chat session.
type SessionHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(chat *service.ChatService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		chat:   chat,
		logger: log,
	}
}

// Get handles GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Snapshot(middleware.GetUserID(r.Context())))
}

// Reset handles DELETE /api/v1/session
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Reset(middleware.GetUserID(r.Context())))
}

// SendMessage handles POST /api/v1/session/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.SendMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.chat.Send(userID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// Surrender handles POST /api/v1/session/surrender
func (h *SessionHandler) Surrender(w http.ResponseWriter, r *http.Request) {
	snap, err := h.chat.Surrender(middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Leave handles POST /api/v1/session/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Leave(middleware.GetUserID(r.Context())))
}

// RevealDecisionPrompt handles POST /api/v1/session/decision-prompt
func (h *SessionHandler) RevealDecisionPrompt(w http.ResponseWriter, r *http.Request) {
	snap, err := h.chat.RevealDecisionPrompt(middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Decide handles POST /api/v1/session/decision
func (h *SessionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req model.DecisionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	d, err := h.chat.Decide(userID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// Transcript handles GET /api/v1/session/transcript
// Supports ?after_sequence=N&limit=M for paging through the archive.
func (h *SessionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var afterSequence uint64
	limit := 0

	if seq := r.URL.Query().Get("after_sequence"); seq != "" {
		parsed, err := strconv.ParseUint(seq, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_sequence")
			return
		}
		afterSequence = parsed
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	resp, err := h.chat.Transcript(ctx, userID, afterSequence, limit)
	if err != nil {
		h.logger.Warn("transcript read failed",
			zap.String("user_id", userID),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

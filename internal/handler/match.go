package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/middleware"
	"github.com/realorai/session-service/internal/service"
	"github.com/realorai/session-service/pkg/logger"
)

// MatchHandler handles matchmaking endpoints.
type MatchHandler struct {
	match  *service.MatchService
	logger *logger.Logger
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(match *service.MatchService, log *logger.Logger) *MatchHandler {
	return &MatchHandler{
		match:  match,
		logger: log,
	}
}

// Find handles POST /api/v1/match
// The search runs in the background; poll GET /api/v1/match for progress.
func (h *MatchHandler) Find(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	status, err := h.match.FindMatch(r.Context(), userID)
	if err != nil {
		h.logger.Debug("match request rejected", zap.String("user_id", userID), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, status)
}

// Status handles GET /api/v1/match
func (h *MatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.match.Status(middleware.GetUserID(r.Context())))
}

// Cancel handles DELETE /api/v1/match
func (h *MatchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.match.CancelSearch(middleware.GetUserID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/middleware"
	"github.com/realorai/session-service/internal/service"
	"github.com/realorai/session-service/pkg/logger"
)

// ProfileHandler serves the player's profile.
type ProfileHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(chat *service.ChatService, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{
		chat:   chat,
		logger: log,
	}
}

// Get handles GET /api/v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	p, err := h.chat.Profile(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load profile",
			zap.String("user_id", userID),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

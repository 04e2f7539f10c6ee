package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/middleware"
	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/internal/service"
	"github.com/realorai/session-service/pkg/logger"
	"github.com/realorai/session-service/pkg/metrics"
)

// StreamHandler pushes session snapshots over Server-Sent Events.
type StreamHandler struct {
	chat      *service.ChatService
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(chat *service.ChatService, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamHandler{
		chat:      chat,
		heartbeat: heartbeat,
		logger:    log,
	}
}

// Stream handles GET /api/v1/session/stream
// The first event is the current snapshot; every state change sends another.
// An open stream counts as presence for the idle reaper.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	snapshots, unsubscribe := h.chat.Subscribe(userID)
	defer unsubscribe()

	log := h.logger.With(zap.String("user_id", userID))
	log.Debug("SSE client connected")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case snap := <-snapshots:
			h.chat.Touch(userID)
			if err := sendSSEEvent(w, flusher, "snapshot", snap); err != nil {
				log.Debug("SSE write failed", zap.Error(err))
				return
			}

		case <-heartbeat.C:
			h.chat.Touch(userID)
			if err := sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			}); err != nil {
				log.Debug("SSE write failed", zap.Error(err))
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}

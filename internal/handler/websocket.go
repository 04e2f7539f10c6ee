package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/realorai/session-service/internal/middleware"
	"github.com/realorai/session-service/internal/model"
	"github.com/realorai/session-service/internal/service"
	"github.com/realorai/session-service/internal/session"
	"github.com/realorai/session-service/pkg/logger"
	"github.com/realorai/session-service/pkg/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxCommandSize = 4 * 1024
)

// Command types a WebSocket client may send.
const (
	CommandMessage        = "message"
	CommandSurrender      = "surrender"
	CommandLeave          = "leave"
	CommandDecisionPrompt = "decision_prompt"
	CommandDecision       = "decision"
	CommandReset          = "reset"
	CommandPing           = "ping"
)

type wsCommand struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Guess   model.Guess `json:"guess,omitempty"`
}

type wsEnvelope struct {
	Type     string            `json:"type"`
	Snapshot *model.Snapshot   `json:"snapshot,omitempty"`
	Error    *model.ErrorEvent `json:"error,omitempty"`
}

// WebSocketHandler serves session snapshots and accepts session commands over a
// single WebSocket.
type WebSocketHandler struct {
	chat      *service.ChatService
	heartbeat time.Duration
	upgrader  websocket.Upgrader
	logger    *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. An empty origin list
// accepts any origin. Pings go out every heartbeat, capped at pingPeriod, and each
// one marks the client as present.
func NewWebSocketHandler(chat *service.ChatService, allowedOrigins []string, heartbeat time.Duration, log *logger.Logger) *WebSocketHandler {
	if heartbeat <= 0 || heartbeat > pingPeriod {
		heartbeat = pingPeriod
	}

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WebSocketHandler{
		chat:      chat,
		heartbeat: heartbeat,
		logger:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Serve handles GET /api/v1/session/ws
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	log := h.logger.With(zap.String("user_id", userID))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	metrics.WebSocketConnectionsActive.Inc()
	defer metrics.WebSocketConnectionsActive.Dec()

	snapshots, unsubscribe := h.chat.Subscribe(userID)
	defer unsubscribe()

	log.Debug("WebSocket client connected")

	errs := make(chan *model.ErrorEvent, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readPump(conn, userID, errs, log)
	}()

	h.writePump(conn, userID, snapshots, errs, done, log)
	log.Debug("WebSocket client disconnected")
}

// readPump applies client commands until the connection fails.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, userID string, errs chan<- *model.ErrorEvent, log *logger.Logger) {
	conn.SetReadLimit(maxCommandSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		h.chat.Touch(userID)
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("unexpected WebSocket close", zap.Error(err))
			}
			return
		}
		h.chat.Touch(userID)

		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			report(errs, &model.ErrorEvent{Code: "invalid_command", Message: "invalid command format"})
			continue
		}

		if ev := h.dispatch(userID, cmd); ev != nil {
			report(errs, ev)
		}
	}
}

// writePump is the only writer on conn.
func (h *WebSocketHandler) writePump(
	conn *websocket.Conn,
	userID string,
	snapshots <-chan model.Snapshot,
	errs <-chan *model.ErrorEvent,
	done <-chan struct{},
	log *logger.Logger,
) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	write := func(v interface{}) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			log.Debug("WebSocket write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case snap := <-snapshots:
			h.chat.Touch(userID)
			if !write(&wsEnvelope{Type: "snapshot", Snapshot: &snap}) {
				return
			}

		case ev := <-errs:
			if !write(&wsEnvelope{Type: "error", Error: ev}) {
				return
			}

		case <-ticker.C:
			h.chat.Touch(userID)
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch runs one command. State changes reach the client as snapshots, so only
// failures produce a direct reply.
func (h *WebSocketHandler) dispatch(userID string, cmd wsCommand) *model.ErrorEvent {
	var err error

	switch cmd.Type {
	case CommandMessage:
		_, err = h.chat.Send(userID, &model.SendMessageRequest{Content: cmd.Content})
	case CommandSurrender:
		_, err = h.chat.Surrender(userID)
	case CommandLeave:
		h.chat.Leave(userID)
	case CommandDecisionPrompt:
		_, err = h.chat.RevealDecisionPrompt(userID)
	case CommandDecision:
		_, err = h.chat.Decide(userID, &model.DecisionRequest{Guess: cmd.Guess})
	case CommandReset:
		h.chat.Reset(userID)
	case CommandPing:
	default:
		return &model.ErrorEvent{Code: "unknown_command", Message: "unknown command type " + cmd.Type}
	}

	if err != nil {
		return &model.ErrorEvent{Code: errorCode(err), Message: err.Error()}
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, session.ErrMessageTooLong):
		return "message_too_long"
	case errors.Is(err, session.ErrResponderBusy):
		return "responder_busy"
	case errors.Is(err, session.ErrInvalidGuess):
		return "invalid_guess"
	case errors.Is(err, session.ErrInvalidState):
		return "invalid_state"
	}
	return "internal_error"
}

func report(errs chan<- *model.ErrorEvent, ev *model.ErrorEvent) {
	select {
	case errs <- ev:
	default:
	}
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/theme"
	"github.com/okian/facepulse/pkg/logger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// LiveDependencies attaches websocket clients to a session.
type LiveDependencies interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan theme.Update, func(), error)
	PushFrame(sessionID string, det *model.Detection, frame []byte) error
}

// LiveHandler streams session updates over a websocket and feeds frames
// the client sends back into the session poller.
type LiveHandler struct {
	deps     LiveDependencies
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewLiveHandler creates a new live handler.
func NewLiveHandler(deps LiveDependencies) *LiveHandler {
	return &LiveHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 16 << 10,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Get().Named("live"),
	}
}

// liveConn serialises writes on one websocket.
type liveConn struct {
	mu     sync.Mutex
	socket *websocket.Conn
}

func (c *liveConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.socket.WriteJSON(v)
}

func (c *liveConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// HandleLive handles GET /sessions/{id}/live. Errors before the upgrade are
// plain JSON responses; afterwards they are sent as error frames.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	const op = "api.live"
	id := r.PathValue("id")
	ctx := r.Context()

	updates, detach, err := h.deps.Subscribe(ctx, id)
	if err != nil {
		fail(w, op, err)
		return
	}
	defer detach()

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed",
			logger.String("session_id", id),
			logger.Error(fmt.Errorf("%w: %w", ErrUpgrade, err)))
		return
	}
	defer socket.Close()
	conn := &liveConn{socket: socket}

	done := make(chan struct{})
	go h.writeLoop(ctx, conn, updates, done)
	defer close(done)

	socket.SetReadLimit(maxBodyBytes)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req frameRequest
		if err := socket.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug(ctx, "live client gone", logger.String("session_id", id), logger.Error(err))
			}
			return
		}
		_ = socket.SetReadDeadline(time.Now().Add(pongWait))
		if err := h.push(id, req); err != nil {
			status, code := classify(err)
			_ = conn.writeJSON(errorResponse{Code: code, Message: Wrap(op, err).Error()})
			if status == http.StatusNotFound {
				return
			}
		}
	}
}

func (h *LiveHandler) push(id string, req frameRequest) error {
	if req.Detection == nil {
		return fmt.Errorf("%w: detection is required", ErrBadRequest)
	}
	frame, err := req.frame()
	if err != nil {
		return err
	}
	return h.deps.PushFrame(id, req.Detection, frame)
}

func (h *LiveHandler) writeLoop(ctx context.Context, conn *liveConn, updates <-chan theme.Update, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.writeJSON(u); err != nil {
				h.logger.Debug(ctx, "live write failed", logger.String("session_id", u.SessionID), logger.Error(err))
				_ = conn.socket.Close()
				return
			}
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				_ = conn.socket.Close()
				return
			}
		}
	}
}

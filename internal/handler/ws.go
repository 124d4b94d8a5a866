package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cafezao-da-computacao/cafezao/internal/auth"
	"github.com/cafezao-da-computacao/cafezao/internal/watch"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is token-authenticated; browser origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler streams watch-hub updates to connected clients. Each connection
// holds exactly one hub subscription covering the caller's profile, their
// notification channel, the global channel, and system settings.
type WSHandler struct {
	hub *watch.Hub
	log *zap.Logger
}

// NewWSHandler constructs a WSHandler.
func NewWSHandler(hub *watch.Hub, log *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, log: log}
}

// Stream handles GET /ws
func (h *WSHandler) Stream(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := h.hub.Subscribe(
		watch.ProfileTopic(user.ID),
		watch.NotificationsTopic(user.ID),
		watch.GlobalNotifications,
		watch.Settings,
	)
	defer cancel()

	// Reader goroutine: we never expect client messages, but reading is the
	// only way to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				h.log.Debug("websocket write failed",
					zap.String("user_id", user.ID), zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

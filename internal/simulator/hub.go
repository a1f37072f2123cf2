package simulator

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nema-ac/worminal/internal/logger"
)

type client struct {
	userID   string
	username string
}

// Hub fans inbound chat frames out to every connected socket, owners
// and spectators alike.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]client
	log   *logrus.Entry
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]client),
		log:   logger.For("sim-hub"),
	}
}

func (h *Hub) Add(conn *websocket.Conn, userID, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = client{userID: userID, username: username}
	h.log.WithField("total", len(h.conns)).Info("client connected")
}

func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
		h.log.WithField("total", len(h.conns)).Info("client disconnected")
	}
}

func (h *Hub) Broadcast(frame any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(frame)
	if err != nil {
		h.log.WithError(err).Error("marshal broadcast")
		return
	}

	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.WithError(err).Warn("write failed, dropping client")
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

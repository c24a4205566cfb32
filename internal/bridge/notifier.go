package bridge

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Notifier delivers events to a client. Emit never fails: a broken client
// channel silently drops events.
type Notifier interface {
	Emit(event Event)
}

// WSNotifier writes events as JSON text frames to a client WebSocket. It is
// the only writer for its connection and may be shared by goroutines.
type WSNotifier struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	broken bool
}

// NewWSNotifier creates a notifier for conn
func NewWSNotifier(conn *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *WSNotifier {
	return &WSNotifier{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

func (n *WSNotifier) Emit(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal event", "type", event.Type, "error", err)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.broken {
		return
	}

	if n.writeTimeout > 0 {
		n.conn.SetWriteDeadline(time.Now().Add(n.writeTimeout))
	}
	if err := n.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		// Keep the job running; later events are dropped
		n.broken = true
		n.logger.Debug("client channel broken, dropping further events", "type", event.Type, "error", err)
	}
}

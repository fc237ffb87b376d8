package presence

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ServeSocket pumps awareness frames between a websocket connection and
// the hub until either side closes. It blocks until the connection ends.
func ServeSocket(conn *websocket.Conn, hub *Hub, documentID, userID string, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	session := hub.Join(documentID, userID)

	done := make(chan struct{})
	go writePump(conn, session, done, logger)
	readPump(conn, hub, session, logger)

	// Leaving closes the session stream, which unblocks the write pump.
	hub.Leave(session)
	<-done
}

func readPump(conn *websocket.Conn, hub *Hub, session *Session, logger *zap.Logger) {
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var message Message
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("presence socket closed unexpectedly", zap.Error(err))
			}
			return
		}
		hub.Publish(session, message)
	}
}

func writePump(conn *websocket.Conn, session *Session, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close() //nolint:errcheck

	for {
		select {
		case message, ok := <-session.Stream():
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := conn.WriteJSON(message); err != nil {
				logger.Debug("presence write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

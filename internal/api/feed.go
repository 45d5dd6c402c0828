package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/memory-postcard/voicecall/internal/auth"
	"github.com/memory-postcard/voicecall/internal/store"
	"github.com/memory-postcard/voicecall/usecase"
)

const (
	// Time allowed to write an update to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// callFeed upgrades the connection and streams store updates for the
// active call until the client disconnects or the call ends.
func callFeed(c echo.Context, svc *usecase.CallService, st *store.Store, jwtAuth *auth.JWT, logger *zap.Logger) error {
	if _, err := userClaims(c, jwtAuth); err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	if !channelMatches(c, svc) {
		return unknownChannel(c)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("Failed to upgrade call feed", zap.Error(err))
		return err
	}
	defer conn.Close()

	updates, cancel := st.Subscribe()
	defer cancel()

	// Reader only services control frames; clients send no data.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(1024)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Bring the client up to date before streaming deltas.
	snapshot := store.Update{Type: store.UpdateTranscript, Transcript: st.Transcript()}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snapshot); err != nil {
		return nil
	}

	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	for {
		select {
		case <-done:
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(update); err != nil {
				logger.Debug("call feed write failed", zap.Error(err))
				return nil
			}
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

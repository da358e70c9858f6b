// README: Websocket endpoint; one reader and one writer goroutine per connection.
package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"colibri/internal/http/middleware"
	"colibri/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// NewUpgrader accepts every origin when allowed is empty or holds "*".
func NewUpgrader(allowed []string) websocket.Upgrader {
	set := map[string]struct{}{}
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	_, wildcard := set["*"]
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(set) == 0 || wildcard {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := set[origin]
			return ok
		},
	}
}

// Handler upgrades the request and serves the socket until either side closes.
// Behind middleware.Auth the connection is pinned to the verified caller.
func Handler(hub *Hub, d *Dispatcher, upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := types.ID(middleware.Caller(c))
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			return
		}
		serve(c.Request.Context(), hub, d, conn, caller)
	}
}

func serve(ctx context.Context, hub *Hub, d *Dispatcher, conn *websocket.Conn, caller types.ID) {
	client := hub.Register()
	if caller != "" {
		hub.Pin(client.ID, caller)
	}
	d.log.Debug("connection opened", "conn", client.ID, "caller", caller, "remote", conn.RemoteAddr().String())

	done := make(chan struct{})
	go func() {
		writePump(conn, client)
		close(done)
	}()

	readPump(ctx, conn, client, d)

	d.Disconnect(ctx, client.ID)
	user := hub.Unregister(client)
	<-done
	_ = conn.Close()
	d.log.Debug("connection closed", "conn", client.ID, "user", user)
}

func readPump(ctx context.Context, conn *websocket.Conn, client *Client, d *Dispatcher) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.log.Debug("read failed", "conn", client.ID, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		d.Handle(ctx, client.ID, msg)
	}
}

// writePump is the only writer on conn. It exits when Send is closed or a
// write fails; a failed write closes the socket so the reader stops too.
func writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				drain(client)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				_ = conn.Close()
				drain(client)
				return
			}
		}
	}
}

// drain discards queued frames until the hub closes Send.
func drain(client *Client) {
	for range client.Send {
	}
}

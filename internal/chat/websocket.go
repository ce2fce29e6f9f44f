// Package chat implements the websocket session protocol driver.
package chat

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// WebSocketHandler upgrades /ws/chat connections and hands each one to
// a protocol driver. One goroutine owns one connection end-to-end.
type WebSocketHandler struct {
	deps          *Deps
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new chat websocket handler.
func NewWebSocketHandler(deps *Deps, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		deps:          deps,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("WebSocket connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		// Drivers exit in Closed state; closing an already-closed
		// connection is harmless.
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	d := newDriver(&wsConn{ws: ws}, h.deps)
	d.run(ctx)

	slog.Info("Chat connection ended", "ip", r.RemoteAddr)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// wsConn adapts websocket.Conn to the driver's text transport.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) ReadText(ctx context.Context) (string, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *wsConn) WriteText(ctx context.Context, text string) error {
	return c.ws.Write(ctx, websocket.MessageText, []byte(text))
}

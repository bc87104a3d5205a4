package presence

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/halverson/stackpad/internal/plugins/auth"
)

// Handler upgrades authenticated requests to WebSocket connections and keeps
// the tracker in sync with their lifetimes.
type Handler struct {
	tracker  *Tracker
	upgrader websocket.Upgrader
}

// NewHandler creates the presence WebSocket handler. allowedOrigin is the
// SPA origin permitted to open connections; empty allows same-origin only
// (the upgrader's default check).
func NewHandler(tracker *Tracker, allowedOrigin string) *Handler {
	h := &Handler{tracker: tracker}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if allowedOrigin != "" {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		}
	}
	return h
}

// Serve handles GET /ws. Runs behind the session guard, so the user is
// already resolved. The connection stays registered until the client closes
// it or the server shuts down.
func (h *Handler) Serve(c echo.Context) error {
	user := auth.CurrentUser(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		return nil
	}

	h.tracker.Add(user.ID, conn)
	defer h.tracker.Remove(user.ID, conn)

	slog.Debug("presence connection opened", slog.String("user_id", user.ID))

	// Inbound frames carry nothing; the loop exists to detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	conn.Close()
	slog.Debug("presence connection closed", slog.String("user_id", user.ID))
	return nil
}

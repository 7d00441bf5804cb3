package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// HandleWebSocket upgrades the connection and registers it for event
// delivery to the user. The connection stays open until the client closes
// it; inbound frames are drained but otherwise ignored.
// (GET /ws/:userID)
func (s *Server) HandleWebSocket(c echo.Context) error {
	userID := c.Param("userID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user id is required")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// upgrader.Upgrade already wrote an error response
		return nil
	}

	s.Hub.Add(userID, conn)
	defer s.Hub.Remove(userID, conn)

	if err := s.Workflows.SignalConnected(c.Request().Context(), userID); err != nil {
		// The workflow may not be running yet; connection stays usable.
		s.Logger.Debug("connected signal not delivered", "user_id", userID, "error", err)
	}

	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	return nil
}

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/isotools/drawscan/internal/notify"
	"github.com/isotools/drawscan/internal/scan"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The UI is served from a different origin in every deployment we run;
	// auth happens via the API key middleware instead.
	CheckOrigin: func(*http.Request) bool { return true },
}

// sessionWS upgrades the request, attaches the connection as the session's
// subscriber, and replays the session state. The handler then parks in a read
// loop: clients never send application data, but reading is the only way to
// learn the peer closed.
func (s *Server) sessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Debug("websocket upgrade failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}

	subscriberID := uuid.NewString()
	conn := notify.NewWSConn(wsConn)
	if _, err := s.resync.Attach(r.Context(), sessionID, subscriberID, conn); err != nil {
		if !errors.Is(err, scan.ErrSessionNotFound) {
			s.logger.Error("session attach failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
		_ = conn.Close()
		return
	}
	defer func() {
		s.resync.Detach(sessionID, conn)
		_ = conn.Close()
	}()

	for {
		if _, _, err := wsConn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

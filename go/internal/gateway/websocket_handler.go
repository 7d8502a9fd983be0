package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hotdot-game/hotdot/go/internal/models"
)

// WebSocketHandler handles WebSocket upgrade requests for match connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleMatchConnection handles WebSocket connections for a specific match
func (h *WebSocketHandler) HandleMatchConnection(w http.ResponseWriter, r *http.Request) {
	matchIDStr := r.URL.Query().Get("match_id")
	if matchIDStr == "" {
		http.Error(w, "match_id is required", http.StatusBadRequest)
		return
	}
	matchID, err := uuid.Parse(matchIDStr)
	if err != nil {
		http.Error(w, "invalid match_id format", http.StatusBadRequest)
		return
	}

	role := models.Role(r.URL.Query().Get("role"))
	if role != models.RoleCreator && role != models.RoleGuesser {
		http.Error(w, "role must be creator or guesser", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, role, matchID); err != nil {
		log.Error().
			Err(err).
			Str("match_id", matchID.String()).
			Str("role", string(role)).
			Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/match", h.HandleMatchConnection)
}

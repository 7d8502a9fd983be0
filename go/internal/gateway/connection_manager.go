package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

// ConnectionManager bridges match topics to WebSocket clients. Each match
// with at least one open socket holds exactly one bus subscription; every
// envelope received on the topic is forwarded to all of the match's sockets,
// and messages read from a guesser's socket are republished on the topic.
// Clients filter by role, the same way the browser pages do.
type ConnectionManager struct {
	// Connection pools and the per-match bus subscription, keyed by match ID
	matchConnections map[uuid.UUID]map[*Connection]bool
	matchSubs        map[uuid.UUID]bus.Subscription
	mu               sync.RWMutex

	bus      bus.Bus
	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client. Send is never
// closed; teardown is signalled through done so the broadcast loop can race
// a disconnect without a send-on-closed-channel panic.
type Connection struct {
	ID      string
	Role    models.Role
	MatchID uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	done     chan struct{}
	doneOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents one envelope to fan out to a match's sockets.
type BroadcastMessage struct {
	MatchID uuid.UUID
	Data    []byte
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  32 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(b bus.Bus, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		matchConnections: make(map[uuid.UUID]map[*Connection]bool),
		matchSubs:        make(map[uuid.UUID]bus.Subscription),
		bus:              b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and attaches it
// to the match's topic.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, role models.Role, matchID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Role:        role,
		MatchID:     matchID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	if err := cm.registerConnection(connection); err != nil {
		conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("role", string(role)).
		Str("match_id", matchID.String()).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection and subscribes the match topic on the
// match's first connection.
func (cm *ConnectionManager) registerConnection(conn *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.matchConnections[conn.MatchID] == nil {
		matchID := conn.MatchID
		sub, err := cm.bus.Subscribe(bus.MatchTopic(matchID), func(event string, payload []byte) {
			cm.forward(matchID, event, payload)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe match topic: %w", err)
		}
		cm.matchConnections[matchID] = make(map[*Connection]bool)
		cm.matchSubs[matchID] = sub
	}
	cm.matchConnections[conn.MatchID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("match_id", conn.MatchID.String()).
		Int("total_connections", len(cm.matchConnections[conn.MatchID])).
		Msg("connection registered")
	return nil
}

// unregisterConnection removes a connection and drops the bus subscription
// with the match's last connection.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.matchConnections[conn.MatchID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	conn.doneOnce.Do(func() { close(conn.done) })

	if len(connections) == 0 {
		delete(cm.matchConnections, conn.MatchID)
		if sub, ok := cm.matchSubs[conn.MatchID]; ok {
			delete(cm.matchSubs, conn.MatchID)
			if err := sub.Unsubscribe(); err != nil {
				log.Warn().Err(err).Str("match_id", conn.MatchID.String()).Msg("failed to unsubscribe match topic")
			}
		}
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("role", string(conn.Role)).
		Str("match_id", conn.MatchID.String()).
		Msg("connection unregistered")
}

// forward re-wraps a bus envelope and queues it for the match's sockets.
func (cm *ConnectionManager) forward(matchID uuid.UUID, event string, payload []byte) {
	data, err := json.Marshal(wireEnvelope{Event: event, Payload: payload})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	select {
	case cm.broadcastCh <- BroadcastMessage{MatchID: matchID, Data: data}:
	default:
		log.Warn().Str("match_id", matchID.String()).Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	connections, exists := cm.matchConnections[message.MatchID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot connections to avoid holding the lock during sends
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- message.Data:
		case <-conn.done:
			// Connection tore down between the snapshot and the send.
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			conn.Conn.Close()
		}
	}
}

// wireEnvelope is the JSON frame exchanged with browser clients.
type wireEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads envelopes from the socket and republishes them on the match
// topic. Only the guesser side produces input; frames from a creator socket
// are dropped.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("WebSocket read error")
			}
			return
		}

		if c.Role != models.RoleGuesser {
			continue
		}

		var env wireEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("dropping malformed client frame")
			continue
		}

		if err := c.Manager.bus.Publish(bus.MatchTopic(c.MatchID), env.Event, env.Payload); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", c.ID).
				Str("event", env.Event).
				Msg("failed to republish client event")
		}
	}
}

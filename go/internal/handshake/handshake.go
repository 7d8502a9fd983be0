// Package handshake implements the pre-match rendezvous: both peers must
// confirm readiness before the live phase starts. State is ephemeral and
// rebuilt fresh on every visit; it lives only as long as the session holding
// it.
package handshake

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

// State is the per-session handshake progress.
type State int

const (
	StateNotReady State = iota
	StateLocallyReady
	StateSynchronized
)

type readyPayload struct {
	Role models.Role `json:"role"`
}

// Handshake is one session's side of the two-party rendezvous on the
// pre-match topic. Synchronization fires only when both the local flag and
// the observed peer flag are true; the check re-runs on every state change
// rather than edge-triggering on either event alone, so arrival order never
// matters.
//
// A ready publish that lands before the peer subscribes is lost (the bus
// keeps nothing). To close that window the session republishes its own ready
// the first time it hears the peer, which is always after the peer attached.
type Handshake struct {
	matchID uuid.UUID
	role    models.Role
	bus     bus.Bus
	sub     bus.Subscription

	mu         sync.Mutex
	localReady bool
	peerReady  bool

	done     chan struct{}
	doneOnce sync.Once
}

// Join attaches the session to the pre-match topic for a match.
func Join(b bus.Bus, matchID uuid.UUID, role models.Role) (*Handshake, error) {
	h := &Handshake{
		matchID: matchID,
		role:    role,
		bus:     b,
		done:    make(chan struct{}),
	}

	sub, err := b.Subscribe(bus.PreMatchTopic(matchID), h.onEvent)
	if err != nil {
		return nil, err
	}
	h.sub = sub
	return h, nil
}

// Ready flips the local flag when the participant confirms, announces it to
// the peer, and re-evaluates.
func (h *Handshake) Ready() {
	h.mu.Lock()
	h.localReady = true
	h.mu.Unlock()

	h.publishReady()
	h.evaluate()
}

// Done is closed once both peers are ready.
func (h *Handshake) Done() <-chan struct{} {
	return h.done
}

// State reports the session's current handshake state.
func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.localReady && h.peerReady:
		return StateSynchronized
	case h.localReady:
		return StateLocallyReady
	default:
		return StateNotReady
	}
}

// Close detaches from the pre-match topic.
func (h *Handshake) Close() {
	if err := h.sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Str("match_id", h.matchID.String()).Msg("failed to unsubscribe handshake")
	}
}

func (h *Handshake) onEvent(event string, payload []byte) {
	if event != bus.EventReady {
		return
	}
	var p readyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Warn().Err(err).Str("match_id", h.matchID.String()).Msg("dropping malformed ready event")
		return
	}
	if p.Role == h.role {
		return
	}

	h.mu.Lock()
	firstSighting := !h.peerReady
	h.peerReady = true
	republish := firstSighting && h.localReady
	h.mu.Unlock()

	if republish {
		// The peer may have subscribed after our first publish.
		h.publishReady()
	}
	h.evaluate()
}

func (h *Handshake) evaluate() {
	h.mu.Lock()
	synchronized := h.localReady && h.peerReady
	h.mu.Unlock()

	if synchronized {
		h.doneOnce.Do(func() {
			log.Info().
				Str("match_id", h.matchID.String()).
				Str("role", string(h.role)).
				Msg("handshake synchronized")
			close(h.done)
		})
	}
}

func (h *Handshake) publishReady() {
	err := h.bus.Publish(bus.PreMatchTopic(h.matchID), bus.EventReady, readyPayload{Role: h.role})
	if err != nil {
		log.Warn().Err(err).Str("match_id", h.matchID.String()).Msg("failed to publish ready")
	}
}

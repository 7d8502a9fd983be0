// Package relay streams drawing input from the guesser to the creator for
// the duration of the active match. The stream is unidirectional and
// stateless: each batch is published as it happens and applied in arrival
// order on the other side, with no buffering, reconciliation, or replay.
// Strict causal ordering of strokes is deliberately not provided.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

// ErrBatchTooLarge is returned when a draw batch exceeds the configured point
// cap. The producer paces itself to human drawing speed, so the cap is a
// guard against misbehaving clients, not backpressure.
var ErrBatchTooLarge = errors.New("draw batch exceeds point cap")

// RenderSurface consumes draw batches on the creator side. Batches arrive in
// receipt order and are applied directly; implementations must not reorder.
type RenderSurface interface {
	Apply(ev models.DrawEvent)
	Clear()
}

// Producer is the guesser's sending half of the relay.
type Producer struct {
	matchID   uuid.UUID
	bus       bus.Bus
	maxPoints int
	clock     clockwork.Clock
	seq       atomic.Int64
}

// NewProducer creates the sending half for a match. maxPoints caps the batch
// size; zero or negative means no cap.
func NewProducer(b bus.Bus, matchID uuid.UUID, maxPoints int, clock clockwork.Clock) *Producer {
	return &Producer{
		matchID:   matchID,
		bus:       b,
		maxPoints: maxPoints,
		clock:     clock,
	}
}

// Send publishes one batch of path points. No acknowledgment is expected.
func (p *Producer) Send(points []models.PathPoint, endStroke bool) error {
	if p.maxPoints > 0 && len(points) > p.maxPoints {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(points), p.maxPoints)
	}
	ev := models.DrawEvent{
		Seq:       p.seq.Add(1),
		Points:    points,
		EndStroke: endStroke,
		SentAt:    p.clock.Now(),
	}
	return p.bus.Publish(bus.MatchTopic(p.matchID), bus.EventDraw, ev)
}

// Clear tells the creator's surface to wipe the canvas.
func (p *Producer) Clear() error {
	return p.bus.Publish(bus.MatchTopic(p.matchID), bus.EventClearCanvas, nil)
}

// Finish announces the end of the live phase, carrying the final drawing as
// an opaque payload.
func (p *Producer) Finish(drawing json.RawMessage) error {
	return p.bus.Publish(bus.MatchTopic(p.matchID), bus.EventMatchFinished, map[string]json.RawMessage{
		"drawing": drawing,
	})
}

// Consumer is the creator's receiving half: it applies every received batch
// to the rendering surface in receipt order and keeps nothing.
type Consumer struct {
	matchID uuid.UUID
	surface RenderSurface
	sub     bus.Subscription
}

// Attach subscribes the rendering surface to a match's draw stream.
func Attach(b bus.Bus, matchID uuid.UUID, surface RenderSurface) (*Consumer, error) {
	c := &Consumer{
		matchID: matchID,
		surface: surface,
	}
	sub, err := b.Subscribe(bus.MatchTopic(matchID), c.onEvent)
	if err != nil {
		return nil, err
	}
	c.sub = sub
	return c, nil
}

// Close detaches the surface from the stream.
func (c *Consumer) Close() {
	if err := c.sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Str("match_id", c.matchID.String()).Msg("failed to unsubscribe relay consumer")
	}
}

func (c *Consumer) onEvent(event string, payload []byte) {
	switch event {
	case bus.EventDraw:
		var ev models.DrawEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Warn().Err(err).Str("match_id", c.matchID.String()).Msg("dropping malformed draw event")
			return
		}
		c.surface.Apply(ev)
	case bus.EventClearCanvas:
		c.surface.Clear()
	}
}

// Package bus is the notification fabric between match peers: a topic-based
// publish/subscribe channel with best-effort, at-most-once delivery and no
// persistence. Anything correctness-critical must have a store-backed
// fallback; bus events are performance hints only.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event names carried over match topics.
const (
	EventGuesserJoined = "guesser-joined"
	EventReady         = "ready"
	EventDraw          = "draw"
	EventSliderMoved   = "slider-moved"
	EventHintSent      = "hint-sent"
	EventClearCanvas   = "clear-canvas"
	EventMatchFinished = "match-finished"
)

// Handler receives every event published on a subscribed topic while the
// subscription is live. Payload is the raw JSON payload of the envelope.
type Handler func(event string, payload []byte)

// Subscription is a live attachment to a topic.
type Subscription interface {
	Unsubscribe() error
}

// Bus is a topic-based publish/subscribe channel. Publish is fire-and-forget:
// no delivery guarantee to subscribers that attach after the publish, no
// ordering guarantee across distinct event names.
type Bus interface {
	Publish(topic, event string, payload interface{}) error
	Subscribe(topic string, h Handler) (Subscription, error)
}

// envelope is the wire format for every bus message.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encodeEnvelope(event string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		raw = b
	}
	return json.Marshal(envelope{Event: event, Payload: raw})
}

// MatchTopic is the per-match topic carrying guesser-joined, draw and the
// other live events.
func MatchTopic(matchID uuid.UUID) string {
	return fmt.Sprintf("match-%s", matchID)
}

// PreMatchTopic is the per-match rendezvous topic for the ready handshake.
func PreMatchTopic(matchID uuid.UUID) string {
	return fmt.Sprintf("pre-match-%s", matchID)
}

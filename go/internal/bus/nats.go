package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for the NATS-backed bus.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS connection configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSBus implements Bus over core NATS publish/subscribe. Core NATS (not
// JetStream) matches the bus contract: at-most-once delivery to current
// subscribers, nothing persisted, nothing replayed.
type NATSBus struct {
	nc *nats.Conn
}

// ConnectNATS dials the broker and returns a NATS-backed bus.
func ConnectNATS(config NATSConfig) (*NATSBus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATSBus{nc: nc}, nil
}

func (b *NATSBus) Publish(topic, event string, payload interface{}) error {
	data, err := encodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("publish %s on %s: %w", event, topic, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(topic string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(topic, func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("dropping malformed bus message")
			return
		}
		h(env.Event, env.Payload)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return natsSubscription{sub: sub}, nil
}

// Close drains in-flight messages and closes the connection.
func (b *NATSBus) Close() {
	if err := b.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

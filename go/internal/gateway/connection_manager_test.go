package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

func newTestConnection(cm *ConnectionManager, matchID uuid.UUID, buffer int) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		Role:        models.RoleCreator,
		MatchID:     matchID,
		Send:        make(chan []byte, buffer),
		Manager:     cm,
		done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}
}

// A disconnect landing between the broadcast loop's connection snapshot and
// its send must not panic the broadcast loop. Send stays open; teardown is
// signalled through the done channel.
func TestHandleBroadcastRacesDisconnect(t *testing.T) {
	cm := NewConnectionManager(bus.NewMemoryBus(), DefaultConnectionConfig())
	matchID := uuid.New()

	const iterations = 2000
	const sendsPerIteration = 8

	for i := 0; i < iterations; i++ {
		conn := newTestConnection(cm, matchID, sendsPerIteration)
		if err := cm.registerConnection(conn); err != nil {
			t.Fatalf("registerConnection: %v", err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < sendsPerIteration; j++ {
				cm.handleBroadcast(BroadcastMessage{MatchID: matchID, Data: []byte("{}")})
			}
		}()
		go func() {
			defer wg.Done()
			cm.unregisterConnection(conn)
		}()
		wg.Wait()

		select {
		case <-conn.done:
		default:
			t.Fatal("unregistered connection was not signalled done")
		}
	}
}

func TestUnregisterConnectionIsIdempotent(t *testing.T) {
	cm := NewConnectionManager(bus.NewMemoryBus(), DefaultConnectionConfig())
	matchID := uuid.New()

	conn := newTestConnection(cm, matchID, 1)
	if err := cm.registerConnection(conn); err != nil {
		t.Fatalf("registerConnection: %v", err)
	}

	// Both pumps unregister on exit; the second call must be a no-op.
	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn)

	// The match's bus subscription is gone with its last connection, so a
	// fresh registration must subscribe again without error.
	replacement := newTestConnection(cm, matchID, 1)
	if err := cm.registerConnection(replacement); err != nil {
		t.Fatalf("re-register after teardown: %v", err)
	}
	cm.unregisterConnection(replacement)
}

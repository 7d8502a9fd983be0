package handshake

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

func synchronized(h *Handshake) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}

func TestHandshakeBothOrders(t *testing.T) {
	tests := []struct {
		name  string
		first models.Role
	}{
		{"creator ready first", models.RoleCreator},
		{"guesser ready first", models.RoleGuesser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.NewMemoryBus()
			matchID := uuid.New()

			creator, err := Join(b, matchID, models.RoleCreator)
			if err != nil {
				t.Fatalf("Join creator: %v", err)
			}
			defer creator.Close()

			guesser, err := Join(b, matchID, models.RoleGuesser)
			if err != nil {
				t.Fatalf("Join guesser: %v", err)
			}
			defer guesser.Close()

			first, second := creator, guesser
			if tt.first == models.RoleGuesser {
				first, second = guesser, creator
			}

			first.Ready()
			if synchronized(first) || synchronized(second) {
				t.Fatal("synchronized after only one ready")
			}
			if first.State() != StateLocallyReady {
				t.Errorf("first state = %v, want locally ready", first.State())
			}

			second.Ready()
			if !synchronized(first) {
				t.Error("first side never synchronized")
			}
			if !synchronized(second) {
				t.Error("second side never synchronized")
			}
			if creator.State() != StateSynchronized || guesser.State() != StateSynchronized {
				t.Errorf("states = %v/%v, want synchronized", creator.State(), guesser.State())
			}
		})
	}
}

// A ready publish sent before the peer subscribes is lost. The republish on
// first peer sighting must still bring both sides to synchronized.
func TestHandshakeSurvivesLostFirstPublish(t *testing.T) {
	b := bus.NewMemoryBus()
	matchID := uuid.New()

	creator, err := Join(b, matchID, models.RoleCreator)
	if err != nil {
		t.Fatalf("Join creator: %v", err)
	}
	defer creator.Close()

	// Creator goes ready while the guesser is not yet attached; the publish
	// reaches nobody.
	creator.Ready()

	guesser, err := Join(b, matchID, models.RoleGuesser)
	if err != nil {
		t.Fatalf("Join guesser: %v", err)
	}
	defer guesser.Close()

	guesser.Ready()

	if !synchronized(creator) {
		t.Error("creator never synchronized")
	}
	if !synchronized(guesser) {
		t.Error("guesser never synchronized; creator's republish did not arrive")
	}
}

func TestHandshakeIgnoresOwnEcho(t *testing.T) {
	b := bus.NewMemoryBus()
	matchID := uuid.New()

	creator, err := Join(b, matchID, models.RoleCreator)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer creator.Close()

	// MemoryBus delivers to every subscriber including the publisher, so the
	// creator hears its own ready. That must not count as the peer.
	creator.Ready()

	if creator.State() != StateLocallyReady {
		t.Errorf("state = %v, want locally ready", creator.State())
	}
	if synchronized(creator) {
		t.Error("own echo treated as peer readiness")
	}
}

func TestHandshakeIgnoresOtherEvents(t *testing.T) {
	b := bus.NewMemoryBus()
	matchID := uuid.New()

	creator, err := Join(b, matchID, models.RoleCreator)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer creator.Close()
	creator.Ready()

	b.Publish(bus.PreMatchTopic(matchID), bus.EventDraw, map[string]string{"role": "guesser"})
	b.Publish(bus.PreMatchTopic(matchID), bus.EventReady, "not an object")

	if synchronized(creator) {
		t.Error("non-ready or malformed event advanced the handshake")
	}
}

func TestHandshakeCloseStopsDelivery(t *testing.T) {
	b := bus.NewMemoryBus()
	matchID := uuid.New()

	creator, err := Join(b, matchID, models.RoleCreator)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	creator.Ready()
	creator.Close()

	b.Publish(bus.PreMatchTopic(matchID), bus.EventReady, readyPayload{Role: models.RoleGuesser})

	if synchronized(creator) {
		t.Error("closed handshake still consumed events")
	}
}

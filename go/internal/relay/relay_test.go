package relay

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

type recordingSurface struct {
	mu      sync.Mutex
	applied []models.DrawEvent
	clears  int
}

func (s *recordingSurface) Apply(ev models.DrawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, ev)
}

func (s *recordingSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *recordingSurface) events() []models.DrawEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DrawEvent(nil), s.applied...)
}

func TestRelayDeliversInArrivalOrder(t *testing.T) {
	b := bus.NewMemoryBus()
	matchID := uuid.New()
	surface := &recordingSurface{}

	consumer, err := Attach(b, matchID, surface)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer consumer.Close()

	producer := NewProducer(b, matchID, 0, clockwork.NewFakeClock())
	const batches = 20
	for i := 0; i < batches; i++ {
		pts := []models.PathPoint{{X: float64(i), Y: float64(i)}}
		if err := producer.Send(pts, i%5 == 4); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	got := surface.events()
	if len(got) != batches {
		t.Fatalf("applied %d batches, want %d (no drops, no duplicates)", len(got), batches)
	}
	for i, ev := range got {
		if ev.Seq != int64(i+1) {
			t.Fatalf("batch %d has seq %d; stream applied out of order", i, ev.Seq)
		}
		if len(ev.Points) != 1 || ev.Points[0].X != float64(i) {
			t.Errorf("batch %d carries wrong points: %+v", i, ev.Points)
		}
		if wantEnd := i%5 == 4; ev.EndStroke != wantEnd {
			t.Errorf("batch %d end_stroke = %v, want %v", i, ev.EndStroke, wantEnd)
		}
	}
}

func TestProducerRejectsOversizeBatch(t *testing.T) {
	b := bus.NewMemoryBus()
	producer := NewProducer(b, uuid.New(), 2, clockwork.NewFakeClock())

	within := []models.PathPoint{{X: 1}, {X: 2}}
	if err := producer.Send(within, false); err != nil {
		t.Fatalf("batch at cap rejected: %v", err)
	}

	over := []models.PathPoint{{X: 1}, {X: 2}, {X: 3}}
	if err := producer.Send(over, false); !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("oversize batch: want ErrBatchTooLarge, got %v", err)
	}
}

func TestRelayClearCanvas(t *testing.T) {
	b := bus.NewMemoryBus()
	matchID := uuid.New()
	surface := &recordingSurface{}

	consumer, err := Attach(b, matchID, surface)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer consumer.Close()

	producer := NewProducer(b, matchID, 0, clockwork.NewFakeClock())
	producer.Send([]models.PathPoint{{X: 1}}, true)
	if err := producer.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if surface.clears != 1 {
		t.Errorf("clears = %d, want 1", surface.clears)
	}
}

func TestConsumerIgnoresForeignMatch(t *testing.T) {
	b := bus.NewMemoryBus()
	surface := &recordingSurface{}

	consumer, err := Attach(b, uuid.New(), surface)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer consumer.Close()

	other := NewProducer(b, uuid.New(), 0, clockwork.NewFakeClock())
	other.Send([]models.PathPoint{{X: 9}}, false)

	if len(surface.events()) != 0 {
		t.Error("consumer applied a batch from another match")
	}
}

func TestConsumerCloseStopsApplying(t *testing.T) {
	b := bus.NewMemoryBus()
	matchID := uuid.New()
	surface := &recordingSurface{}

	consumer, err := Attach(b, matchID, surface)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	producer := NewProducer(b, matchID, 0, clockwork.NewFakeClock())
	producer.Send([]models.PathPoint{{X: 1}}, false)
	consumer.Close()
	producer.Send([]models.PathPoint{{X: 2}}, false)

	if n := len(surface.events()); n != 1 {
		t.Errorf("applied %d batches after close, want 1", n)
	}
}

func TestConsumerDropsMalformedDraw(t *testing.T) {
	b := bus.NewMemoryBus()
	matchID := uuid.New()
	surface := &recordingSurface{}

	consumer, err := Attach(b, matchID, surface)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer consumer.Close()

	b.Publish(bus.MatchTopic(matchID), bus.EventDraw, "garbage")

	if len(surface.events()) != 0 {
		t.Error("malformed draw event reached the surface")
	}
}

package matchmaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/match"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

func testPolicy() Policy {
	return Policy{
		PollInterval:       time.Second,
		SearchWindow:       5 * time.Second,
		WaitingRoomTimeout: 3 * time.Second,
		MaxDrawBatchPoints: 256,
	}
}

// scriptedApp answers Find/Claim calls from per-call scripts.
type scriptedApp struct {
	mu         sync.Mutex
	findFn     func(call int) (*models.Match, error)
	claimFn    func(call int, req match.ClaimMatchRequest) (*models.Match, error)
	findCalls  int
	claimCalls int
}

func (a *scriptedApp) CreateMatch(ctx context.Context, req match.CreateMatchRequest) (*models.Match, error) {
	return &models.Match{ID: req.ID, CreatorID: req.CreatorID, Status: models.MatchStatusWaiting}, nil
}

func (a *scriptedApp) FindOldestWaitingMatch(ctx context.Context, guesserID uuid.UUID) (*models.Match, error) {
	a.mu.Lock()
	a.findCalls++
	call := a.findCalls
	a.mu.Unlock()
	return a.findFn(call)
}

func (a *scriptedApp) ClaimMatch(ctx context.Context, req match.ClaimMatchRequest) (*models.Match, error) {
	a.mu.Lock()
	a.claimCalls++
	call := a.claimCalls
	a.mu.Unlock()
	return a.claimFn(call, req)
}

func (a *scriptedApp) calls() (find, claim int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.findCalls, a.claimCalls
}

func waitingMatch() *models.Match {
	return &models.Match{ID: uuid.New(), CreatorID: uuid.New(), Status: models.MatchStatusWaiting}
}

func claimed(m *models.Match, req match.ClaimMatchRequest) *models.Match {
	out := *m
	id := req.GuesserID
	name := req.GuesserName
	out.GuesserID = &id
	out.GuesserName = &name
	out.Status = models.MatchStatusActive
	return &out
}

type searchResult struct {
	match *models.Match
	err   error
}

func runSearch(c *Coordinator, ctx context.Context, guesserID uuid.UUID) <-chan searchResult {
	ch := make(chan searchResult, 1)
	go func() {
		m, err := c.Search(ctx, guesserID, "guesser")
		ch <- searchResult{m, err}
	}()
	return ch
}

func mustResult(t *testing.T, ch <-chan searchResult) searchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("search never returned")
		return searchResult{}
	}
}

func TestSearchClaimsImmediately(t *testing.T) {
	waiting := waitingMatch()
	app := &scriptedApp{
		findFn: func(int) (*models.Match, error) { return waiting, nil },
		claimFn: func(_ int, req match.ClaimMatchRequest) (*models.Match, error) {
			return claimed(waiting, req), nil
		},
	}
	b := bus.NewMemoryBus()

	var joins int
	sub, _ := b.Subscribe(bus.MatchTopic(waiting.ID), func(event string, _ []byte) {
		if event == bus.EventGuesserJoined {
			joins++
		}
	})
	defer sub.Unsubscribe()

	c := NewCoordinator(app, b, testPolicy(), clockwork.NewFakeClock())
	r := mustResult(t, runSearch(c, context.Background(), uuid.New()))
	if r.err != nil {
		t.Fatalf("Search: %v", r.err)
	}
	if r.match.Status != models.MatchStatusActive {
		t.Errorf("status = %s, want active", r.match.Status)
	}
	if joins != 1 {
		t.Errorf("guesser-joined published %d times, want 1", joins)
	}
}

func TestSearchPollsUntilMatchAppears(t *testing.T) {
	waiting := waitingMatch()
	app := &scriptedApp{
		findFn: func(call int) (*models.Match, error) {
			if call == 1 {
				return nil, match.ErrNotFound
			}
			return waiting, nil
		},
		claimFn: func(_ int, req match.ClaimMatchRequest) (*models.Match, error) {
			return claimed(waiting, req), nil
		},
	}
	clock := clockwork.NewFakeClock()
	c := NewCoordinator(app, bus.NewMemoryBus(), testPolicy(), clock)

	ch := runSearch(c, context.Background(), uuid.New())

	// Window timer plus the first poll timer.
	clock.BlockUntil(2)
	clock.Advance(testPolicy().PollInterval)

	r := mustResult(t, ch)
	if r.err != nil {
		t.Fatalf("Search: %v", r.err)
	}
	if finds, _ := app.calls(); finds != 2 {
		t.Errorf("find calls = %d, want 2", finds)
	}
}

// A lost claim re-searches immediately; the poll interval only applies to
// queue misses. No clock advance happens in this test.
func TestSearchRetriesImmediatelyOnLostClaim(t *testing.T) {
	contested := waitingMatch()
	next := waitingMatch()
	app := &scriptedApp{
		findFn: func(call int) (*models.Match, error) {
			if call == 1 {
				return contested, nil
			}
			return next, nil
		},
		claimFn: func(call int, req match.ClaimMatchRequest) (*models.Match, error) {
			if call == 1 {
				return nil, match.ErrMatchUnavailable
			}
			return claimed(next, req), nil
		},
	}
	c := NewCoordinator(app, bus.NewMemoryBus(), testPolicy(), clockwork.NewFakeClock())

	r := mustResult(t, runSearch(c, context.Background(), uuid.New()))
	if r.err != nil {
		t.Fatalf("Search: %v", r.err)
	}
	if r.match.ID != next.ID {
		t.Errorf("claimed %s, want the re-searched match %s", r.match.ID, next.ID)
	}
	finds, claims := app.calls()
	if finds != 2 || claims != 2 {
		t.Errorf("find/claim calls = %d/%d, want 2/2", finds, claims)
	}
}

func TestSearchTimesOutWhenQueueStaysEmpty(t *testing.T) {
	app := &scriptedApp{
		findFn: func(int) (*models.Match, error) { return nil, match.ErrNotFound },
		claimFn: func(int, match.ClaimMatchRequest) (*models.Match, error) {
			return nil, match.ErrMatchUnavailable
		},
	}
	clock := clockwork.NewFakeClock()
	c := NewCoordinator(app, bus.NewMemoryBus(), testPolicy(), clock)

	ch := runSearch(c, context.Background(), uuid.New())

	clock.BlockUntil(2)
	clock.Advance(testPolicy().SearchWindow)

	r := mustResult(t, ch)
	if !errors.Is(r.err, ErrSearchTimeout) {
		t.Fatalf("err = %v, want ErrSearchTimeout", r.err)
	}
	if _, claims := app.calls(); claims != 0 {
		t.Errorf("claim calls = %d, want 0", claims)
	}
}

func TestSearchStopsOnContextCancel(t *testing.T) {
	app := &scriptedApp{
		findFn: func(int) (*models.Match, error) { return nil, match.ErrNotFound },
		claimFn: func(int, match.ClaimMatchRequest) (*models.Match, error) { return nil, nil },
	}
	clock := clockwork.NewFakeClock()
	c := NewCoordinator(app, bus.NewMemoryBus(), testPolicy(), clock)

	ctx, cancel := context.WithCancel(context.Background())
	ch := runSearch(c, ctx, uuid.New())

	clock.BlockUntil(2)
	cancel()

	r := mustResult(t, ch)
	if !errors.Is(r.err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", r.err)
	}
}

func TestPolicyUnmarshalYAML(t *testing.T) {
	p := DefaultPolicy()
	doc := `
poll_interval: 500ms
search_window: 1m
waiting_room_timeout: 20s
max_draw_batch_points: 64
`
	if err := yaml.Unmarshal([]byte(doc), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", p.PollInterval)
	}
	if p.SearchWindow != time.Minute {
		t.Errorf("SearchWindow = %v", p.SearchWindow)
	}
	if p.WaitingRoomTimeout != 20*time.Second {
		t.Errorf("WaitingRoomTimeout = %v", p.WaitingRoomTimeout)
	}
	if p.MaxDrawBatchPoints != 64 {
		t.Errorf("MaxDrawBatchPoints = %d", p.MaxDrawBatchPoints)
	}
}

func TestPolicyUnmarshalYAMLPartialKeepsDefaults(t *testing.T) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal([]byte("poll_interval: 3s\n"), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v", p.PollInterval)
	}
	want := DefaultPolicy()
	if p.SearchWindow != want.SearchWindow || p.WaitingRoomTimeout != want.WaitingRoomTimeout || p.MaxDrawBatchPoints != want.MaxDrawBatchPoints {
		t.Errorf("partial config clobbered defaults: %+v", p)
	}
}

func TestPolicyUnmarshalYAMLRejectsBadDuration(t *testing.T) {
	p := DefaultPolicy()
	if err := yaml.Unmarshal([]byte("poll_interval: soon\n"), &p); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

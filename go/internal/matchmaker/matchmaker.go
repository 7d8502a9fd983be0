// Package matchmaker pairs two independent sessions into a single match:
// creators open a match and wait, guessers poll the waiting queue and claim
// the oldest eligible match. Pairing is first-available only.
package matchmaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/match"
	"github.com/hotdot-game/hotdot/go/internal/models"
	"github.com/hotdot-game/hotdot/go/internal/watch"
)

// ErrSearchTimeout is returned when a guesser's search window closes without
// a successful claim.
var ErrSearchTimeout = errors.New("no match found within search window")

// Policy holds the matchmaking timing constants. They are configuration, not
// business logic: tests drive them with fake clocks and short values.
type Policy struct {
	PollInterval       time.Duration
	SearchWindow       time.Duration
	WaitingRoomTimeout time.Duration
	MaxDrawBatchPoints int
}

// DefaultPolicy returns the production matchmaking policy.
func DefaultPolicy() Policy {
	return Policy{
		PollInterval:       2 * time.Second,
		SearchWindow:       30 * time.Second,
		WaitingRoomTimeout: 15 * time.Second,
		MaxDrawBatchPoints: 256,
	}
}

// UnmarshalYAML decodes durations from Go duration strings ("2s", "500ms").
// Absent fields keep whatever value the Policy already holds, so defaults
// survive a partial config file.
func (p *Policy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PollInterval       string `yaml:"poll_interval"`
		SearchWindow       string `yaml:"search_window"`
		WaitingRoomTimeout string `yaml:"waiting_room_timeout"`
		MaxDrawBatchPoints *int   `yaml:"max_draw_batch_points"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	set := func(dst *time.Duration, s string) error {
		if s == "" {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*dst = d
		return nil
	}
	if err := set(&p.PollInterval, raw.PollInterval); err != nil {
		return err
	}
	if err := set(&p.SearchWindow, raw.SearchWindow); err != nil {
		return err
	}
	if err := set(&p.WaitingRoomTimeout, raw.WaitingRoomTimeout); err != nil {
		return err
	}
	if raw.MaxDrawBatchPoints != nil {
		p.MaxDrawBatchPoints = *raw.MaxDrawBatchPoints
	}
	return nil
}

// MatchApp defines what the coordinator needs from the match app
type MatchApp interface {
	CreateMatch(ctx context.Context, req match.CreateMatchRequest) (*models.Match, error)
	FindOldestWaitingMatch(ctx context.Context, guesserID uuid.UUID) (*models.Match, error)
	ClaimMatch(ctx context.Context, req match.ClaimMatchRequest) (*models.Match, error)
}

// Coordinator runs the creator and guesser pairing paths against the store,
// with the bus used only for the join hint.
type Coordinator struct {
	app    MatchApp
	bus    bus.Bus
	policy Policy
	clock  clockwork.Clock
}

// NewCoordinator creates a matchmaking coordinator.
func NewCoordinator(app MatchApp, b bus.Bus, policy Policy, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		app:    app,
		bus:    b,
		policy: policy,
		clock:  clock,
	}
}

// Create opens a match for a creator and returns it. With template data the
// match enters the waiting queue immediately; without it the creator attaches
// a challenge later.
func (c *Coordinator) Create(ctx context.Context, req match.CreateMatchRequest) (*models.Match, error) {
	return c.app.CreateMatch(ctx, req)
}

// Search runs the guesser's polling loop: find the oldest waiting match,
// claim it, and on a lost claim re-search immediately rather than waiting out
// the poll interval. A queue miss is the expected case and waits one poll
// interval. The loop is bounded by the policy's search window.
func (c *Coordinator) Search(ctx context.Context, guesserID uuid.UUID, guesserName string) (*models.Match, error) {
	window := c.clock.NewTimer(c.policy.SearchWindow)
	defer watch.StopAndDrain(window)

	for {
		found, err := c.app.FindOldestWaitingMatch(ctx, guesserID)
		switch {
		case err == nil:
			claimed, claimErr := c.app.ClaimMatch(ctx, match.ClaimMatchRequest{
				MatchID:     found.ID,
				GuesserID:   guesserID,
				GuesserName: guesserName,
			})
			if claimErr == nil {
				c.announceJoin(claimed)
				return claimed, nil
			}
			if errors.Is(claimErr, match.ErrMatchUnavailable) {
				// Lost the race; the queue may hold another match already.
				log.Debug().
					Str("match_id", found.ID.String()).
					Str("guesser_id", guesserID.String()).
					Msg("claim lost, re-searching immediately")
				continue
			}
			log.Warn().Err(claimErr).Str("match_id", found.ID.String()).Msg("claim failed, retrying after poll interval")

		case errors.Is(err, match.ErrNotFound):
			// Nothing waiting yet. Expected; poll again.

		default:
			log.Warn().Err(err).Msg("waiting queue lookup failed, retrying after poll interval")
		}

		poll := c.clock.NewTimer(c.policy.PollInterval)
		select {
		case <-ctx.Done():
			watch.StopAndDrain(poll)
			return nil, ctx.Err()
		case <-window.Chan():
			watch.StopAndDrain(poll)
			return nil, ErrSearchTimeout
		case <-poll.Chan():
		}
	}
}

// WaitForGuesser opens the creator's waiting room for a match already in the
// waiting state.
func (c *Coordinator) WaitForGuesser(ctx context.Context, app watch.MatchApp, matchID uuid.UUID) (*watch.WaitingRoom, error) {
	return watch.OpenWaitingRoom(ctx, app, c.bus, c.clock, matchID, c.policy.WaitingRoomTimeout)
}

// announceJoin tells the waiting creator a guesser arrived. Best effort: the
// creator's own expiry re-read covers a lost publish.
func (c *Coordinator) announceJoin(m *models.Match) {
	err := c.bus.Publish(bus.MatchTopic(m.ID), bus.EventGuesserJoined, map[string]string{
		"match_id": m.ID.String(),
	})
	if err != nil {
		log.Warn().Err(err).Str("match_id", m.ID.String()).Msg("failed to publish guesser-joined")
	}
}

package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/match"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

// teardownTimeout bounds the best-effort cleanup calls that run while a
// session is already going away.
const teardownTimeout = 2 * time.Second

// MatchApp defines what the waiting room needs from the match app
type MatchApp interface {
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	UpdateMatchStatus(ctx context.Context, id uuid.UUID, status models.MatchStatus) (*models.Match, error)
	DeleteMatch(ctx context.Context, id uuid.UUID) error
}

// Outcome is how a waiting room ended.
type Outcome int

const (
	// OutcomeJoined means a guesser claimed the match before expiry.
	OutcomeJoined Outcome = iota
	// OutcomeTimedOut means the room expired and the match was marked failed.
	OutcomeTimedOut
	// OutcomeAbandoned means the creator left; the match row was deleted.
	OutcomeAbandoned
)

// WaitingRoom is the creator-side watch on a waiting match. It holds a
// subscription on the match topic and a single expiry timer; whichever fires
// first resolves the room. The guesser-joined notification is a hint only:
// on expiry the store is re-read before the match is failed, in case the
// notification was lost.
type WaitingRoom struct {
	matchID uuid.UUID
	app     MatchApp
	timeout time.Duration
	clock   clockwork.Clock

	sub       bus.Subscription
	timer     clockwork.Timer
	joinCh    chan struct{}
	abandonCh chan struct{}
	done      chan Outcome

	abandonOnce sync.Once
}

// OpenWaitingRoom subscribes to the match topic and arms the expiry timer.
// The room resolves exactly once; read the result from Done.
func OpenWaitingRoom(ctx context.Context, app MatchApp, b bus.Bus, clock clockwork.Clock, matchID uuid.UUID, timeout time.Duration) (*WaitingRoom, error) {
	w := &WaitingRoom{
		matchID:   matchID,
		app:       app,
		timeout:   timeout,
		clock:     clock,
		joinCh:    make(chan struct{}, 1),
		abandonCh: make(chan struct{}),
		done:      make(chan Outcome, 1),
	}

	// Subscribe before arming the timer so a join that lands in between is
	// not missed.
	sub, err := b.Subscribe(bus.MatchTopic(matchID), func(event string, payload []byte) {
		if event != bus.EventGuesserJoined {
			return
		}
		select {
		case w.joinCh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	w.sub = sub
	w.timer = clock.NewTimer(timeout)

	go w.run(ctx)

	log.Debug().
		Str("match_id", matchID.String()).
		Dur("timeout", timeout).
		Msg("waiting room opened")
	return w, nil
}

// Done reports how the room resolved.
func (w *WaitingRoom) Done() <-chan Outcome {
	return w.done
}

// Abandon tears the room down because the creator left before a guesser
// joined. The match row is deleted best-effort so it stops being offered to
// searchers; a failed delete is logged, not retried.
func (w *WaitingRoom) Abandon() {
	w.abandonOnce.Do(func() {
		close(w.abandonCh)
	})
}

func (w *WaitingRoom) run(ctx context.Context) {
	defer func() {
		StopAndDrain(w.timer)
		if err := w.sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("match_id", w.matchID.String()).Msg("failed to unsubscribe waiting room")
		}
	}()

	select {
	case <-w.joinCh:
		// Timer must die with the join so it can never later fail an
		// active match.
		w.done <- OutcomeJoined

	case <-w.timer.Chan():
		w.done <- w.expire(ctx)

	case <-w.abandonCh:
		w.deleteMatch()
		w.done <- OutcomeAbandoned

	case <-ctx.Done():
		w.deleteMatch()
		w.done <- OutcomeAbandoned
	}
}

// expire re-reads the match before failing it: the join notification is
// best-effort, so the row is the source of truth.
func (w *WaitingRoom) expire(ctx context.Context) Outcome {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	m, err := w.app.GetMatch(opCtx, w.matchID)
	if err == nil && m.Status == models.MatchStatusActive {
		log.Info().
			Str("match_id", w.matchID.String()).
			Msg("join notification was lost; discovered active match on expiry re-read")
		return OutcomeJoined
	}

	if _, err := w.app.UpdateMatchStatus(opCtx, w.matchID, models.MatchStatusFailed); err != nil {
		// The failure write is conditional in the store; a claim landing
		// after the re-read wins and the match stays active.
		if errors.Is(err, match.ErrInvalidTransition) {
			if m, rerr := w.app.GetMatch(opCtx, w.matchID); rerr == nil && m.Status == models.MatchStatusActive {
				log.Info().
					Str("match_id", w.matchID.String()).
					Msg("claim landed during expiry; match stays active")
				return OutcomeJoined
			}
		}
		log.Error().Err(err).Str("match_id", w.matchID.String()).Msg("failed to mark expired match failed")
	} else {
		log.Info().Str("match_id", w.matchID.String()).Msg("waiting room expired, match failed")
	}
	return OutcomeTimedOut
}

func (w *WaitingRoom) deleteMatch() {
	opCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := w.app.DeleteMatch(opCtx, w.matchID); err != nil {
		log.Warn().Err(err).Str("match_id", w.matchID.String()).Msg("best-effort match delete failed")
	}
}

package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hotdot-game/hotdot/go/internal/models"
)

// MatchRepository defines what the app layer needs from the match repository
type MatchRepository interface {
	CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	UpdateMatchStatus(ctx context.Context, id uuid.UUID, from, to models.MatchStatus) (*models.Match, error)
	AttachChallenge(ctx context.Context, id uuid.UUID, req AttachChallengeRequest) (*models.Match, error)
	DeleteMatch(ctx context.Context, id uuid.UUID) error
	FindOldestWaitingMatch(ctx context.Context, excludeCreatorID uuid.UUID) (*models.Match, error)
	ClaimMatch(ctx context.Context, req ClaimMatchRequest) (*models.Match, error)
	ExpireStaleWaitingMatches(ctx context.Context, olderThan time.Time) (int64, error)
}

// App handles match business logic
type App struct {
	repo MatchRepository
}

// NewApp creates a new match App
func NewApp(repo MatchRepository) *App {
	return &App{
		repo: repo,
	}
}

// CreateMatch creates a new match for the given creator. Template data is
// optional; with it the match starts in waiting, without it in creating.
func (a *App) CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error) {
	if req.CreatorID == uuid.Nil {
		return nil, fmt.Errorf("creator id is required")
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = models.MatchStatusCreating
		if len(req.Template) > 0 {
			req.Status = models.MatchStatusWaiting
		}
	}
	if req.Status != models.MatchStatusCreating && req.Status != models.MatchStatusWaiting {
		return nil, fmt.Errorf("new match cannot start as %s", req.Status)
	}

	m, err := a.repo.CreateMatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	log.Info().
		Str("match_id", m.ID.String()).
		Str("creator_id", m.CreatorID.String()).
		Str("status", string(m.Status)).
		Msg("created match")
	return m, nil
}

// GetMatch retrieves a match by ID
func (a *App) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return a.repo.GetMatch(ctx, id)
}

// UpdateMatchStatus moves a match along its lifecycle, rejecting transitions
// that would move it backwards. The write itself is conditional on the status
// observed here, so a claim landing between the read and the write surfaces
// as ErrInvalidTransition instead of overwriting the active row.
func (a *App) UpdateMatchStatus(ctx context.Context, id uuid.UUID, status models.MatchStatus) (*models.Match, error) {
	current, err := a.repo.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.ValidTransition(current.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}

	m, err := a.repo.UpdateMatchStatus(ctx, id, current.Status, status)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("match_id", id.String()).
		Str("from", string(current.Status)).
		Str("to", string(status)).
		Msg("updated match status")
	return m, nil
}

// AttachChallenge stores template data on a creating match and opens it to
// the waiting queue.
func (a *App) AttachChallenge(ctx context.Context, id uuid.UUID, req AttachChallengeRequest) (*models.Match, error) {
	current, err := a.repo.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.MatchStatusCreating {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, models.MatchStatusWaiting)
	}
	return a.repo.AttachChallenge(ctx, id, req)
}

// DeleteMatch removes a match. Used by the creator's teardown path when the
// waiting room is abandoned before a guesser joins.
func (a *App) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	if err := a.repo.DeleteMatch(ctx, id); err != nil {
		return err
	}
	log.Info().Str("match_id", id.String()).Msg("deleted match")
	return nil
}

// FindOldestWaitingMatch returns the oldest eligible waiting match for a
// guesser, excluding matches the guesser created.
func (a *App) FindOldestWaitingMatch(ctx context.Context, guesserID uuid.UUID) (*models.Match, error) {
	return a.repo.FindOldestWaitingMatch(ctx, guesserID)
}

// ClaimMatch runs the join arbitration. Exactly one concurrent caller wins;
// losers get ErrMatchUnavailable with no partial state left behind.
func (a *App) ClaimMatch(ctx context.Context, req ClaimMatchRequest) (*models.Match, error) {
	if req.GuesserID == uuid.Nil {
		return nil, fmt.Errorf("guesser id is required")
	}

	m, err := a.repo.ClaimMatch(ctx, req)
	if err != nil {
		if errors.Is(err, ErrMatchUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to claim match: %w", err)
	}

	log.Info().
		Str("match_id", m.ID.String()).
		Str("guesser_id", req.GuesserID.String()).
		Msg("guesser claimed match")
	return m, nil
}

// ExpireStaleWaitingMatches fails waiting rows older than maxAge.
func (a *App) ExpireStaleWaitingMatches(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	n, err := a.repo.ExpireStaleWaitingMatches(ctx, now.Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Warn().Int64("count", n).Msg("expired stale waiting matches")
	}
	return n, nil
}

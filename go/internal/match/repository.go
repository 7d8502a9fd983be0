package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hotdot-game/hotdot/go/internal/match/db"
	"github.com/hotdot-game/hotdot/go/internal/models"
	"github.com/hotdot-game/hotdot/go/internal/sqlutil"
)

// Repository implements match data access operations
type Repository struct {
	queries *db.Queries
}

// NewRepository creates a new match repository
func NewRepository(queries *db.Queries) *Repository {
	return &Repository{
		queries: queries,
	}
}

// CreateMatch inserts a new match row.
func (r *Repository) CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error) {
	m, err := r.queries.CreateMatch(ctx, db.CreateMatchParams{
		ID:          req.ID,
		Status:      db.MatchStatus(req.Status),
		CreatorID:   req.CreatorID,
		CreatorName: req.CreatorName,
		ChallengeID: sqlutil.ToNullUUID(req.ChallengeID),
		Template:    sqlutil.ToNullRaw(req.Template),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return dbMatchToModel(m), nil
}

// GetMatch retrieves a match by ID.
func (r *Repository) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	m, err := r.queries.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return dbMatchToModel(m), nil
}

// UpdateMatchStatus moves a match from one status to another in a single
// conditional update. Zero rows means the row left the expected status (or
// was deleted) between the caller's read and this write; that is reported as
// ErrInvalidTransition so the caller re-reads instead of clobbering.
func (r *Repository) UpdateMatchStatus(ctx context.Context, id uuid.UUID, from, to models.MatchStatus) (*models.Match, error) {
	m, err := r.queries.UpdateMatchStatus(ctx, db.UpdateMatchStatusParams{
		ID:         id,
		Status:     db.MatchStatus(to),
		FromStatus: db.MatchStatus(from),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: match is no longer %s", ErrInvalidTransition, from)
		}
		return nil, fmt.Errorf("failed to update match status: %w", err)
	}
	return dbMatchToModel(m), nil
}

// AttachChallenge stores challenge data on a match and moves it to waiting.
// The write is conditional on the row still being in creating.
func (r *Repository) AttachChallenge(ctx context.Context, id uuid.UUID, req AttachChallengeRequest) (*models.Match, error) {
	m, err := r.queries.UpdateMatchChallenge(ctx, db.UpdateMatchChallengeParams{
		ID:          id,
		ChallengeID: sqlutil.ToNullUUID(req.ChallengeID),
		Template:    sqlutil.ToNullRaw(req.Template),
		Status:      db.MatchStatusWaiting,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: match is no longer creating", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("failed to attach challenge: %w", err)
	}
	return dbMatchToModel(m), nil
}

// DeleteMatch removes a match row.
func (r *Repository) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.DeleteMatch(ctx, id); err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	return nil
}

// FindOldestWaitingMatch returns the oldest waiting match not created by the
// caller, or ErrNotFound when the queue is empty.
func (r *Repository) FindOldestWaitingMatch(ctx context.Context, excludeCreatorID uuid.UUID) (*models.Match, error) {
	m, err := r.queries.FindOldestWaitingMatch(ctx, excludeCreatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find waiting match: %w", err)
	}
	return dbMatchToModel(m), nil
}

// ClaimMatch executes the atomic conditional update that assigns the guesser.
// A zero-row result means another caller won the race or the match left the
// waiting state; that is reported as ErrMatchUnavailable.
func (r *Repository) ClaimMatch(ctx context.Context, req ClaimMatchRequest) (*models.Match, error) {
	var guesserName *string
	if req.GuesserName != "" {
		guesserName = &req.GuesserName
	}
	m, err := r.queries.ClaimMatch(ctx, db.ClaimMatchParams{
		ID:          req.MatchID,
		GuesserID:   req.GuesserID,
		GuesserName: sqlutil.ToSqlString(guesserName),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchUnavailable
		}
		return nil, fmt.Errorf("failed to claim match: %w", err)
	}
	return dbMatchToModel(m), nil
}

// ExpireStaleWaitingMatches fails waiting rows older than the cutoff. Covers
// creator sessions that died without running their own timeout path.
func (r *Repository) ExpireStaleWaitingMatches(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := r.queries.ExpireStaleWaitingMatches(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale matches: %w", err)
	}
	return n, nil
}

func dbMatchToModel(m db.Match) *models.Match {
	return &models.Match{
		ID:          m.ID,
		Status:      models.MatchStatus(m.Status),
		CreatorID:   m.CreatorID,
		CreatorName: m.CreatorName,
		GuesserID:   sqlutil.FromNullUUID(m.GuesserID),
		GuesserName: sqlutil.FromSqlStringPtr(m.GuesserName),
		ChallengeID: sqlutil.FromNullUUID(m.ChallengeID),
		Template:    sqlutil.FromNullRaw(m.Template),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

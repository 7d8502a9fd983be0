package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sqlc-dev/pqtype"
)

const matchColumns = `id, status, creator_id, creator_name, guesser_id, guesser_name, challenge_id, template, created_at, updated_at`

func scanMatch(row pgx.Row) (Match, error) {
	var m Match
	err := row.Scan(
		&m.ID,
		&m.Status,
		&m.CreatorID,
		&m.CreatorName,
		&m.GuesserID,
		&m.GuesserName,
		&m.ChallengeID,
		&m.Template,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

const createMatch = `
INSERT INTO matches (id, status, creator_id, creator_name, challenge_id, template)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + matchColumns

type CreateMatchParams struct {
	ID          uuid.UUID
	Status      MatchStatus
	CreatorID   uuid.UUID
	CreatorName string
	ChallengeID uuid.NullUUID
	Template    pqtype.NullRawMessage
}

func (q *Queries) CreateMatch(ctx context.Context, arg CreateMatchParams) (Match, error) {
	row := q.db.QueryRow(ctx, createMatch,
		arg.ID,
		arg.Status,
		arg.CreatorID,
		arg.CreatorName,
		arg.ChallengeID,
		arg.Template,
	)
	return scanMatch(row)
}

const getMatch = `
SELECT ` + matchColumns + `
FROM matches
WHERE id = $1`

func (q *Queries) GetMatch(ctx context.Context, id uuid.UUID) (Match, error) {
	row := q.db.QueryRow(ctx, getMatch, id)
	return scanMatch(row)
}

// UpdateMatchStatus moves a row along the lifecycle with the same conditional
// shape as ClaimMatch: the expected current status rides in the WHERE clause,
// so a row that moved concurrently comes back as zero rows instead of being
// overwritten.
const updateMatchStatus = `
UPDATE matches
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + matchColumns

type UpdateMatchStatusParams struct {
	ID         uuid.UUID
	Status     MatchStatus
	FromStatus MatchStatus
}

func (q *Queries) UpdateMatchStatus(ctx context.Context, arg UpdateMatchStatusParams) (Match, error) {
	row := q.db.QueryRow(ctx, updateMatchStatus, arg.ID, arg.Status, arg.FromStatus)
	return scanMatch(row)
}

const updateMatchChallenge = `
UPDATE matches
SET challenge_id = $2, template = $3, status = $4, updated_at = now()
WHERE id = $1 AND status = 'creating'
RETURNING ` + matchColumns

type UpdateMatchChallengeParams struct {
	ID          uuid.UUID
	ChallengeID uuid.NullUUID
	Template    pqtype.NullRawMessage
	Status      MatchStatus
}

func (q *Queries) UpdateMatchChallenge(ctx context.Context, arg UpdateMatchChallengeParams) (Match, error) {
	row := q.db.QueryRow(ctx, updateMatchChallenge, arg.ID, arg.ChallengeID, arg.Template, arg.Status)
	return scanMatch(row)
}

const deleteMatch = `
DELETE FROM matches
WHERE id = $1`

func (q *Queries) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteMatch, id)
	return err
}

const findOldestWaitingMatch = `
SELECT ` + matchColumns + `
FROM matches
WHERE status = 'waiting' AND creator_id <> $1
ORDER BY created_at ASC
LIMIT 1`

func (q *Queries) FindOldestWaitingMatch(ctx context.Context, excludeCreatorID uuid.UUID) (Match, error) {
	row := q.db.QueryRow(ctx, findOldestWaitingMatch, excludeCreatorID)
	return scanMatch(row)
}

// ClaimMatch assigns a guesser to a waiting match and flips it to active in a
// single conditional UPDATE. Concurrent claimers race on the WHERE clause;
// exactly one caller gets the row back, the rest see zero rows. Never split
// this into a read followed by a write.
const claimMatch = `
UPDATE matches
SET guesser_id = $2, guesser_name = $3, status = 'active', updated_at = now()
WHERE id = $1 AND status = 'waiting' AND guesser_id IS NULL
RETURNING ` + matchColumns

type ClaimMatchParams struct {
	ID          uuid.UUID
	GuesserID   uuid.UUID
	GuesserName sql.NullString
}

func (q *Queries) ClaimMatch(ctx context.Context, arg ClaimMatchParams) (Match, error) {
	row := q.db.QueryRow(ctx, claimMatch, arg.ID, arg.GuesserID, arg.GuesserName)
	return scanMatch(row)
}

const expireStaleWaitingMatches = `
UPDATE matches
SET status = 'failed', updated_at = now()
WHERE status = 'waiting' AND created_at < $1`

// ExpireStaleWaitingMatches is a janitor query for waiting rows whose creator
// session died without running its own timeout path.
func (q *Queries) ExpireStaleWaitingMatches(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, expireStaleWaitingMatches, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

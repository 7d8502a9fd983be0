package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// MatchStatus mirrors the match_status enum in Postgres.
type MatchStatus string

const (
	MatchStatusCreating MatchStatus = "creating"
	MatchStatusWaiting  MatchStatus = "waiting"
	MatchStatusActive   MatchStatus = "active"
	MatchStatusFailed   MatchStatus = "failed"
	MatchStatusFinished MatchStatus = "finished"
)

// Match is one row of the matches table.
type Match struct {
	ID          uuid.UUID
	Status      MatchStatus
	CreatorID   uuid.UUID
	CreatorName string
	GuesserID   uuid.NullUUID
	GuesserName sql.NullString
	ChallengeID uuid.NullUUID
	Template    pqtype.NullRawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MatchStatus defines the lifecycle status of a match.
type MatchStatus string

const (
	MatchStatusCreating MatchStatus = "creating"
	MatchStatusWaiting  MatchStatus = "waiting"
	MatchStatusActive   MatchStatus = "active"
	MatchStatusFailed   MatchStatus = "failed"
	MatchStatusFinished MatchStatus = "finished"
)

// ValidTransition reports whether a status change follows the monotonic
// lifecycle path. failed is reachable from creating or waiting only; once a
// match is active it either finishes or is abandoned by a peer.
func ValidTransition(from, to MatchStatus) bool {
	switch from {
	case MatchStatusCreating:
		return to == MatchStatusWaiting || to == MatchStatusFailed
	case MatchStatusWaiting:
		return to == MatchStatusActive || to == MatchStatusFailed
	case MatchStatusActive:
		return to == MatchStatusFinished
	default:
		return false
	}
}

// Role identifies which side of a match a session plays.
type Role string

const (
	RoleCreator Role = "creator"
	RoleGuesser Role = "guesser"
)

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RoleCreator {
		return RoleGuesser
	}
	return RoleCreator
}

// Match represents one paired session between a creator and a guesser.
// guesser fields stay nil until the join arbitration assigns a guesser;
// name fields are snapshotted when each party joins, not live-updated.
type Match struct {
	ID          uuid.UUID       `json:"id"`
	Status      MatchStatus     `json:"status"`
	CreatorID   uuid.UUID       `json:"creator_id"`
	CreatorName string          `json:"creator_name"`
	GuesserID   *uuid.UUID      `json:"guesser_id,omitempty"`
	GuesserName *string         `json:"guesser_name,omitempty"`
	ChallengeID *uuid.UUID      `json:"challenge_id,omitempty"`
	Template    json.RawMessage `json:"template,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

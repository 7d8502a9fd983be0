package match

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

// CreateMatchRequest represents a request to create a new match. A match
// created without challenge data starts in creating; attaching a template at
// creation time puts it straight into waiting.
type CreateMatchRequest struct {
	ID          uuid.UUID          `json:"id"`
	CreatorID   uuid.UUID          `json:"creator_id"`
	CreatorName string             `json:"creator_name"`
	ChallengeID *uuid.UUID         `json:"challenge_id,omitempty"`
	Template    json.RawMessage    `json:"template,omitempty"`
	Status      models.MatchStatus `json:"status"`
}

// ClaimMatchRequest represents a guesser's attempt to claim a waiting match.
type ClaimMatchRequest struct {
	MatchID     uuid.UUID `json:"match_id"`
	GuesserID   uuid.UUID `json:"guesser_id"`
	GuesserName string    `json:"guesser_name"`
}

// AttachChallengeRequest attaches template data to a creating match and moves
// it into the waiting queue.
type AttachChallengeRequest struct {
	ChallengeID *uuid.UUID      `json:"challenge_id,omitempty"`
	Template    json.RawMessage `json:"template,omitempty"`
}

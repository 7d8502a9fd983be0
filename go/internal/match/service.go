package match

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hotdot-game/hotdot/go/internal/bus"
	"github.com/hotdot-game/hotdot/go/internal/challenge"
	"github.com/hotdot-game/hotdot/go/internal/identity"
	"github.com/hotdot-game/hotdot/go/internal/models"
)

// Reason codes returned to clients on failure.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonNotFound        = "not_found"
	ReasonConflict        = "conflict"
	ReasonInvalid         = "invalid"
	ReasonInternal        = "internal"
)

// MatchApp defines what the service layer needs from the match application
type MatchApp interface {
	CreateMatch(ctx context.Context, req CreateMatchRequest) (*models.Match, error)
	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	UpdateMatchStatus(ctx context.Context, id uuid.UUID, status models.MatchStatus) (*models.Match, error)
	AttachChallenge(ctx context.Context, id uuid.UUID, req AttachChallengeRequest) (*models.Match, error)
	DeleteMatch(ctx context.Context, id uuid.UUID) error
	FindOldestWaitingMatch(ctx context.Context, guesserID uuid.UUID) (*models.Match, error)
	ClaimMatch(ctx context.Context, req ClaimMatchRequest) (*models.Match, error)
}

// Service exposes the match lifecycle over HTTP: create, join (arbitration),
// read, status update, delete. Every handler resolves the caller identity
// first and rejects unauthenticated requests before touching the store.
type Service struct {
	app        MatchApp
	bus        bus.Bus
	idp        identity.Provider
	challenges challenge.Provider
}

// NewService creates a new match HTTP service
func NewService(app MatchApp, b bus.Bus, idp identity.Provider, challenges challenge.Provider) *Service {
	return &Service{
		app:        app,
		bus:        b,
		idp:        idp,
		challenges: challenges,
	}
}

// RegisterRoutes registers the match routes with an HTTP mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/match/create", s.handleCreate)
	mux.HandleFunc("POST /api/match/join", s.handleJoin)
	mux.HandleFunc("GET /api/match/{id}", s.handleGet)
	mux.HandleFunc("PATCH /api/match/{id}/status", s.handleUpdateStatus)
	mux.HandleFunc("POST /api/match/{id}/challenge", s.handleAttachChallenge)
	mux.HandleFunc("DELETE /api/match/{id}", s.handleDelete)
}

type createRequest struct {
	ChallengeID *uuid.UUID      `json:"challenge_id,omitempty"`
	Template    json.RawMessage `json:"template,omitempty"`
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := s.idp.CallerFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ReasonUnauthenticated)
		return
	}

	var body createRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, ReasonInvalid)
			return
		}
	}

	// With no template in the request, pick one from the challenge provider.
	// An empty provider is not an error: the match starts in creating and the
	// creator attaches a challenge later.
	if len(body.Template) == 0 {
		t, err := s.challenges.Pick(r.Context())
		switch {
		case err == nil:
			body.ChallengeID = &t.ID
			body.Template = t.Payload
		case !errors.Is(err, challenge.ErrNoTemplate):
			log.Warn().Err(err).Msg("challenge pick failed, creating without template")
		}
	}

	m, err := s.app.CreateMatch(r.Context(), CreateMatchRequest{
		CreatorID:   caller.ID,
		CreatorName: caller.DisplayName,
		ChallengeID: body.ChallengeID,
		Template:    body.Template,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// handleJoin runs one round of join arbitration: find the oldest waiting
// match (excluding the caller's own) and claim it. A lost claim comes back as
// conflict so the client re-searches immediately; an empty queue comes back
// as not_found so the client waits out its poll interval.
func (s *Service) handleJoin(w http.ResponseWriter, r *http.Request) {
	caller, err := s.idp.CallerFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, ReasonUnauthenticated)
		return
	}

	found, err := s.app.FindOldestWaitingMatch(r.Context(), caller.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, ReasonNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, ReasonInternal)
		return
	}

	claimed, err := s.app.ClaimMatch(r.Context(), ClaimMatchRequest{
		MatchID:     found.ID,
		GuesserID:   caller.ID,
		GuesserName: caller.DisplayName,
	})
	if err != nil {
		if errors.Is(err, ErrMatchUnavailable) {
			writeError(w, http.StatusConflict, ReasonConflict)
			return
		}
		writeError(w, http.StatusInternalServerError, ReasonInternal)
		return
	}

	// Wake the waiting creator. Best effort: the creator's expiry re-read
	// covers a lost publish.
	err = s.bus.Publish(bus.MatchTopic(claimed.ID), bus.EventGuesserJoined, map[string]string{
		"match_id": claimed.ID.String(),
	})
	if err != nil {
		log.Warn().Err(err).Str("match_id", claimed.ID.String()).Msg("failed to publish guesser-joined")
	}

	writeJSON(w, http.StatusOK, claimed)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, err := s.idp.CallerFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, ReasonUnauthenticated)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonInvalid)
		return
	}

	m, err := s.app.GetMatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, ReasonNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, ReasonInternal)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type updateStatusRequest struct {
	Status models.MatchStatus `json:"status"`
}

func (s *Service) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := s.idp.CallerFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, ReasonUnauthenticated)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonInvalid)
		return
	}

	var body updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ReasonInvalid)
		return
	}

	m, err := s.app.UpdateMatchStatus(r.Context(), id, body.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, ReasonNotFound)
		case errors.Is(err, ErrInvalidTransition):
			writeError(w, http.StatusConflict, ReasonConflict)
		default:
			writeError(w, http.StatusInternalServerError, ReasonInternal)
		}
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleAttachChallenge(w http.ResponseWriter, r *http.Request) {
	if _, err := s.idp.CallerFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, ReasonUnauthenticated)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonInvalid)
		return
	}

	var body AttachChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, ReasonInvalid)
		return
	}

	m, err := s.app.AttachChallenge(r.Context(), id, body)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, ReasonNotFound)
		case errors.Is(err, ErrInvalidTransition):
			writeError(w, http.StatusConflict, ReasonConflict)
		default:
			writeError(w, http.StatusInternalServerError, ReasonInternal)
		}
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, err := s.idp.CallerFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, ReasonUnauthenticated)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ReasonInvalid)
		return
	}

	if err := s.app.DeleteMatch(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, ReasonInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}

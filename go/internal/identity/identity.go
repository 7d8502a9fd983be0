// Package identity abstracts the sign-in system. The core only needs a
// caller identity for creator_id/guesser_id; how that identity is issued
// (magic links, sessions) is someone else's problem.
package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// ErrUnauthenticated is returned when a request carries no caller identity.
// Handlers reject these before touching the store.
var ErrUnauthenticated = errors.New("unauthenticated")

// Caller is the authenticated participant behind a request.
type Caller struct {
	ID          uuid.UUID
	DisplayName string
}

// Provider resolves the caller behind an HTTP request.
type Provider interface {
	CallerFromRequest(r *http.Request) (Caller, error)
}

// HeaderProvider trusts identity headers set by an upstream auth proxy.
type HeaderProvider struct {
	IDHeader   string
	NameHeader string
}

// NewHeaderProvider returns a provider reading X-User-Id / X-User-Name.
func NewHeaderProvider() *HeaderProvider {
	return &HeaderProvider{
		IDHeader:   "X-User-Id",
		NameHeader: "X-User-Name",
	}
}

func (p *HeaderProvider) CallerFromRequest(r *http.Request) (Caller, error) {
	raw := r.Header.Get(p.IDHeader)
	if raw == "" {
		return Caller{}, ErrUnauthenticated
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Caller{}, ErrUnauthenticated
	}
	return Caller{
		ID:          id,
		DisplayName: r.Header.Get(p.NameHeader),
	}, nil
}

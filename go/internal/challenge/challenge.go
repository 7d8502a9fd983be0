// Package challenge abstracts the shape/template source a match draws from.
// Template data is opaque to the lifecycle engine; it is attached to the
// match row and handed to the clients untouched.
package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNoTemplate is returned when the provider has nothing to offer.
var ErrNoTemplate = errors.New("no template available")

// Template is an opaque shape payload plus its identifier.
type Template struct {
	ID      uuid.UUID       `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Provider supplies templates for new matches.
type Provider interface {
	Pick(ctx context.Context) (Template, error)
}

// StaticProvider serves a fixed set of templates round-robin. Stands in for
// the real template service in development and tests. Safe for concurrent
// use; match creation calls Pick from request handlers.
type StaticProvider struct {
	mu        sync.Mutex
	templates []Template
	next      int
}

// NewStaticProvider creates a provider over a fixed template set.
func NewStaticProvider(templates []Template) *StaticProvider {
	return &StaticProvider{templates: templates}
}

func (p *StaticProvider) Pick(ctx context.Context) (Template, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.templates) == 0 {
		return Template{}, ErrNoTemplate
	}
	t := p.templates[p.next%len(p.templates)]
	p.next++
	return t, nil
}

// Package provider canonicalizes audio URLs into stable keys and decides
// which URLs belong to a recognized platform. The queue core uses it for
// song-identity derivation and for validating persisted snapshots.
package provider

import (
	"errors"
	"strings"
	"sync"
)

// Provider recognizes the URL shapes of one audio platform.
type Provider interface {
	// Name returns the provider's unique identifier.
	Name() string

	// MatchURL checks if the provider can handle the given URL.
	// Returns the extracted track key and true if matched.
	MatchURL(url string) (string, bool)
}

// Registry holds registered Providers and matches URLs against them in
// registration order.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	ordered   []Provider
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// NewDefault creates a Registry with every built-in provider registered.
func NewDefault() *Registry {
	r := New()
	_ = r.Register(NewYouTube())
	_ = r.Register(NewAudioFile())
	return r
}

// Register adds a provider. It rejects nil providers, empty names and
// duplicate registrations.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider cannot be nil")
	}
	name := p.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return errors.New("provider already registered: " + name)
	}
	r.providers[name] = p
	r.ordered = append(r.ordered, p)
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		names = append(names, p.Name())
	}
	return names
}

// Recognized reports whether any registered provider matches the URL.
// The snapshot store treats unrecognized URLs as corrupt entries.
func (r *Registry) Recognized(url string) bool {
	_, _, ok := r.match(url)
	return ok
}

// KeyFor returns the canonical identity key for a URL. Matched URLs map
// to "<provider>:<track key>"; anything else falls back to the
// lower-cased URL so that distinct unknown links still compare stably.
func (r *Registry) KeyFor(url string) string {
	key, p, ok := r.match(url)
	if !ok {
		return strings.ToLower(url)
	}
	return p.Name() + ":" + key
}

func (r *Registry) match(url string) (string, Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.ordered {
		if key, ok := p.MatchURL(url); ok {
			return key, p, true
		}
	}
	return "", nil, false
}

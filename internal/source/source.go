package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"PaperDesk/internal/model"
)

// ErrUnavailable means the source cannot serve requests at all and the
// caller should fall through to the next source.
var ErrUnavailable = model.ErrSourceUnavailable

// Request is what a source is asked to decide on.
type Request struct {
	Symbol   string
	Prompt   string
	Features model.MarketFeatures
}

// Source produces trading decisions.
type Source interface {
	Name() string
	// Available reports whether the source is configured to serve requests.
	Available() bool
	Decide(ctx context.Context, req Request) (model.Decision, model.DecisionMetadata, error)
}

// Registry holds the decision sources known to the process. It is built
// once at startup and passed to whoever needs it.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry holding the given sources.
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range sources {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a source. Names must be unique.
func (r *Registry) Register(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[s.Name()]; ok {
		return fmt.Errorf("source %q already registered", s.Name())
	}
	r.sources[s.Name()] = s
	return nil
}

// Get returns the named source.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain returns the fallback order for a symbol bound to bound: the bound
// source first, then the priority list. Unknown, duplicate and unavailable
// sources are skipped.
func (r *Registry) Chain(bound string, priority []string) []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(priority)+1)
	var chain []Source
	for _, name := range append([]string{bound}, priority...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		s, ok := r.sources[name]
		if !ok || !s.Available() {
			continue
		}
		chain = append(chain, s)
	}
	return chain
}

package provider

import (
	"fmt"

	"bookpay/internal/domain"
)

// ErrUnknownProvider wraps lookups for providers the registry does not hold.
type ErrUnknownProvider struct {
	Provider domain.Provider
}

func (e ErrUnknownProvider) Error() string {
	return fmt.Sprintf("unknown payment provider %q", e.Provider)
}

// Registry holds the closed set of payment processors, keyed by provider
// identity. Lookups never fall back to string comparison in callers.
type Registry struct {
	processors map[domain.Provider]Processor
}

// NewRegistry creates a registry over the given processors.
func NewRegistry(processors ...Processor) *Registry {
	m := make(map[domain.Provider]Processor, len(processors))
	for _, p := range processors {
		m[p.Name()] = p
	}
	return &Registry{processors: m}
}

// Get returns the processor for a provider.
func (r *Registry) Get(name domain.Provider) (Processor, error) {
	p, ok := r.processors[name]
	if !ok {
		return nil, ErrUnknownProvider{Provider: name}
	}
	return p, nil
}

// Names lists the registered providers.
func (r *Registry) Names() []domain.Provider {
	names := make([]domain.Provider, 0, len(r.processors))
	for name := range r.processors {
		names = append(names, name)
	}
	return names
}

package gateway

import (
	"sort"
	"strings"
)

// Registry maps provider names to Strategy implementations. It is populated
// at process start and read-only afterwards, so lookups need no locking.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register binds a strategy to a provider name. Names are case-insensitive;
// registering the same name twice replaces the earlier binding.
func (r *Registry) Register(name string, s Strategy) {
	r.strategies[strings.ToLower(name)] = s
}

// Get resolves a strategy by provider name. Unknown names fail closed with
// *UnsupportedProviderError.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[strings.ToLower(name)]
	if !ok {
		return nil, &UnsupportedProviderError{Provider: name}
	}
	return s, nil
}

// Providers returns the sorted list of registered provider names.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

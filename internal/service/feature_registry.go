package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"secure-withdrawal-gateway/internal/core/domain"
)

// FeatureRegistry implements ports.FeatureRepository over configured
// switches. Unknown names are disabled.
type FeatureRegistry struct {
	mu       sync.RWMutex
	features map[string]bool
}

// NewFeatureRegistry creates a registry from a name → enabled map. Names are
// case-insensitive.
func NewFeatureRegistry(switches map[string]bool) *FeatureRegistry {
	r := &FeatureRegistry{features: make(map[string]bool, len(switches))}
	for name, on := range switches {
		r.features[strings.ToLower(name)] = on
	}
	return r
}

// List returns every configured feature ordered by name.
func (r *FeatureRegistry) List(_ context.Context) ([]domain.Feature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Feature, 0, len(r.features))
	for name, on := range r.features {
		out = append(out, domain.Feature{Name: name, Enabled: on})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// IsEnabled reports whether name is switched on.
func (r *FeatureRegistry) IsEnabled(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.features[strings.ToLower(name)], nil
}

// Set switches a feature on or off at runtime.
func (r *FeatureRegistry) Set(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.features[strings.ToLower(name)] = enabled
}

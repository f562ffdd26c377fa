package readers

import (
	"fmt"
	"sync"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

// Registry holds one reader per provider. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	readers map[model.ProviderID]ProviderCostReader
}

// NewRegistry creates an empty reader registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: make(map[model.ProviderID]ProviderCostReader),
	}
}

// Register adds a reader. Each provider may be registered once.
func (r *Registry) Register(reader ProviderCostReader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := reader.Provider()
	if _, exists := r.readers[id]; exists {
		return fmt.Errorf("reader for provider %q already registered", id)
	}
	r.readers[id] = reader
	return nil
}

// Get returns the reader for a provider.
func (r *Registry) Get(id model.ProviderID) (ProviderCostReader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reader, ok := r.readers[id]
	if !ok {
		return nil, fmt.Errorf("no reader registered for provider %q", id)
	}
	return reader, nil
}

// ForScope returns the registered readers covered by scope, in the fixed
// provider order. Providers without a reader are skipped.
func (r *Registry) ForScope(scope model.ProviderScope) []ProviderCostReader {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ProviderCostReader
	for _, id := range scope.Providers() {
		if reader, ok := r.readers[id]; ok {
			out = append(out, reader)
		}
	}
	return out
}

// Providers returns the registered provider IDs in the fixed order.
func (r *Registry) Providers() []model.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []model.ProviderID
	for _, id := range model.AllProviders() {
		if _, ok := r.readers[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

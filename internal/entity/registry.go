package entity

import (
	"sort"

	"github.com/finanze/finanze/internal/entity/domain"
	"github.com/google/uuid"
)

// Registry is the read-only catalog of registered connectors, keyed by entity
// id. It holds no session state.
type Registry struct {
	byID map[uuid.UUID]domain.Connector
}

func NewRegistry(connectors []domain.Connector) *Registry {
	byID := make(map[uuid.UUID]domain.Connector, len(connectors))
	for _, c := range connectors {
		byID[c.Entity().ID] = c
	}
	return &Registry{byID: byID}
}

func (r *Registry) Lookup(id uuid.UUID) (domain.Connector, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All lists the registered entities sorted by name.
func (r *Registry) All() []domain.Entity {
	out := make([]domain.Entity, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c.Entity())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package router

import (
	"fmt"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/config"
)

// Route is a concrete (provider, model) pair a request dispatches to.
type Route struct {
	Provider string
	Model    string
}

// Resolver maps an agent to a route, preferring the model mapping's
// primary provider and shifting to fallbacks when a breaker is open.
type Resolver struct {
	models *config.ModelsConfig
	health *HealthTracker
}

func NewResolver(models *config.ModelsConfig, health *HealthTracker) *Resolver {
	return &Resolver{models: models, health: health}
}

// Resolve picks the route for one agent's next decision. Unknown model
// names are configuration errors; every provider being circuit-open is a
// transient routing failure.
func (r *Resolver) Resolve(agentID string) (Route, error) {
	modelName := r.models.ModelFor(agentID)
	mapping, ok := r.models.Models[modelName]
	if !ok {
		return Route{}, fmt.Errorf("unknown model: %s", modelName)
	}

	candidates := append([]config.ProviderRoute{mapping.Primary}, mapping.Fallback...)
	for _, c := range candidates {
		if r.health.IsAvailable(c.Provider) {
			return Route{Provider: c.Provider, Model: c.Model}, nil
		}
	}
	return Route{}, fmt.Errorf("no available provider for model %s", modelName)
}

// Health exposes the tracker so callers can record outcomes against the
// provider they actually used.
func (r *Resolver) Health() *HealthTracker {
	return r.health
}

package connector

import (
	"net/http"
	"sync"
	"time"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/config"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/connector/adapters"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/probe"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/telemetry"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"
)

// Registry holds one connector per configured provider.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]*Connector)}
}

func (r *Registry) Register(name string, c *Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[name] = c
}

func (r *Registry) Get(name string) (*Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, ok
}

// Swap replaces the registered connectors with those from next. It
// mutates the receiver in place so queues that look connectors up by
// provider name see the new set on their next dispatch.
func (r *Registry) Swap(next *Registry) {
	next.mu.RLock()
	connectors := make(map[string]*Connector, len(next.connectors))
	for name, c := range next.connectors {
		connectors[name] = c
	}
	next.mu.RUnlock()

	r.mu.Lock()
	r.connectors = connectors
	r.mu.Unlock()
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	return names
}

// BuildFromConfig builds a connector per configured provider. Each gets
// its own HTTP client sized to the provider's concurrency cap, and its
// own detector chain extended with any configured codes and patterns.
// All connectors share one capability cache and one metrics sink.
func BuildFromConfig(provCfg *config.ProvidersConfig, cache *probe.Cache, v *vocab.Vocabulary, pipeline config.PipelineConfig, metrics *telemetry.Metrics) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		var adapter adapters.ProviderAdapter
		switch cfg.Type {
		case "anthropic":
			adapter = adapters.NewAnthropicAdapter(cfg, client)
		case "ollama":
			adapter = adapters.NewOllamaAdapter(cfg, client)
		default:
			// Unknown types get the OpenAI-compatible wire format.
			adapter = adapters.NewOpenAIAdapter(cfg, client)
		}

		registry.Register(name, New(name, adapter, cache, v, detectorsFor(cfg), pipeline, metrics))
	}
	return registry
}

func detectorsFor(cfg config.ProviderConfig) []RateLimitDetector {
	detectors := DefaultDetectors()
	if len(cfg.RateLimitCodes) > 0 {
		detectors = append(detectors, ErrorCodeDetector(cfg.RateLimitCodes...))
	}
	if len(cfg.RateLimitPatterns) > 0 {
		detectors = append(detectors, MessageDetector(cfg.RateLimitPatterns...))
	}
	return detectors
}

package config

type ModelsConfig struct {
	// Default is the model name used for agents with no explicit
	// assignment.
	Default string `yaml:"default"`
	// Agents pins individual agents to a model name.
	Agents  map[string]string                `yaml:"agents,omitempty"`
	Models  map[string]ModelMapping          `yaml:"models"`
	Pricing map[string]map[string]PriceEntry `yaml:"pricing"`
}

type ModelMapping struct {
	DisplayName string          `yaml:"display_name"`
	Primary     ProviderRoute   `yaml:"primary"`
	Fallback    []ProviderRoute `yaml:"fallback"`
}

type ProviderRoute struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// PriceEntry is USD per million tokens.
type PriceEntry struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// ModelFor returns the model name an agent should use.
func (m *ModelsConfig) ModelFor(agentID string) string {
	if model, ok := m.Agents[agentID]; ok {
		return model
	}
	return m.Default
}

// CostUSD estimates the cost of one exchange from the pricing table.
// Unknown provider/model pairs cost zero.
func (m *ModelsConfig) CostUSD(provider, model string, promptTokens, completionTokens int) float64 {
	entry, ok := m.Pricing[provider][model]
	if !ok {
		return 0
	}
	return float64(promptTokens)/1e6*entry.Input + float64(completionTokens)/1e6*entry.Output
}

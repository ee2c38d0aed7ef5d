package config

import "github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"

// ActionsConfig is the on-disk shape of the action vocabulary. It is the
// one file both the prompt formatter and the response validator are
// derived from.
type ActionsConfig struct {
	Actions  []vocab.ActionDefinition `yaml:"actions"`
	Synonyms map[string]string        `yaml:"synonyms"`
}

// Vocabulary validates and builds the runtime vocabulary.
func (c *ActionsConfig) Vocabulary() (*vocab.Vocabulary, error) {
	return vocab.New(c.Actions, c.Synonyms)
}

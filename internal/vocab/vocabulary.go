// Package vocab holds the closed set of canonical actions an agent may be
// assigned, plus the synonym table used to normalize backend output. It is
// the single source of truth for both prompt construction (what actions
// exist) and response validation (what names are acceptable), so the two
// can never drift apart.
package vocab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
)

// RequiredSkill gates an action behind a minimum skill level.
type RequiredSkill struct {
	Skill string  `json:"skill" yaml:"skill"`
	Level float64 `json:"level" yaml:"level"`
}

// ActionDefinition describes one canonical action. Static configuration,
// loaded once at startup.
type ActionDefinition struct {
	CanonicalName string         `json:"canonical_name" yaml:"name"`
	Description   string         `json:"description" yaml:"description"`
	Category      string         `json:"category" yaml:"category"`
	RequiredSkill *RequiredSkill `json:"required_skill,omitempty" yaml:"required_skill,omitempty"`
}

// Vocabulary is immutable after New.
type Vocabulary struct {
	actions  map[string]ActionDefinition
	order    []string
	synonyms map[string]string

	// Scan tables, sorted longest-first then lexicographic so free-text
	// matching is deterministic and longest-match wins on collisions.
	synonymScan   []string
	canonicalScan []string
}

// New validates the definitions and synonym map and builds the vocabulary.
// Duplicate canonical names, empty names, and synonyms pointing at unknown
// actions are all configuration errors.
func New(defs []ActionDefinition, synonyms map[string]string) (*Vocabulary, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("vocabulary requires at least one action")
	}

	actions := make(map[string]ActionDefinition, len(defs))
	order := make([]string, 0, len(defs))
	for _, def := range defs {
		name := strings.ToLower(strings.TrimSpace(def.CanonicalName))
		if name == "" {
			return nil, fmt.Errorf("action with empty canonical name")
		}
		if _, dup := actions[name]; dup {
			return nil, fmt.Errorf("duplicate canonical action %q", name)
		}
		def.CanonicalName = name
		actions[name] = def
		order = append(order, name)
	}

	syn := make(map[string]string, len(synonyms))
	for alias, canonical := range synonyms {
		alias = strings.ToLower(strings.TrimSpace(alias))
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		if alias == "" {
			return nil, fmt.Errorf("empty synonym for action %q", canonical)
		}
		if _, ok := actions[canonical]; !ok {
			return nil, fmt.Errorf("synonym %q maps to unknown action %q", alias, canonical)
		}
		syn[alias] = canonical
	}

	v := &Vocabulary{
		actions:  actions,
		order:    order,
		synonyms: syn,
	}
	v.synonymScan = scanOrder(keys(syn))
	v.canonicalScan = scanOrder(order)
	return v, nil
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func scanOrder(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// Contains reports whether name is a canonical action.
func (v *Vocabulary) Contains(name string) bool {
	_, ok := v.actions[strings.ToLower(name)]
	return ok
}

// Canonicalize maps a candidate name to its canonical action, applying
// synonym normalization. The second return is false for unknown names.
func (v *Vocabulary) Canonicalize(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := v.actions[name]; ok {
		return name, true
	}
	if canonical, ok := v.synonyms[name]; ok {
		return canonical, true
	}
	return "", false
}

// Get returns the definition for a canonical action name.
func (v *Vocabulary) Get(name string) (ActionDefinition, bool) {
	def, ok := v.actions[strings.ToLower(name)]
	return def, ok
}

// Names returns the canonical action names in declaration order.
func (v *Vocabulary) Names() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Actions returns all definitions in declaration order.
func (v *Vocabulary) Actions() []ActionDefinition {
	out := make([]ActionDefinition, 0, len(v.order))
	for _, name := range v.order {
		out = append(out, v.actions[name])
	}
	return out
}

// ScanText searches lowercased free text for an action reference. Synonyms
// are checked before canonical names because some canonical names are
// substrings of common words and would match prematurely. Within each
// table the longest match wins; ties break lexicographically.
func (v *Vocabulary) ScanText(text string) (string, bool) {
	text = strings.ToLower(text)
	for _, alias := range v.synonymScan {
		if strings.Contains(text, alias) {
			return v.synonyms[alias], true
		}
	}
	for _, name := range v.canonicalScan {
		if strings.Contains(text, name) {
			return name, true
		}
	}
	return "", false
}

// PromptText renders the vocabulary as the action list included in
// outgoing prompts.
func (v *Vocabulary) PromptText() string {
	var b strings.Builder
	for _, name := range v.order {
		def := v.actions[name]
		fmt.Fprintf(&b, "- %s: %s", def.CanonicalName, def.Description)
		if def.Category != "" {
			fmt.Fprintf(&b, " [%s]", def.Category)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// ToolSchema generates the tool definition sent to backends that support
// tool calling. The action enum is derived from the same table the
// resolver validates against.
func (v *Vocabulary) ToolSchema() types.ToolSchema {
	return types.ToolSchema{
		Name:        "decide_action",
		Description: "Choose the agent's next action. Call exactly once per decision.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"thinking": map[string]any{
					"type":        "string",
					"description": "Private reasoning behind the decision.",
				},
				"speaking": map[string]any{
					"type":        "string",
					"description": "What the agent says out loud, if anything.",
				},
				"action": map[string]any{
					"type":        "string",
					"enum":        v.Names(),
					"description": "The action to take.",
				},
			},
			"required": []string{"action"},
		},
	}
}

// Package resolve turns raw backend output into exactly one validated
// canonical action, failing closed when none can be extracted.
package resolve

import (
	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"
)

// RawDecision is what a connector extracts from one backend response
// before validation. StructuredAction is empty when the backend gave no
// explicit action field (no tool call, no JSON action key, no labeled
// action line).
type RawDecision struct {
	Thinking         string
	Speaking         string
	RawText          string
	StructuredAction string
	ActionArgs       map[string]any
}

// Resolver validates raw decisions against one vocabulary.
type Resolver struct {
	vocab *vocab.Vocabulary
}

func New(v *vocab.Vocabulary) *Resolver {
	return &Resolver{vocab: v}
}

// Resolve applies the resolution order:
//
//  1. A structured action is accepted after synonym normalization, or
//     rejected immediately; a backend that emitted a structured action
//     with the wrong name gave a format answer, not an ambiguous one, so
//     there is no fallthrough to text scanning.
//  2. Only when no structured action was present at all, the free text is
//     scanned: synonyms before canonical names, longest match wins.
func (r *Resolver) Resolve(raw RawDecision) (types.ParsedDecision, error) {
	if raw.StructuredAction != "" {
		canonical, ok := r.vocab.Canonicalize(raw.StructuredAction)
		if !ok {
			return types.ParsedDecision{}, &DecisionParseError{
				RawText:      raw.StructuredAction,
				ValidActions: r.vocab.Names(),
			}
		}
		return r.decision(raw, canonical, raw.ActionArgs), nil
	}

	canonical, ok := r.vocab.ScanText(raw.RawText)
	if !ok {
		return types.ParsedDecision{}, &DecisionParseError{
			RawText:      raw.RawText,
			ValidActions: r.vocab.Names(),
		}
	}
	return r.decision(raw, canonical, nil), nil
}

func (r *Resolver) decision(raw RawDecision, canonical string, args map[string]any) types.ParsedDecision {
	speaking := raw.Speaking
	if speaking == "" {
		speaking = raw.RawText
	}
	return types.ParsedDecision{
		Thinking: raw.Thinking,
		Speaking: speaking,
		Action:   types.ActionCall{Type: canonical, Args: args},
	}
}

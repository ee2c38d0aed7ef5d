package resolve

import (
	"fmt"
	"strings"
)

// DecisionParseError means a successful backend response contained no
// recognizable action. It carries the offending text and the full valid
// action list so the caller can decide what to do; the resolver never
// substitutes a default action.
type DecisionParseError struct {
	RawText      string
	ValidActions []string
}

func (e *DecisionParseError) Error() string {
	text := e.RawText
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return fmt.Sprintf("no valid action in response %q (valid actions: %s)",
		text, strings.Join(e.ValidActions, ", "))
}

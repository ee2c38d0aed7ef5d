package vocab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
)

// PolicyInput is the document sent to OPA when gating a resolved action.
type PolicyInput struct {
	Agent  PolicyAgent  `json:"agent"`
	Action PolicyAction `json:"action"`
}

type PolicyAgent struct {
	ID     string             `json:"id"`
	Skills map[string]float64 `json:"skills"`
}

type PolicyAction struct {
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	RequiredSkill *RequiredSkill `json:"required_skill,omitempty"`
}

// PolicyGate evaluates whether an agent may take a resolved action,
// using Rego policies over the vocabulary's required-skill metadata.
// A nil gate, or one with no policies loaded, allows everything.
type PolicyGate struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	timeout  time.Duration
}

// NewPolicyGate creates an unloaded gate. Call Load or LoadFromModules
// before use.
func NewPolicyGate(timeout time.Duration) *PolicyGate {
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	return &PolicyGate{timeout: timeout}
}

// Load compiles all .rego files under dir.
func (g *PolicyGate) Load(dir string) error {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read policy dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read policy %s: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(data)
	}
	if len(modules) == 0 {
		return nil
	}
	return g.LoadFromModules(modules)
}

// LoadFromModules compiles policies from provided module sources.
func (g *PolicyGate) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){
		rego.Query("[data.village.actions.allow, data.village.actions.reason]"),
	}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	g.mu.Lock()
	g.prepared = &prepared
	g.mu.Unlock()
	return nil
}

// Allow reports whether the action is permitted, with a reason on denial.
// Evaluation errors deny (fail closed), matching the validation contract
// of the rest of the pipeline.
func (g *PolicyGate) Allow(ctx context.Context, input PolicyInput) (bool, string) {
	if g == nil {
		return true, ""
	}
	g.mu.RLock()
	prepared := g.prepared
	g.mu.RUnlock()
	if prepared == nil {
		return true, ""
	}

	evalCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Sprintf("policy evaluation error: %v", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result"
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format"
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return allowed, reason
}

package resolve

import (
	"errors"
	"testing"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"
)

func testVocab(t *testing.T, synonyms map[string]string) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.New([]vocab.ActionDefinition{
		{CanonicalName: "gather", Description: "Collect nearby resources"},
		{CanonicalName: "pick", Description: "Pick up an item"},
		{CanonicalName: "rest", Description: "Recover energy"},
	}, synonyms)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestResolve_StructuredActionAccepted(t *testing.T) {
	r := New(testVocab(t, nil))

	dec, err := r.Resolve(RawDecision{
		Thinking:         "wood is low",
		Speaking:         "Off to the forest.",
		RawText:          "Off to the forest.",
		StructuredAction: "gather",
		ActionArgs:       map[string]any{"target": "forest"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action.Type != "gather" {
		t.Errorf("action = %q, want gather", dec.Action.Type)
	}
	if dec.Action.Args["target"] != "forest" {
		t.Errorf("args not carried through: %v", dec.Action.Args)
	}
	if dec.Thinking != "wood is low" || dec.Speaking != "Off to the forest." {
		t.Errorf("thinking/speaking not carried through: %+v", dec)
	}
}

func TestResolve_StructuredSynonymNormalized(t *testing.T) {
	r := New(testVocab(t, map[string]string{"grab": "pick"}))

	dec, err := r.Resolve(RawDecision{RawText: "grab it", StructuredAction: "grab"})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action.Type != "pick" {
		t.Errorf("action = %q, want pick", dec.Action.Type)
	}
}

func TestResolve_UnknownStructuredFailsImmediately(t *testing.T) {
	r := New(testVocab(t, nil))

	// The raw text contains a valid action word, but a structured action
	// was present and wrong, so the resolver must not fall back to text.
	_, err := r.Resolve(RawDecision{
		RawText:          `{"action":"fly_to_moon"} maybe I should gather wood instead`,
		StructuredAction: "fly_to_moon",
	})

	var parseErr *DecisionParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected DecisionParseError, got %v", err)
	}
	if len(parseErr.ValidActions) != 3 {
		t.Errorf("error lists %d actions, want all 3", len(parseErr.ValidActions))
	}
}

func TestResolve_TextScanWhenNoStructuredAction(t *testing.T) {
	r := New(testVocab(t, nil))

	dec, err := r.Resolve(RawDecision{RawText: "I think I'll go gather some wood"})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action.Type != "gather" {
		t.Errorf("action = %q, want gather", dec.Action.Type)
	}
	if dec.Speaking != "I think I'll go gather some wood" {
		t.Errorf("speaking should default to raw text, got %q", dec.Speaking)
	}
}

func TestResolve_SynonymPrecedenceInText(t *testing.T) {
	r := New(testVocab(t, map[string]string{"grab": "pick"}))

	dec, err := r.Resolve(RawDecision{RawText: "I'll grab the axe"})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Action.Type != "pick" {
		t.Errorf("action = %q, want pick", dec.Action.Type)
	}
}

func TestResolve_FailsClosedOnUnknownText(t *testing.T) {
	r := New(testVocab(t, nil))

	_, err := r.Resolve(RawDecision{RawText: "I will dance wildly"})

	var parseErr *DecisionParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected DecisionParseError, got %v", err)
	}
	want := map[string]bool{"gather": true, "pick": true, "rest": true}
	for _, name := range parseErr.ValidActions {
		if !want[name] {
			t.Errorf("unexpected action %q in error", name)
		}
		delete(want, name)
	}
	if len(want) != 0 {
		t.Errorf("error missing actions: %v", want)
	}
}

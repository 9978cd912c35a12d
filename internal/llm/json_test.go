package llm

import (
	"context"
	"errors"
	"testing"
)

// staticCompleter returns a fixed response for every request.
type staticCompleter struct {
	response string
	err      error
}

func (s *staticCompleter) Complete(_ context.Context, _ Request) (string, error) {
	return s.response, s.err
}

func TestCompleteJSONExtractsFromProse(t *testing.T) {
	c := &staticCompleter{response: "Here is the result:\n```json\n{\"name\": \"acme\", \"score\": 42}\n```\nDone."}

	var target struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}
	if err := CompleteJSON(context.Background(), c, Request{Tier: TierFast, Prompt: "x"}, &target); err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}

	if target.Name != "acme" || target.Score != 42 {
		t.Errorf("parsed %+v, want name=acme score=42", target)
	}
}

func TestCompleteJSONArray(t *testing.T) {
	c := &staticCompleter{response: `[1, 2, 3]`}

	var target []int
	if err := CompleteJSON(context.Background(), c, Request{Tier: TierFast, Prompt: "x"}, &target); err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if len(target) != 3 || target[2] != 3 {
		t.Errorf("parsed %v, want [1 2 3]", target)
	}
}

func TestCompleteJSONNoJSON(t *testing.T) {
	c := &staticCompleter{response: "I could not produce an answer."}

	var target map[string]interface{}
	if err := CompleteJSON(context.Background(), c, Request{Tier: TierFast, Prompt: "x"}, &target); err == nil {
		t.Fatal("expected error for response without JSON")
	}
}

func TestCompleteJSONPropagatesCallError(t *testing.T) {
	wantErr := errors.New("model unavailable")
	c := &staticCompleter{err: wantErr}

	var target map[string]interface{}
	err := CompleteJSON(context.Background(), c, Request{Tier: TierFast, Prompt: "x"}, &target)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped call error, got %v", err)
	}
}

func TestCompleteJSONMalformed(t *testing.T) {
	c := &staticCompleter{response: `{"name": "acme", }`}

	var target struct {
		Name string `json:"name"`
	}
	if err := CompleteJSON(context.Background(), c, Request{Tier: TierFast, Prompt: "x"}, &target); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

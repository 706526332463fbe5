package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/skillmeat/skillmeat/internal/types"
)

func testClassifier(t *testing.T) *LLMClassifier {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	l, err := NewLLMClassifier("", "")
	if err != nil {
		t.Fatalf("NewLLMClassifier: %v", err)
	}
	return l
}

func TestNewLLMClassifierRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewLLMClassifier("", "")
	if !errors.Is(err, ErrAPIKeyRequired) {
		t.Fatalf("err = %v, want ErrAPIKeyRequired", err)
	}
}

func TestRenderPrompt(t *testing.T) {
	l := testClassifier(t)
	batch := []*Candidate{
		{Type: types.MemoryDecision, Content: "We decided to keep the cache in memory"},
		{Type: types.MemoryGotcha, Content: "The watcher silently drops events on rename"},
	}
	prompt, err := l.renderPrompt(batch)
	if err != nil {
		t.Fatalf("renderPrompt: %v", err)
	}
	for _, want := range []string{
		"[0] (heuristic: decision)",
		"[1] (heuristic: gotcha)",
		"We decided to keep the cache in memory",
		"The watcher silently drops events on rename",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestApplyVerdicts(t *testing.T) {
	batch := []*Candidate{
		{Type: types.MemoryLearning, Confidence: 0.62},
		{Type: types.MemoryLearning, Confidence: 0.64},
	}
	resp := strings.Join([]string{
		`{"index": 0, "type": "gotcha", "confidence": 0.8}`,
		`{"index": 1, "type": "not-a-type", "confidence": 0.7}`,
		`{"index": 9, "type": "decision", "confidence": 0.7}`,
		`also some stray prose the model added`,
	}, "\n")

	if err := applyVerdicts(batch, resp); err != nil {
		t.Fatalf("applyVerdicts: %v", err)
	}
	if batch[0].Type != types.MemoryGotcha || batch[0].Confidence != 0.8 {
		t.Errorf("verdict not applied: %+v", batch[0])
	}
	if batch[1].Type != types.MemoryLearning || batch[1].Confidence != 0.64 {
		t.Errorf("invalid verdict should leave heuristic values, got %+v", batch[1])
	}
}

func TestApplyVerdictsClampsConfidence(t *testing.T) {
	batch := []*Candidate{{Type: types.MemoryLearning, Confidence: 0.62}}
	if err := applyVerdicts(batch, `{"index": 0, "type": "decision", "confidence": 0.99}`); err != nil {
		t.Fatalf("applyVerdicts: %v", err)
	}
	if batch[0].Confidence != maxConfidence {
		t.Errorf("confidence = %v, want clamped to %v", batch[0].Confidence, maxConfidence)
	}
}

func TestApplyVerdictsRejectsUnusableResponse(t *testing.T) {
	batch := []*Candidate{{Type: types.MemoryLearning, Confidence: 0.62}}
	if err := applyVerdicts(batch, "I could not classify these."); err == nil {
		t.Fatal("expected an error for a response with no usable verdicts")
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestRetryableLLMError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"net timeout", timeoutError{}, true},
		{"rate limited", &anthropic.Error{StatusCode: 429}, true},
		{"server error", &anthropic.Error{StatusCode: 503}, true},
		{"bad request", &anthropic.Error{StatusCode: 400}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableLLMError(tt.err); got != tt.want {
				t.Errorf("retryableLLMError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyKeepsHeuristicsWhenUnavailable(t *testing.T) {
	l := testClassifier(t)
	cands := []*Candidate{
		{Type: types.MemoryLearning, Confidence: 0.62, Content: "Learned that replays are idempotent"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	warnings := l.Classify(ctx, cands)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "heuristic") {
		t.Fatalf("warnings = %v, want one heuristic-fallback notice", warnings)
	}
	if cands[0].Type != types.MemoryLearning || cands[0].Confidence != 0.62 {
		t.Errorf("candidate changed without a model verdict: %+v", cands[0])
	}
}

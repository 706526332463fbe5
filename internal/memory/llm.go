package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skillmeat/skillmeat/internal/debug"
	"github.com/skillmeat/skillmeat/internal/types"
)

const (
	defaultLLMModel = "claude-3-5-haiku-20241022"

	// llmBatchSize keeps one call cheap while amortizing the prompt
	// preamble over enough candidates.
	llmBatchSize = 15

	llmMaxRetries     = 3
	llmInitialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned when LLM classification is enabled but no
// API key is available.
var ErrAPIKeyRequired = errors.New("API key required")

// LLMClassifier refines heuristic classifications with batched calls to
// the Anthropic API. It never fails an extraction: on transport errors the
// affected candidates keep their heuristic type and confidence.
type LLMClassifier struct {
	client         anthropic.Client
	model          anthropic.Model
	template       *template.Template
	maxRetries     int
	initialBackoff time.Duration
}

// NewLLMClassifier builds a classifier. Env var ANTHROPIC_API_KEY takes
// precedence over the explicit key; an empty model selects the default.
func NewLLMClassifier(apiKey, model string) (*LLMClassifier, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or configure memory.llm.api_key", ErrAPIKeyRequired)
	}
	if model == "" {
		model = defaultLLMModel
	}
	tmpl, err := template.New("classify").Parse(classifyPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse classify template: %w", err)
	}
	return &LLMClassifier{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		template:       tmpl,
		maxRetries:     llmMaxRetries,
		initialBackoff: llmInitialBackoff,
	}, nil
}

// Classify reclassifies candidates in place, llmBatchSize at a time. Each
// failed batch keeps its heuristic scores and contributes one warning.
func (l *LLMClassifier) Classify(ctx context.Context, cands []*Candidate) []string {
	var warnings []string
	for start := 0; start < len(cands); start += llmBatchSize {
		if ctx.Err() != nil {
			warnings = append(warnings,
				fmt.Sprintf("llm classification canceled; %d candidates keep heuristic scores", len(cands)-start))
			break
		}
		end := start + llmBatchSize
		if end > len(cands) {
			end = len(cands)
		}
		if err := l.classifyBatch(ctx, cands[start:end]); err != nil {
			warnings = append(warnings,
				fmt.Sprintf("llm classification unavailable for %d candidates, keeping heuristic scores: %v", end-start, err))
		}
	}
	return warnings
}

func (l *LLMClassifier) classifyBatch(ctx context.Context, batch []*Candidate) error {
	prompt, err := l.renderPrompt(batch)
	if err != nil {
		return fmt.Errorf("render classify prompt: %w", err)
	}
	resp, err := l.callWithRetry(ctx, prompt)
	if err != nil {
		return err
	}
	return applyVerdicts(batch, resp)
}

func (l *LLMClassifier) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     l.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := l.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := l.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("unexpected response format: no content blocks")
			}
			content := message.Content[0]
			if content.Type != "text" {
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return content.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !retryableLLMError(err) {
			return "", err
		}
		debug.Logf("memory: llm call attempt %d failed: %v", attempt+1, err)
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", l.maxRetries+1, lastErr)
}

// retryableLLMError treats rate limits, server errors, and network
// timeouts as transient. Context cancellation and client errors are final.
func retryableLLMError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

type llmVerdict struct {
	Index      int     `json:"index"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// applyVerdicts folds model output back onto the batch. Unparseable lines,
// out-of-range indexes, and invalid types are ignored so a partially valid
// response still improves what it can; a response with nothing usable is
// an error so the caller records the fallback.
func applyVerdicts(batch []*Candidate, resp string) error {
	applied := 0
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var v llmVerdict
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		if v.Index < 0 || v.Index >= len(batch) {
			continue
		}
		typ := types.MemoryType(v.Type)
		if !typ.IsValid() || v.Confidence <= 0 || v.Confidence > 1 {
			continue
		}
		c := batch[v.Index]
		c.Type = typ
		c.Confidence = clampConfidence(v.Confidence)
		applied++
	}
	if applied == 0 {
		return fmt.Errorf("no usable verdicts in model response")
	}
	return nil
}

type classifyPromptItem struct {
	Index   int
	Type    string
	Content string
}

func (l *LLMClassifier) renderPrompt(batch []*Candidate) (string, error) {
	items := make([]classifyPromptItem, len(batch))
	for i, c := range batch {
		items[i] = classifyPromptItem{Index: i, Type: string(c.Type), Content: c.Content}
	}
	var buf strings.Builder
	if err := l.template.Execute(&buf, struct{ Candidates []classifyPromptItem }{items}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const classifyPromptTemplate = `You are classifying engineering memories extracted from an agent session. For each candidate assign a type from exactly this set: decision, constraint, gotcha, style_rule, learning. Also assign a confidence between 0.55 and 0.92 reflecting how specific and actionable the memory is.

Candidates:
{{range .Candidates}}
[{{.Index}}] (heuristic: {{.Type}})
{{.Content}}
{{end}}

Respond with one JSON object per line, nothing else, exactly one line per candidate:
{"index": <n>, "type": "<type>", "confidence": <0.55-0.92>}`

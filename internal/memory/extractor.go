// Package memory distills session transcripts into reviewable memory
// candidates. The pipeline parses JSONL envelopes (falling back to plain
// text), keeps only conversational content, classifies each segment with
// cue tables, scores confidence from specificity and uncertainty signals,
// and collapses near-duplicates by TF-IDF cosine similarity. Candidates
// always enter the store with status=candidate; promotion is a separate,
// reviewed step.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/skillmeat/skillmeat/internal/storage"
	"github.com/skillmeat/skillmeat/internal/types"
)

const (
	defaultDedupThreshold = 0.85
	maxDedupWorkers       = 4

	// provenanceSource marks items that came out of transcript extraction,
	// as opposed to memories a user wrote by hand.
	provenanceSource = "memory_extraction"
)

// Candidate is one extracted memory before it is stored.
type Candidate struct {
	Type        types.MemoryType `json:"type"`
	Content     string           `json:"content"`
	Confidence  float64          `json:"confidence"`
	Anchors     []string         `json:"anchors,omitempty"`
	ContentHash string           `json:"content_hash"`
	Provenance  types.Provenance `json:"provenance"`
}

// Options tunes extraction. Zero values select the defaults.
type Options struct {
	// DedupThreshold is the TF-IDF cosine at or above which two candidates
	// count as the same learning. Default 0.85.
	DedupThreshold float64
	// Workers bounds the dedup similarity pool. Defaults to NumCPU, at
	// most 4.
	Workers int
	// LLM switches on batched semantic classification. Nil keeps the
	// heuristic scorer; transport failures fall back to it anyway.
	LLM *LLMClassifier
}

// Result is the outcome of one extraction run.
type Result struct {
	Candidates []*Candidate `json:"candidates"`
	Warnings   []string     `json:"warnings,omitempty"`
	// PlainText reports that the input was not JSONL and was segmented as
	// free-form text.
	PlainText bool `json:"plain_text,omitempty"`
	// Stored and Duplicates are only set by Apply: items written, and
	// exact duplicates the store already had.
	Stored     int `json:"stored,omitempty"`
	Duplicates int `json:"duplicates,omitempty"`
}

// Extractor turns transcripts into stored memory items.
type Extractor struct {
	store storage.Storage
	opts  Options
}

func NewExtractor(store storage.Storage, opts Options) *Extractor {
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = defaultDedupThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = min(runtime.NumCPU(), maxDedupWorkers)
	}
	return &Extractor{store: store, opts: opts}
}

// Extract runs the pipeline without touching the store. The same input
// always yields the same candidates in the same order.
func (e *Extractor) Extract(ctx context.Context, input []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &Result{}

	data, dropped := truncateOldest(input, maxCorpusBytes)
	if dropped > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("transcript exceeds %d KB; dropped %d oldest lines", maxCorpusBytes/1024, dropped))
	}

	var segs []segment
	lines, malformed := parseLines(data)
	if len(lines) == 0 {
		res.PlainText = true
		if len(strings.TrimSpace(string(data))) > 0 {
			res.Warnings = append(res.Warnings, "input is not JSONL; treated as plain text")
		}
		segs = plainTextSegments(data)
	} else {
		if malformed > 0 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("skipped %d malformed transcript lines", malformed))
		}
		var filterWarnings []string
		segs, filterWarnings = collectSegments(lines)
		res.Warnings = append(res.Warnings, filterWarnings...)
	}

	cands := make([]*Candidate, 0, len(segs))
	for _, seg := range segs {
		text := truncateContent(seg.Text, types.MaxMemoryContentLen)
		typ, hits := classify(text)
		cands = append(cands, &Candidate{
			Type:        typ,
			Content:     text,
			Confidence:  scoreConfidence(text, typ, hits),
			Anchors:     extractAnchors(text),
			ContentHash: hashContent(text),
			Provenance: types.Provenance{
				SourceType:  provenanceSource,
				SessionID:   seg.SessionID,
				MessageUUID: seg.UUID,
				GitBranch:   seg.GitBranch,
				Timestamp:   seg.Timestamp,
			},
		})
	}

	if e.opts.LLM != nil && len(cands) > 0 {
		res.Warnings = append(res.Warnings, e.opts.LLM.Classify(ctx, cands)...)
	}

	res.Candidates = dedupe(cands, e.opts.DedupThreshold, e.opts.Workers)
	return res, nil
}

// Apply extracts candidates and stores each one as a candidate-status
// memory item for the project. Exact duplicates already in the store are
// counted and skipped rather than failing the run.
func (e *Extractor) Apply(ctx context.Context, projectID string, input []byte) (*Result, error) {
	if projectID == "" {
		return nil, &types.ValidationError{Field: "project_id", Reason: "project is required"}
	}
	if _, err := e.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	res, err := e.Extract(ctx, input)
	if err != nil {
		return nil, err
	}

	for _, c := range res.Candidates {
		item := &types.MemoryItem{
			ProjectID:  projectID,
			Type:       c.Type,
			Content:    c.Content,
			Confidence: c.Confidence,
			Status:     types.MemoryCandidate,
			Provenance: c.Provenance,
			Anchors:    c.Anchors,
		}
		err := e.store.CreateMemoryItem(ctx, item)
		var conflict *types.ConflictError
		if errors.As(err, &conflict) {
			res.Duplicates++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("store memory candidate: %w", err)
		}
		res.Stored++
	}
	return res, nil
}

// truncateContent cuts text to at most max bytes without splitting a rune.
func truncateContent(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return strings.TrimSpace(text[:cut])
}

// hashContent is the exact-duplicate key for candidate content: SHA-256
// over the whitespace-trimmed text, matching the key the store enforces
// uniqueness on.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

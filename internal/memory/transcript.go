package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// maxCorpusBytes caps how much transcript a single extraction reads.
	// Oversized inputs lose their oldest lines first.
	maxCorpusBytes = 500 << 10

	// minSegmentLen is the shortest text worth keeping as a candidate.
	// Anything under it is an acknowledgement, not a learning.
	minSegmentLen = 24
)

// droppedTypes are envelope types that never carry conversational text.
// They are filtered without a warning.
var droppedTypes = map[string]bool{
	"progress":              true,
	"file-history-snapshot": true,
	"system":                true,
}

// transcriptLine is one JSONL envelope of a session transcript.
type transcriptLine struct {
	SessionID     string            `json:"sessionId"`
	Timestamp     string            `json:"timestamp"`
	GitBranch     string            `json:"gitBranch"`
	Type          string            `json:"type"`
	IsMeta        bool              `json:"isMeta"`
	UUID          string            `json:"uuid"`
	Message       transcriptMessage `json:"message"`
	ToolUseResult json.RawMessage   `json:"toolUseResult"`
}

// transcriptMessage defers content decoding: the field is either a bare
// string or a list of typed blocks depending on the producing client.
type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// segment is one retained text block with the envelope fields that become
// its provenance.
type segment struct {
	Text      string
	SessionID string
	UUID      string
	GitBranch string
	Timestamp time.Time
}

// truncateOldest drops whole lines from the front of data until it fits
// within limit. Transcripts append at the bottom, so the newest suffix
// survives. A single line larger than limit is kept whole rather than cut
// mid-record.
func truncateOldest(data []byte, limit int) ([]byte, int) {
	if len(data) <= limit {
		return data, 0
	}
	dropped := 0
	for len(data) > limit {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			break
		}
		data = data[nl+1:]
		dropped++
	}
	return data, dropped
}

// parseLines decodes JSONL envelopes, counting lines that do not parse.
// Blank lines are not an error.
func parseLines(data []byte) ([]transcriptLine, int) {
	var lines []transcriptLine
	malformed := 0
	for _, raw := range bytes.Split(data, []byte("\n")) {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var line transcriptLine
		if err := json.Unmarshal(raw, &line); err != nil {
			malformed++
			continue
		}
		lines = append(lines, line)
	}
	return lines, malformed
}

// collectSegments keeps the conversational text of a parsed transcript:
// user and assistant messages minus meta lines, tool results, and tool-use
// blocks. Unknown envelope types are reported so new transcript producers
// surface instead of vanishing silently.
func collectSegments(lines []transcriptLine) ([]segment, []string) {
	var segs []segment
	unknown := make(map[string]int)
	for _, line := range lines {
		typ := line.Type
		if typ == "" {
			typ = line.Message.Role
		}
		if droppedTypes[typ] {
			continue
		}
		if typ != "user" && typ != "assistant" {
			unknown[typ]++
			continue
		}
		if typ == "user" && (line.IsMeta || carriesToolResult(line)) {
			continue
		}
		ts := parseTimestamp(line.Timestamp)
		for _, text := range textBlocks(line.Message.Content) {
			text = strings.TrimSpace(text)
			if len(text) < minSegmentLen {
				continue
			}
			segs = append(segs, segment{
				Text:      text,
				SessionID: line.SessionID,
				UUID:      line.UUID,
				GitBranch: line.GitBranch,
				Timestamp: ts,
			})
		}
	}

	var warnings []string
	kinds := make([]string, 0, len(unknown))
	for k := range unknown {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		warnings = append(warnings, fmt.Sprintf("dropped %d messages with unknown type %q", unknown[k], k))
	}
	return segs, warnings
}

// textBlocks returns the prose parts of a message body. tool_use and
// tool_result blocks carry machine payloads and are never candidate
// material.
func textBlocks(content json.RawMessage) []string {
	if len(content) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var blocks []contentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return nil
	}
	var out []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			out = append(out, b.Text)
		}
	}
	return out
}

// carriesToolResult reports whether a user line is the echo of a tool
// invocation rather than something the user typed.
func carriesToolResult(line transcriptLine) bool {
	return len(line.ToolUseResult) > 0 && !bytes.Equal(line.ToolUseResult, []byte("null"))
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// plainTextSegments splits free-form input on blank lines. This is the
// fallback for notes and logs that were never JSONL; such segments carry no
// session provenance.
func plainTextSegments(data []byte) []segment {
	var segs []segment
	for _, para := range strings.Split(string(data), "\n\n") {
		text := strings.TrimSpace(para)
		if len(text) < minSegmentLen {
			continue
		}
		segs = append(segs, segment{Text: text})
	}
	return segs
}

package memory

import (
	"regexp"
	"sort"
	"strings"

	"github.com/skillmeat/skillmeat/internal/types"
)

// Confidence band for heuristic scoring. Scores are clamped so a candidate
// is never presented as certain and never so low that review is pointless.
const (
	minConfidence = 0.55
	maxConfidence = 0.92
)

// cueTable maps memory types to the phrases that signal them, in
// precedence order: when two types score the same cue count, the earlier
// row wins. Learning is the catch-all for text that matches nothing.
var cueTable = []struct {
	typ  types.MemoryType
	cues []*regexp.Regexp
}{
	{types.MemoryDecision, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(decided|decision|deciding)\b`),
		regexp.MustCompile(`(?i)\b(we|i) (chose|picked|went with|settled on|opted)\b`),
		regexp.MustCompile(`(?i)\b(instead of|rather than)\b`),
		regexp.MustCompile(`(?i)\b(going with|will use|switched to)\b`),
	}},
	{types.MemoryConstraint, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(must(?: not|n't)?|never|always|cannot|can't|forbidden|disallowed)\b`),
		regexp.MustCompile(`(?i)\b(required?|has to|have to|needs? to)\b`),
		regexp.MustCompile(`(?i)\b(do not|don't) (use|call|rely|commit|push|edit)\b`),
		regexp.MustCompile(`(?i)\bonly (works|valid|allowed|supported)\b`),
	}},
	{types.MemoryGotcha, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(gotcha|watch out|beware|caveat|footgun|pitfall)\b`),
		regexp.MustCompile(`(?i)\b(turns out|surprisingly|silently|unexpectedly)\b`),
		regexp.MustCompile(`(?i)\b(fails?|breaks?|panics?|hangs?|deadlocks?) (when|if|unless|on)\b`),
		regexp.MustCompile(`(?i)\b(race condition|off.by.one|edge case|corner case)\b`),
	}},
	{types.MemoryStyleRule, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(style|conventions?|naming|format(ting)?|lint(er|ing)?)\b`),
		regexp.MustCompile(`(?i)\bprefer(red|s)?\b`),
		regexp.MustCompile(`(?i)\b(camelCase|snake_case|kebab-case|PascalCase)\b`),
		regexp.MustCompile(`(?i)\b(idiomatic|readab(le|ility)|consistency)\b`),
	}},
	{types.MemoryLearning, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(learned|learning|realized|discovered|noticed)\b`),
		regexp.MustCompile(`(?i)\bfound (out|that)\b`),
		regexp.MustCompile(`(?i)\b(til|key insight|takeaway|worth noting|note that)\b`),
	}},
}

// typePriors are the base confidence per classification. Explicit
// constraints and decisions are usually deliberate statements; the
// catch-all learning type starts lowest.
var typePriors = map[types.MemoryType]float64{
	types.MemoryDecision:   0.72,
	types.MemoryConstraint: 0.74,
	types.MemoryGotcha:     0.70,
	types.MemoryStyleRule:  0.68,
	types.MemoryLearning:   0.62,
}

// Specificity and uncertainty signals for confidence scoring.
var (
	pathPattern   = regexp.MustCompile(`\b[\w.~-]*/[\w./-]+|\b[\w-]+\.(go|md|ts|tsx|js|jsx|py|rs|sql|ya?ml|toml|json|sh)\b`)
	identPattern  = regexp.MustCompile(`\b[a-z]+[A-Z]\w*\b|\b\w+_\w+\b|\b\w+\(\)`)
	numberPattern = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	commitPattern = regexp.MustCompile(`\b[0-9a-f]{7,40}\b`)
	hedgePattern  = regexp.MustCompile(`(?i)\b(maybe|perhaps|possibly|probably|not sure|i think|might be|i guess)\b`)
	vaguePattern  = regexp.MustCompile(`(?i)\b(something|somehow|some stuff|in general|as usual|and so on|whatever)\b`)
)

// anchorPattern matches the file paths a memory talks about. They become
// Anchors so context modules can select memories by the files they touch.
var anchorPattern = regexp.MustCompile(`\b[\w./-]+\.(go|md|ts|tsx|js|jsx|py|rs|sql|ya?ml|toml|json|sh)\b`)

// classify assigns a memory type by counting cue matches per type. The
// highest count wins; ties resolve to the earlier cueTable row so reruns
// agree. Text matching no cue at all is a learning.
func classify(text string) (types.MemoryType, int) {
	best := types.MemoryLearning
	bestHits := 0
	for _, row := range cueTable {
		hits := 0
		for _, cue := range row.cues {
			if cue.MatchString(text) {
				hits++
			}
		}
		if hits > bestHits {
			best = row.typ
			bestHits = hits
		}
	}
	return best, bestHits
}

// scoreConfidence combines the type prior with specificity signals (file
// paths, identifiers, numeric constants, commit hashes raise it) and
// uncertainty signals (question marks, hedges, vague phrasing lower it),
// clamped to the heuristic band.
func scoreConfidence(text string, typ types.MemoryType, cueHits int) float64 {
	score := typePriors[typ]
	if cueHits > 1 {
		extra := cueHits - 1
		if extra > 3 {
			extra = 3
		}
		score += 0.02 * float64(extra)
	}

	if pathPattern.MatchString(text) {
		score += 0.05
	}
	if identPattern.MatchString(text) {
		score += 0.04
	}
	if numberPattern.MatchString(text) {
		score += 0.02
	}
	if hasCommitHash(text) {
		score += 0.03
	}

	if q := strings.Count(text, "?"); q > 0 {
		if q > 2 {
			q = 2
		}
		score -= 0.04 * float64(q)
	}
	if hedgePattern.MatchString(text) {
		score -= 0.05
	}
	if vaguePattern.MatchString(text) {
		score -= 0.04
	}
	if len(text) < 48 {
		score -= 0.02
	}

	return clampConfidence(score)
}

func clampConfidence(v float64) float64 {
	if v < minConfidence {
		return minConfidence
	}
	if v > maxConfidence {
		return maxConfidence
	}
	return v
}

// hasCommitHash reports whether text contains a commit-ish hex run. The
// regexp alone would match long decimal numbers, so at least one hex
// letter is required.
func hasCommitHash(text string) bool {
	for _, m := range commitPattern.FindAllString(text, -1) {
		if strings.ContainsAny(m, "abcdef") {
			return true
		}
	}
	return false
}

// extractAnchors pulls the distinct file paths out of candidate text,
// sorted for stable output.
func extractAnchors(text string) []string {
	matches := anchorPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

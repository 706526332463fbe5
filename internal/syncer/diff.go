package syncer

import (
	"bytes"
	"strings"
)

// ConflictClass grades how two edit sets to the same file interact.
type ConflictClass string

const (
	// ConflictNone: independent edits, auto-mergeable.
	ConflictNone ConflictClass = "none"
	// ConflictSoft: non-overlapping edits within two lines of each other.
	// Auto-merge is allowed but flagged, since adjacent edits can interfere
	// semantically.
	ConflictSoft ConflictClass = "soft"
	// ConflictHard: both sides modified the same line range, or no common
	// ancestor is available to rebase against.
	ConflictHard ConflictClass = "hard"
)

// softDistance is the gap, in base lines, under which non-overlapping hunks
// are still flagged as a soft conflict.
const softDistance = 2

// maxDiffCells caps the LCS table size. Beyond it the file is treated as one
// whole-file hunk, which degrades both-edited files to a hard conflict
// instead of exhausting memory.
const maxDiffCells = 1 << 22

// hunk is one contiguous edit against the base: base lines
// [BaseStart, BaseEnd) are replaced by Lines. Pure insertions have
// BaseEnd == BaseStart.
type hunk struct {
	BaseStart int
	BaseEnd   int
	Lines     []string
}

// span returns the hunk's occupied base range, widening zero-width
// insertions to cover their anchor line so adjacency math stays uniform.
func (h hunk) span() (start, end int) {
	start, end = h.BaseStart, h.BaseEnd
	if end == start {
		end = start + 1
	}
	return start, end
}

func splitLines(data []byte) []string {
	return strings.Split(string(data), "\n")
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\n"))
}

// diffHunks computes the edit script from base to other as a sorted hunk
// list, using a standard LCS walk.
func diffHunks(base, other []string) []hunk {
	n, m := len(base), len(other)
	if n*m > maxDiffCells {
		return []hunk{{BaseStart: 0, BaseEnd: n, Lines: other}}
	}

	// lcs[i][j] = length of the LCS of base[i:] and other[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if base[i] == other[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var hunks []hunk
	var cur *hunk
	flush := func() {
		if cur != nil {
			hunks = append(hunks, *cur)
			cur = nil
		}
	}
	open := func(i int) *hunk {
		if cur == nil {
			cur = &hunk{BaseStart: i, BaseEnd: i}
		}
		return cur
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case base[i] == other[j]:
			flush()
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			// base[i] deleted
			h := open(i)
			h.BaseEnd = i + 1
			i++
		default:
			// other[j] inserted
			h := open(i)
			h.Lines = append(h.Lines, other[j])
			j++
		}
	}
	for i < n {
		h := open(i)
		h.BaseEnd = i + 1
		i++
	}
	for j < m {
		h := open(i)
		h.Lines = append(h.Lines, other[j])
		j++
	}
	flush()
	return hunks
}

// classifyHunks grades the interaction between two hunk sets expressed in the
// same base coordinates.
func classifyHunks(a, b []hunk) ConflictClass {
	worst := ConflictNone
	for _, ha := range a {
		as, ae := ha.span()
		for _, hb := range b {
			bs, be := hb.span()
			if as < be && bs < ae {
				return ConflictHard
			}
			gap := bs - ae
			if gap < 0 {
				gap = as - be
			}
			if gap <= softDistance {
				worst = ConflictSoft
			}
		}
	}
	return worst
}

// mergeHunks applies two non-overlapping hunk sets to the base. The caller
// must have classified the sets as mergeable; overlap here reports false.
func mergeHunks(base []string, a, b []hunk) ([]string, bool) {
	all := make([]hunk, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && less(all[j], all[j-1]); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}

	var out []string
	pos := 0
	for _, h := range all {
		if h.BaseStart < pos {
			return nil, false
		}
		out = append(out, base[pos:h.BaseStart]...)
		out = append(out, h.Lines...)
		pos = h.BaseEnd
	}
	out = append(out, base[pos:]...)
	return out, true
}

func less(a, b hunk) bool {
	if a.BaseStart != b.BaseStart {
		return a.BaseStart < b.BaseStart
	}
	return a.BaseEnd < b.BaseEnd
}

// fileMerge is the three-way outcome for one path.
type fileMerge struct {
	Class  ConflictClass
	Merged []byte // auto-merge result; nil means the path is deleted
	Auto   bool   // Merged is valid (set for every non-hard outcome)
}

// threeWay rebases the collection and project edits of one file onto their
// common ancestor. A nil leg means the file is absent on that side. haveBase
// distinguishes "file absent at the ancestor" (a valid base) from "no
// ancestor is known at all", which forces a hard conflict whenever the two
// sides disagree.
func threeWay(base []byte, haveBase bool, collection, project []byte) fileMerge {
	if bytes.Equal(collection, project) {
		return fileMerge{Class: ConflictNone, Merged: collection, Auto: true}
	}
	if !haveBase {
		return fileMerge{Class: ConflictHard}
	}

	changedC := !bytes.Equal(base, collection)
	changedP := !bytes.Equal(base, project)
	switch {
	case changedC && !changedP:
		return fileMerge{Class: ConflictNone, Merged: collection, Auto: true}
	case !changedC && changedP:
		return fileMerge{Class: ConflictNone, Merged: project, Auto: true}
	}

	// Both sides changed. Deletions cannot rebase against edits.
	if collection == nil || project == nil {
		return fileMerge{Class: ConflictHard}
	}

	baseLines := splitLines(base)
	ch := diffHunks(baseLines, splitLines(collection))
	ph := diffHunks(baseLines, splitLines(project))
	class := classifyHunks(ch, ph)
	if class == ConflictHard {
		return fileMerge{Class: ConflictHard}
	}
	merged, ok := mergeHunks(baseLines, ch, ph)
	if !ok {
		return fileMerge{Class: ConflictHard}
	}
	return fileMerge{Class: class, Merged: joinLines(merged), Auto: true}
}

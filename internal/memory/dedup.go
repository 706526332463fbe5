package memory

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// vector is a sparse TF-IDF vector with terms sorted lexicographically.
// Sorted order matters: dot products and norms accumulate floats in a fixed
// order, so similarity scores are bit-stable across runs.
type vector []termWeight

type termWeight struct {
	term   string
	weight float64
}

// tfidfVectors builds one weighted term vector per text. Terms shared by
// most candidates carry little weight, so near-duplicate detection keys on
// the distinctive words.
func tfidfVectors(texts []string) []vector {
	n := len(texts)
	df := make(map[string]int)
	tokenized := make([][]string, n)
	for i, t := range texts {
		tokenized[i] = tokenize(t)
		seen := make(map[string]bool)
		for _, tok := range tokenized[i] {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	vecs := make([]vector, n)
	for i, toks := range tokenized {
		tf := make(map[string]float64, len(toks))
		for _, tok := range toks {
			tf[tok]++
		}
		terms := make([]string, 0, len(tf))
		for tok := range tf {
			terms = append(terms, tok)
		}
		sort.Strings(terms)
		vec := make(vector, 0, len(terms))
		for _, tok := range terms {
			idf := math.Log(float64(n)/float64(df[tok])) + 1
			vec = append(vec, termWeight{term: tok, weight: tf[tok] * idf})
		}
		vecs[i] = vec
	}
	return vecs
}

// cosine computes similarity by merging the two sorted term lists.
func cosine(a, b vector) float64 {
	var dot float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].term < b[j].term:
			i++
		case a[i].term > b[j].term:
			j++
		default:
			dot += a[i].weight * b[j].weight
			i++
			j++
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (norm(a) * norm(b))
}

func norm(v vector) float64 {
	var sum float64
	for _, tw := range v {
		sum += tw.weight * tw.weight
	}
	return math.Sqrt(sum)
}

// dedupe collapses near-duplicate candidates. Pairwise cosine similarity at
// or above threshold links candidates into groups; each group keeps its
// highest-confidence exemplar, ties broken by content hash so reruns pick
// the same survivor. Pair scoring fans out over a bounded worker pool; the
// final grouping is independent of the order edges arrive in. Survivors
// keep their original order.
func dedupe(cands []*Candidate, threshold float64, workers int) []*Candidate {
	n := len(cands)
	if n < 2 {
		return cands
	}
	if workers < 1 {
		workers = 1
	}
	texts := make([]string, n)
	for i, c := range cands {
		texts[i] = c.Content
	}
	vecs := tfidfVectors(texts)

	type edge struct{ a, b int }
	workCh := make(chan int, n)
	edgeCh := make(chan edge, n)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				for j := i + 1; j < n; j++ {
					if cosine(vecs[i], vecs[j]) >= threshold {
						edgeCh <- edge{a: i, b: j}
					}
				}
			}
		}()
	}
	go func() {
		for i := 0; i < n-1; i++ {
			workCh <- i
		}
		close(workCh)
		wg.Wait()
		close(edgeCh)
	}()

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for e := range edgeCh {
		ra, rb := find(e.a), find(e.b)
		if ra == rb {
			continue
		}
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	exemplar := make(map[int]int, n)
	for i := range cands {
		root := find(i)
		cur, ok := exemplar[root]
		if !ok || betterExemplar(cands[i], cands[cur]) {
			exemplar[root] = i
		}
	}
	keep := make(map[int]bool, len(exemplar))
	for _, i := range exemplar {
		keep[i] = true
	}

	out := make([]*Candidate, 0, len(exemplar))
	for i, c := range cands {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out
}

func betterExemplar(a, b *Candidate) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.ContentHash < b.ContentHash
}

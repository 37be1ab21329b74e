package scripture

import (
	"sort"
	"strings"
)

// stopWords are common tokens excluded from keyword extraction. Tokens of
// length <= 3 are dropped before this set is consulted, so only longer
// function words need to appear here.
var stopWords = map[string]struct{}{
	"about":   {},
	"after":   {},
	"again":   {},
	"because": {},
	"been":    {},
	"being":   {},
	"could":   {},
	"doing":   {},
	"don't":   {},
	"every":   {},
	"feel":    {},
	"feeling": {},
	"have":    {},
	"just":    {},
	"like":    {},
	"really":  {},
	"should":  {},
	"something": {},
	"that":    {},
	"their":   {},
	"them":    {},
	"there":   {},
	"they":    {},
	"this":    {},
	"very":    {},
	"want":    {},
	"what":    {},
	"when":    {},
	"where":   {},
	"which":   {},
	"will":    {},
	"with":    {},
	"would":   {},
	"your":    {},
}

// Retriever ranks corpus passages against a query by keyword overlap.
// This is a deliberately simple, deterministic baseline; a semantic
// replacement must preserve the contract (ranked k passages, deterministic
// head-of-corpus fallback).
type Retriever struct {
	corpus *Corpus
}

// NewRetriever wraps a loaded corpus.
func NewRetriever(corpus *Corpus) *Retriever {
	return &Retriever{corpus: corpus}
}

// extractKeywords tokenizes on whitespace only, lowercases, and drops short
// tokens and stop words. Punctuation stays attached to its token; matching
// downstream is plain substring containment. Duplicates collapse: a repeated
// query word must not double-score a passage.
func extractKeywords(query string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(query)) {
		if len(token) <= 3 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		keywords[token] = struct{}{}
	}
	return keywords
}

// Rank returns up to k passages ordered by descending keyword overlap.
// A keyword contributes at most one point per passage regardless of how
// often it occurs. Ties keep original corpus order (stable sort). If no
// passage scores above zero, the first k corpus entries are returned
// unchanged so a response is never scripture-free.
func (r *Retriever) Rank(query string, k int) []Passage {
	if k <= 0 || len(r.corpus.Passages) == 0 {
		return nil
	}

	keywords := extractKeywords(query)

	type scored struct {
		passage Passage
		score   int
	}
	var matches []scored
	for _, p := range r.corpus.Passages {
		lowered := strings.ToLower(p.Text)
		score := 0
		for kw := range keywords {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{passage: p, score: score})
		}
	}

	// Deterministic fallback: head of corpus, original order.
	if len(matches) == 0 {
		n := k
		if n > len(r.corpus.Passages) {
			n = len(r.corpus.Passages)
		}
		out := make([]Passage, n)
		copy(out, r.corpus.Passages[:n])
		return out
	}

	// matches was built in corpus order, so a stable sort preserves that
	// order among equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	out := make([]Passage, len(matches))
	for i, m := range matches {
		out[i] = m.passage
	}
	return out
}

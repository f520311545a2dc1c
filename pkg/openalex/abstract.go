package openalex

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Sternrassler/openalex-client/pkg/pagination"
)

// ReconstructAbstract rebuilds the abstract text of a work from its
// abstract_inverted_index. It reports false when the record has no index.
func ReconstructAbstract(record pagination.Record) (string, bool) {
	index, ok := record["abstract_inverted_index"].(map[string]any)
	if !ok || index == nil {
		return "", false
	}

	type token struct {
		word string
		pos  int
	}
	var tokens []token
	for word, raw := range index {
		positions, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, p := range positions {
			if pos, ok := p.(float64); ok {
				tokens = append(tokens, token{word: word, pos: int(pos)})
			}
		}
	}
	slices.SortFunc(tokens, func(a, b token) int {
		return cmp.Or(cmp.Compare(a.pos, b.pos), strings.Compare(a.word, b.word))
	})

	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.word
	}
	return strings.Join(words, " "), true
}

func addAbstracts(records []pagination.Record) {
	for _, r := range records {
		if _, exists := r["abstract"]; exists {
			continue
		}
		if text, ok := ReconstructAbstract(r); ok {
			r["abstract"] = text
		}
	}
}

package reranker

import (
	"context"
	"strings"
	"unicode"
)

// LexicalScorer scores texts by the fraction of distinct query terms they
// contain. It needs no model and is used offline and in tests.
type LexicalScorer struct{}

// NewLexicalScorer creates a term-overlap scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score returns one overlap ratio in [0, 1] per text.
func (LexicalScorer) Score(ctx context.Context, query string, texts []string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTerms := uniqueTerms(query)
	scores := make([]float32, len(texts))
	if len(queryTerms) == 0 {
		return scores, nil
	}
	for i, text := range texts {
		docTerms := uniqueTerms(text)
		matched := 0
		for term := range queryTerms {
			if docTerms[term] {
				matched++
			}
		}
		scores[i] = float32(matched) / float32(len(queryTerms))
	}
	return scores, nil
}

// uniqueTerms lowercases text and keeps tokens longer than two runes that are
// not stopwords.
func uniqueTerms(text string) map[string]bool {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if len([]rune(t)) > 2 && !stopwords[t] {
			terms[t] = true
		}
	}
	return terms
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true, "from": true,
	"was": true, "are": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "you": true, "she": true, "they": true, "what": true,
	"which": true, "who": true, "when": true, "where": true, "why": true, "how": true,
	"used": true, "use": true, "into": true, "its": true, "their": true, "there": true,
	"bir": true, "ile": true, "için": true, "olarak": true, "nedir": true,
}

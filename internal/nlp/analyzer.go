package nlp

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/analysis/lang/en"
	"github.com/blevesearch/bleve/analysis/token/lowercase"
	"github.com/blevesearch/bleve/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/mapping"
)

// analyzerName is bleve's "en" chain without the stemmer, so terms stay
// readable words.
const analyzerName = "content_en"

// Analyzer reduces English text to its content words: unicode tokenisation,
// possessive removal, lower-casing and stop-word removal.
type Analyzer struct {
	mapping *mapping.IndexMappingImpl
}

func NewAnalyzer() (*Analyzer, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			en.PossessiveName,
			lowercase.Name,
			en.StopName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer %s: %w", analyzerName, err)
	}
	return &Analyzer{mapping: m}, nil
}

func (a *Analyzer) Lemmatize(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens, err := a.mapping.AnalyzeText(analyzerName, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze text: %w", err)
	}
	lemmas := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if utf8.RuneCount(tok.Term) > 1 {
			lemmas = append(lemmas, string(tok.Term))
		}
	}
	return lemmas, nil
}

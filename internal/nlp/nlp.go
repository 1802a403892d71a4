// Package nlp holds the optional language capabilities used during ingestion:
// lemmatisation with stop-word removal, and named-entity recognition.
package nlp

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a capability is not configured.
var ErrUnavailable = errors.New("nlp capability unavailable")

type Lemmatizer interface {
	// Lemmatize returns the lemma of every content token, dropping stop words,
	// punctuation and lemmas of a single character.
	Lemmatize(ctx context.Context, text string) ([]string, error)
}

type EntityRecognizer interface {
	// Entities buckets unique entity surface strings by entity label.
	Entities(ctx context.Context, text string) (map[string][]string, error)
}

// Pipeline bundles the capabilities that were configured. The zero value has
// none of them.
type Pipeline struct {
	lemmatizer Lemmatizer
	recognizer EntityRecognizer
}

// New returns a pipeline; either capability may be nil.
func New(l Lemmatizer, r EntityRecognizer) Pipeline {
	return Pipeline{lemmatizer: l, recognizer: r}
}

// Disabled is the pipeline with no capabilities.
func Disabled() Pipeline { return Pipeline{} }

func (p Pipeline) CanLemmatize() bool { return p.lemmatizer != nil }

func (p Pipeline) CanRecognize() bool { return p.recognizer != nil }

func (p Pipeline) Lemmatize(ctx context.Context, text string) ([]string, error) {
	if p.lemmatizer == nil {
		return nil, ErrUnavailable
	}
	return p.lemmatizer.Lemmatize(ctx, text)
}

func (p Pipeline) Entities(ctx context.Context, text string) (map[string][]string, error) {
	if p.recognizer == nil {
		return nil, ErrUnavailable
	}
	return p.recognizer.Entities(ctx, text)
}

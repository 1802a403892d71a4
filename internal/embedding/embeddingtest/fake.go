// Package embeddingtest provides a deterministic offline embedder for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
)

// Client hashes lower-cased words into dim buckets and L2-normalises the
// result, so texts sharing words have a high cosine similarity.
type Client struct {
	Dim   int
	Calls int
	Err   error
}

func (c *Client) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, c.Dim)
	}
	return out, nil
}

// Vector is the embedding Client produces for text.
func Vector(text string, dim int) []float32 {
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

// New returns an embedder backed by a fresh Client of dimension dim.
func New(dim int) (*embeddings.EmbedderImpl, *Client) {
	c := &Client{Dim: dim}
	e, err := embeddings.NewEmbedder(c)
	if err != nil {
		panic(err)
	}
	return e, c
}

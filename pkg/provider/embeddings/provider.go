// Package embeddings maps transcript text to dense vectors for semantic
// re-ranking.
//
// Backends live in sub-packages (openai, ollama). Vectors from different
// models live in different spaces; [Provider.Model] names the space so a
// vector cache can be invalidated when the model changes.
package embeddings

import (
	"context"
	"fmt"
	"math"
)

// Provider is a text-embedding backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Embed returns one vector per input text, in input order. An empty input
	// yields an empty result without contacting the backend.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the vector space, e.g. "text-embedding-3-small" or
	// "text-embedding-3-large@256" for a shortened model.
	Model() string
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embeddings: %s returned %d vectors for one text", p.Model(), len(vecs))
	}
	return vecs[0], nil
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Vectors of
// different length or zero magnitude yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Package embedding turns text into vectors and ranks candidates by cosine
// similarity. It knows nothing about students or objectives.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// Provider turns texts into vectors. Identical model and text must yield
// identical vectors.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Candidate is one rankable item.
type Candidate struct {
	ID   string
	Text string
}

// Match is a ranked candidate. Index points back into the candidates slice
// passed to Rank.
type Match struct {
	Index      int
	ID         string
	Similarity float64
}

// Engine ranks candidates against a query text.
type Engine struct {
	provider Provider
	// Threshold excludes candidates scoring below it. Zero keeps every
	// candidate with non-negative similarity.
	Threshold float64
}

func NewEngine(p Provider, threshold float64) *Engine {
	return &Engine{provider: p, Threshold: threshold}
}

// Rank returns candidates ordered by descending cosine similarity to query,
// filtered by the threshold and truncated to topK (topK <= 0 disables
// truncation). Ties keep input order. An empty candidate list returns nil
// without calling the provider.
func (e *Engine) Rank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Match, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, query)
	for _, c := range candidates {
		texts = append(texts, c.Text)
	}

	vectors, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed candidates: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed candidates: expected %d vectors, got %d", len(texts), len(vectors))
	}

	queryVec := vectors[0]
	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		score := CosineSimilarity(queryVec, vectors[i+1])
		if score < e.Threshold {
			continue
		}
		matches = append(matches, Match{Index: i, ID: c.ID, Similarity: score})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Similarity > matches[b].Similarity
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1, 1]. Mismatched lengths, empty vectors and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push identical vectors a hair past 1.
	return math.Max(-1, math.Min(1, sim))
}

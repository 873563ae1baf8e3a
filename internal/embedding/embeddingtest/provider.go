// Package embeddingtest provides a deterministic embedding.Provider for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"
)

const dims = 256

// Provider embeds text as a hashed bag of lowercase words, so identical
// texts score 1.0 and texts sharing words score higher than unrelated ones.
type Provider struct {
	Err   error
	calls atomic.Int32
	texts atomic.Int32
}

func (p *Provider) Model() string { return "bag-of-words-test" }

// Calls reports how many times Embed was invoked.
func (p *Provider) Calls() int { return int(p.calls.Load()) }

// Texts reports how many texts were embedded in total.
func (p *Provider) Texts() int { return int(p.texts.Load()) }

func (p *Provider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(1)
	p.texts.Add(int32(len(texts)))
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

// Vector is the embedding Provider assigns to text.
func Vector(text string) []float32 {
	v := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%dims]++
	}
	return v
}

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/iepscribe/internal/metrics"
)

// Cache stores vectors keyed by model and text. GetMany returns a slice the
// same length as texts with nil entries for misses.
type Cache interface {
	GetMany(ctx context.Context, model string, texts []string) ([][]float32, error)
	SetMany(ctx context.Context, model string, texts []string, vectors [][]float32) error
}

// CachedProvider consults a Cache before delegating misses to the wrapped
// Provider. Cache failures are logged and treated as misses.
type CachedProvider struct {
	next    Provider
	cache   Cache
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func NewCachedProvider(next Provider, cache Cache, logger *slog.Logger, m *metrics.Recorder) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, logger: logger, metrics: m}
}

func (p *CachedProvider) Model() string { return p.next.Model() }

func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := p.next.Model()
	cached, err := p.cache.GetMany(ctx, model, texts)
	if err != nil || len(cached) != len(texts) {
		if err != nil {
			p.logger.Warn("embedding cache read failed", "model", model, "error", err)
		}
		cached = make([][]float32, len(texts))
	}

	// Dedupe misses so repeated names in one batch are embedded once.
	missIdx := map[string][]int{}
	var missTexts []string
	for i, v := range cached {
		if v != nil {
			continue
		}
		if _, seen := missIdx[texts[i]]; !seen {
			missTexts = append(missTexts, texts[i])
		}
		missIdx[texts[i]] = append(missIdx[texts[i]], i)
	}
	p.metrics.EmbeddingCache(len(texts)-countIndexes(missIdx), countIndexes(missIdx))

	if len(missTexts) == 0 {
		return cached, nil
	}

	fresh, err := p.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embed misses: expected %d vectors, got %d", len(missTexts), len(fresh))
	}
	for j, text := range missTexts {
		for _, i := range missIdx[text] {
			cached[i] = fresh[j]
		}
	}

	if err := p.cache.SetMany(ctx, model, missTexts, fresh); err != nil {
		p.logger.Warn("embedding cache write failed", "model", model, "texts", len(missTexts), "error", err)
	}
	return cached, nil
}

func countIndexes(m map[string][]int) int {
	n := 0
	for _, idx := range m {
		n += len(idx)
	}
	return n
}

// CacheKey returns the stable cache key for a model/text pair.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

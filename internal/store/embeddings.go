package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/MikeSquared-Agency/iepscribe/internal/embedding"
)

const embeddingCacheSchema = `
	CREATE EXTENSION IF NOT EXISTS vector;
	CREATE TABLE IF NOT EXISTS embedding_cache (
		cache_key  text PRIMARY KEY,
		model      text NOT NULL,
		embedding  vector NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now()
	);`

// EmbeddingCache persists embeddings in a pgvector column, keyed by
// embedding.CacheKey.
type EmbeddingCache struct {
	store *Store
}

// EmbeddingCache creates the cache table if needed and returns the cache.
func (s *Store) EmbeddingCache(ctx context.Context) (*EmbeddingCache, error) {
	if _, err := s.pool.Exec(ctx, embeddingCacheSchema); err != nil {
		return nil, fmt.Errorf("create embedding cache table: %w", err)
	}
	return &EmbeddingCache{store: s}, nil
}

func (c *EmbeddingCache) GetMany(ctx context.Context, model string, texts []string) ([][]float32, error) {
	keys := make([]string, len(texts))
	pos := make(map[string][]int, len(texts))
	for i, t := range texts {
		keys[i] = embedding.CacheKey(model, t)
		pos[keys[i]] = append(pos[keys[i]], i)
	}

	rows, err := c.store.pool.Query(ctx, `
		SELECT cache_key, embedding
		FROM embedding_cache
		WHERE cache_key = ANY($1)`,
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("query embedding cache: %w", err)
	}
	defer rows.Close()

	out := make([][]float32, len(texts))
	for rows.Next() {
		var (
			key string
			vec pgvector.Vector
		)
		if err := rows.Scan(&key, &vec); err != nil {
			return nil, fmt.Errorf("scan cached embedding: %w", err)
		}
		for _, i := range pos[key] {
			out[i] = vec.Slice()
		}
	}
	return out, rows.Err()
}

func (c *EmbeddingCache) SetMany(ctx context.Context, model string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("set embeddings: %d texts, %d vectors", len(texts), len(vectors))
	}

	batch := &pgx.Batch{}
	for i, t := range texts {
		batch.Queue(`
			INSERT INTO embedding_cache (cache_key, model, embedding)
			VALUES ($1, $2, $3)
			ON CONFLICT (cache_key) DO UPDATE SET embedding = EXCLUDED.embedding`,
			embedding.CacheKey(model, t), model, pgvector.NewVector(vectors[i]),
		)
	}
	if err := c.store.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write embedding cache: %w", err)
	}
	return nil
}

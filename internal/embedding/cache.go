package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"

	"codesage/internal/models"
)

// CachedEmbedder serves repeated texts from an LRU cache keyed by content hash
type CachedEmbedder struct {
	next  embeddings.Embedder
	cache *lru.Cache[string, []float32]
}

var _ embeddings.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next; a non-positive size disables caching
func NewCachedEmbedder(next embeddings.Embedder, size int) embeddings.Embedder {
	if size <= 0 {
		return next
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return next
	}
	return &CachedEmbedder{next: next, cache: cache}
}

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := map[string][]int{}
	var missing []string

	for i, text := range texts {
		key := ComputeHash(text)
		if vec, ok := c.cache.Get(key); ok {
			out[i] = vec
			continue
		}
		if _, seen := pending[key]; !seen {
			missing = append(missing, text)
		}
		pending[key] = append(pending[key], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.next.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", models.ErrEmbeddingService, len(vectors), len(missing))
	}
	for j, text := range missing {
		key := ComputeHash(text)
		if len(vectors[j]) > 0 {
			c.cache.Add(key, vectors[j])
		}
		for _, i := range pending[key] {
			out[i] = vectors[j]
		}
	}
	return out, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := ComputeHash(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		c.cache.Add(key, vec)
	}
	return vec, nil
}

func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

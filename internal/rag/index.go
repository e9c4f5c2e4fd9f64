package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"codesage/internal/chromemdb"
	"codesage/internal/embedding"
	"codesage/internal/helper"
	"codesage/internal/models"
)

// BuildIndex embeds every chunk and loads the vectors into a fresh in-memory
// collection. Nothing is returned unless every chunk was indexed.
func BuildIndex(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, opts embedding.Options) (*chromemdb.VectorDBManager, error) {
	chunkEmbeddings, err := embedding.GenerateEmbedding(ctx, embedder, chunks, opts)
	if err != nil {
		return nil, err
	}

	collectionName, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}

	db := chromemdb.NewVectorDBManager()
	_, err = db.GetOrCreateCollection("codesage-"+collectionName, func(ctx context.Context, text string) ([]float32, error) {
		return embedding.EmbedQuery(ctx, embedder, text, opts.Timeout)
	})
	if err != nil {
		return nil, err
	}

	if err := db.CreateDocs(ctx, chunkEmbeddings); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
	}

	log.Debug().Int("vectors", db.Count()).Msg("Vector index ready")
	return db, nil
}

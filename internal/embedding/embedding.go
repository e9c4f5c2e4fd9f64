package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/errgroup"

	"codesage/internal/config"
	"codesage/internal/models"
)

// NewEmbedder creates an embedder for an OpenAI compatible endpoint
func NewEmbedder(LLMconfig *config.LLMConfig, timeout time.Duration) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(LLMconfig.Key, "Bearer ")),
		openai.WithEmbeddingModel(LLMconfig.Model),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if LLMconfig.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(LLMconfig.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
}

// new ollama embedder
func NewOllamaEmbedder(LLMconfig *config.LLMConfig, timeout time.Duration) (*embeddings.EmbedderImpl, error) {
	log.Debug().Interface("config", map[string]string{
		"base_url":        LLMconfig.BaseURL,
		"embedding_model": LLMconfig.Model,
	}).Msg("Creating ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(LLMconfig.BaseURL),
		ollama.WithModel(LLMconfig.Model),
		ollama.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
}

// NewFromConfig picks the provider named in cfg.EmbedLLM and puts the
// run-scoped cache in front of it
func NewFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	var (
		impl *embeddings.EmbedderImpl
		err  error
	)
	switch cfg.EmbedLLM.Provider {
	case config.ProviderOllama:
		impl, err = NewOllamaEmbedder(&cfg.EmbedLLM, cfg.RequestTimeout)
	case config.ProviderOpenAI:
		impl, err = NewEmbedder(&cfg.EmbedLLM, cfg.RequestTimeout)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidConfig, cfg.EmbedLLM.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
	}
	return NewCachedEmbedder(impl, cfg.RAG.CacheSize), nil
}

type Options struct {
	BatchSize int
	Workers   int
	Timeout   time.Duration
	// Progress is called with the number of chunks finished by each batch
	Progress func(done int)
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize: cfg.RAG.BatchSize,
		Workers:   cfg.RAG.EmbedWorkers,
		Timeout:   cfg.RequestTimeout,
	}
}

// GenerateEmbedding embeds every chunk, batches may run concurrently but the
// result order always matches chunks
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk, opts Options) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	batchSize := max(opts.BatchSize, 1)
	workers := max(opts.Workers, 1)

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, ch := range chunks[start:end] {
				texts = append(texts, ch.Text)
			}
			batch, err := embedDocuments(gctx, embedder, texts, opts.Timeout)
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			if opts.Progress != nil {
				opts.Progress(end - start)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	chunkEmbeddings := make([]models.ChunkEmbedding, len(chunks))
	for i, ch := range chunks {
		if len(vectors[i]) != dim {
			return nil, fmt.Errorf("%w: inconsistent embedding dimension for %s#%d: got %d, want %d",
				models.ErrEmbeddingService, ch.Path, ch.ChunkIndex, len(vectors[i]), dim)
		}
		chunkEmbeddings[i] = models.ChunkEmbedding{Chunk: ch, Embedding: vectors[i]}
	}
	log.Debug().Int("chunks", len(chunks)).Int("dimension", dim).Msg("Generated embeddings")
	return chunkEmbeddings, nil
}

// EmbedQuery embeds a single query text under the request timeout
func EmbedQuery(ctx context.Context, embedder embeddings.Embedder, text string, timeout time.Duration) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	vec, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, serviceError(err, timeout)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", models.ErrEmbeddingService)
	}
	return vec, nil
}

func embedDocuments(ctx context.Context, embedder embeddings.Embedder, texts []string, timeout time.Duration) ([][]float32, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, serviceError(err, timeout)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", models.ErrEmbeddingService, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at batch position %d", models.ErrEmbeddingService, i)
		}
	}
	return vectors, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func serviceError(err error, timeout time.Duration) error {
	if errors.Is(err, models.ErrEmbeddingService) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out after %s", models.ErrEmbeddingService, timeout)
	}
	return fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
}

package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"codesage/internal/chromemdb"
	"codesage/internal/config"
	"codesage/internal/embedding"
	"codesage/internal/llmservice"
	"codesage/internal/models"
)

type RAG struct {
	db       *chromemdb.VectorDBManager
	embedder embeddings.Embedder
	llm      llms.Model
	cfg      *config.Config
}

func NewRAG(db *chromemdb.VectorDBManager, embedder embeddings.Embedder, llm llms.Model, cfg *config.Config) *RAG {
	return &RAG{db: db, embedder: embedder, llm: llm, cfg: cfg}
}

// Retrieve returns at most k chunks, most similar first. k <= 0 uses the
// configured top_k.
func (r *RAG) Retrieve(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	if k <= 0 {
		k = r.cfg.RAG.TopK
	}

	queryEmbedding, err := embedding.EmbedQuery(ctx, r.embedder, query, r.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	results, err := r.db.SearchWithQueryOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingService, err)
	}

	chunks := make([]models.Chunk, 0, len(results))
	for _, res := range results {
		log.Debug().Str("id", res.ID).Float32("similarity", res.Similarity).Msg("Retrieved chunk")
		chunks = append(chunks, chromemdb.ChunkFromResult(res))
	}
	return chunks, nil
}

// BuildContext renders retrieved chunks in rank order, one header line per chunk
func BuildContext(chunks []models.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		path := ch.Path
		if path == "" {
			path = "unknown"
		}
		parts = append(parts, fmt.Sprintf(models.FileHeaderFormat, path, ch.Text))
	}
	return strings.Join(parts, models.ContextSeparator)
}

func BuildMessages(codeContext, query string) []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, models.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.UserPromptFormat, codeContext, query)),
	}
}

// Query retrieves context for query and asks the chat model; the answer is
// returned exactly as the model produced it
func (r *RAG) Query(ctx context.Context, query string) (*models.PromptResponse, error) {
	chunks, err := r.Retrieve(ctx, query, r.cfg.RAG.TopK)
	if err != nil {
		return nil, err
	}

	messages := BuildMessages(BuildContext(chunks), query)
	content, err := llmservice.GenerateContent(ctx, r.llm, messages, r.cfg.LLM.Temperature, r.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	return &models.PromptResponse{
		Query:   query,
		Sources: sources(chunks),
		Content: content,
	}, nil
}

// sources lists distinct chunk paths in rank order
func sources(chunks []models.Chunk) []string {
	seen := map[string]bool{}
	var out []string
	for _, ch := range chunks {
		if !seen[ch.Path] {
			seen[ch.Path] = true
			out = append(out, ch.Path)
		}
	}
	return out
}

package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"codesage/internal/models"
)

// VectorDBManager encapsulates the in-memory chromem-go database. Vectors are
// normalized by chromem on insert and query, so ranking is cosine similarity.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func NewVectorDBManager() *VectorDBManager {
	return &VectorDBManager{db: chromem.NewDB()}
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string, embeddingFunc chromem.EmbeddingFunc) (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(collectionName, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}
	m.collection = c
	return c, nil
}

// DocumentID is unique per run because paths are unique and indexes are per file
func DocumentID(ch models.Chunk) string {
	return fmt.Sprintf("%s#%d", ch.Path, ch.ChunkIndex)
}

func CreateMetadata(ch models.Chunk) map[string]string {
	return map[string]string{
		models.MetadataPath:       ch.Path,
		models.MetadataChunkIndex: strconv.Itoa(ch.ChunkIndex),
		models.MetadataOffset:     strconv.Itoa(ch.Offset),
	}
}

// ChunkFromResult restores the chunk stored with a query result
func ChunkFromResult(r chromem.Result) models.Chunk {
	idx, err := strconv.Atoi(r.Metadata[models.MetadataChunkIndex])
	if err != nil {
		idx = -1
	}
	offset, err := strconv.Atoi(r.Metadata[models.MetadataOffset])
	if err != nil {
		offset = -1
	}
	return models.Chunk{
		Text:       r.Content,
		Path:       r.Metadata[models.MetadataPath],
		ChunkIndex: idx,
		Offset:     offset,
	}
}

// add multiple documents
func (m *VectorDBManager) CreateDocs(ctx context.Context, chunkEmbeddings []models.ChunkEmbedding) error {
	if m.collection == nil {
		return fmt.Errorf("collection is required")
	}
	docs := make([]chromem.Document, 0, len(chunkEmbeddings))
	for _, ce := range chunkEmbeddings {
		docs = append(docs, chromem.Document{
			ID:        DocumentID(ce.Chunk),
			Content:   ce.Text,
			Metadata:  CreateMetadata(ce.Chunk),
			Embedding: ce.Embedding,
		})
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	log.Debug().Str("collection", m.collection.Name).Int("documents", len(docs)).Msg("Added documents")
	return nil
}

func (m *VectorDBManager) Count() int {
	if m.collection == nil {
		return 0
	}
	return m.collection.Count()
}

// SearchWithQueryOptions performs a similarity search. NResults is clamped to
// the collection size.
func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	if m.collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	// exit if query or embedding is not provided
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}
	if n := m.collection.Count(); opts.NResults > n {
		opts.NResults = n
	}
	if opts.NResults <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}
	return results, nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	if m.collection == nil {
		return nil
	}
	if err := m.db.DeleteCollection(m.collection.Name); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	m.collection = nil
	return nil
}

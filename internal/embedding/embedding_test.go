package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesage/internal/config"
	"codesage/internal/models"
	"codesage/internal/testutil"
)

func makeChunks(n int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			Text:       fmt.Sprintf("chunk text %d %s", i, string(rune('a'+i%26))),
			Path:       fmt.Sprintf("file%d.py", i/3),
			ChunkIndex: i % 3,
		}
	}
	return chunks
}

func TestGenerateEmbedding_PreservesOrder(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		workers   int
	}{
		{"sequential single", 1, 1},
		{"sequential batches", 4, 1},
		{"concurrent batches", 3, 4},
		{"one batch", 100, 8},
	}

	chunks := makeChunks(23)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &testutil.FakeEmbedder{}
			var progressed int64

			got, err := GenerateEmbedding(context.Background(), fake, chunks, Options{
				BatchSize: tt.batchSize,
				Workers:   tt.workers,
				Timeout:   time.Second,
				Progress:  func(done int) { atomic.AddInt64(&progressed, int64(done)) },
			})
			require.NoError(t, err)
			require.Len(t, got, len(chunks))

			for i, ce := range got {
				assert.Equal(t, chunks[i], ce.Chunk)
				assert.Equal(t, testutil.Vector(chunks[i].Text), ce.Embedding)
			}
			assert.Equal(t, int64(len(chunks)), atomic.LoadInt64(&progressed))
			assert.Equal(t, (len(chunks)+tt.batchSize-1)/tt.batchSize, fake.DocumentCall)
		})
	}
}

func TestGenerateEmbedding_Empty(t *testing.T) {
	got, err := GenerateEmbedding(context.Background(), &testutil.FakeEmbedder{}, nil, Options{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGenerateEmbedding_ServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *testutil.FakeEmbedder
	}{
		{"unreachable", &testutil.FakeEmbedder{Err: errors.New("dial tcp 127.0.0.1:11434: connection refused")}},
		{"malformed count", &testutil.FakeEmbedder{Short: true}},
		{"timeout", &testutil.FakeEmbedder{Err: fmt.Errorf("post: %w", context.DeadlineExceeded)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateEmbedding(context.Background(), tt.fake, makeChunks(5), Options{BatchSize: 2, Workers: 2})
			assert.ErrorIs(t, err, models.ErrEmbeddingService)
			assert.Nil(t, got)
		})
	}
}

type mixedDimEmbedder struct{ testutil.FakeEmbedder }

func (m *mixedDimEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = make([]float32, 4+len(t)%2)
		out[i][0] = 1
	}
	return out, nil
}

func TestGenerateEmbedding_InconsistentDimension(t *testing.T) {
	chunks := []models.Chunk{{Text: "ab"}, {Text: "abc"}}
	_, err := GenerateEmbedding(context.Background(), &mixedDimEmbedder{}, chunks, Options{BatchSize: 1})
	assert.ErrorIs(t, err, models.ErrEmbeddingService)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEmbedQuery(t *testing.T) {
	vec, err := EmbedQuery(context.Background(), &testutil.FakeEmbedder{}, "where is auth", time.Second)
	require.NoError(t, err)
	assert.Equal(t, testutil.Vector("where is auth"), vec)

	_, err = EmbedQuery(context.Background(), &testutil.FakeEmbedder{Err: context.DeadlineExceeded}, "q", time.Second)
	assert.ErrorIs(t, err, models.ErrEmbeddingService)
	assert.Contains(t, err.Error(), "timed out")
}

func TestNewFromConfig_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.EmbedLLM.Provider = "bedrock"
	_, err := NewFromConfig(cfg)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestNewFromConfig_Ollama(t *testing.T) {
	emb, err := NewFromConfig(config.Default())
	require.NoError(t, err)
	_, cached := emb.(*CachedEmbedder)
	assert.True(t, cached)
}

package models

// SourceFile is a scanned file that passed the extension and emptiness filters
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"-"`
}

// Chunk represents a segment of one source file
type Chunk struct {
	Text       string `json:"-"`
	Path       string `json:"path"`
	ChunkIndex int    `json:"chunk_index"`
	// Offset is the byte offset of Text inside the file, -1 when the splitter rewrote the text
	Offset int `json:"offset"`
}

// ChunkEmbedding pairs a chunk with its embedding vector
type ChunkEmbedding struct {
	Chunk
	Embedding []float32
}

type PromptResponse struct {
	Query   string
	Sources []string
	Content string
}

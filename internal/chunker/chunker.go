package chunker

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/textsplitter"

	"codesage/internal/config"
	"codesage/internal/models"
)

type Chunker struct {
	// code holds the validated sizes; SplitterFor fills in the separators
	code     CodeSplitter
	splitter string
}

func New(cfg *config.RAGConfig) (*Chunker, error) {
	cs, err := NewCodeSplitter(cfg.ChunkSize, cfg.ChunkOverlap, models.DefaultSeparators)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	kind := cfg.Splitter
	if kind == "" {
		kind = config.SplitterCode
	}
	return &Chunker{code: *cs, splitter: kind}, nil
}

// SeparatorsFor returns the separator priority list for a file path
func SeparatorsFor(path string) []string {
	if seps, ok := models.LanguageSeparators[strings.ToLower(filepath.Ext(path))]; ok {
		return seps
	}
	return models.DefaultSeparators
}

// SplitterFor builds the configured text splitter for a file path
func (c *Chunker) SplitterFor(path string) textsplitter.TextSplitter {
	seps := SeparatorsFor(path)
	if c.splitter == config.SplitterLangchain {
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(c.code.ChunkSize),
			textsplitter.WithChunkOverlap(c.code.ChunkOverlap),
			textsplitter.WithSeparators(seps),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		)
	}
	cs := c.code
	cs.Separators = seps
	return &cs
}

// ChunkFile splits one file; chunk indexes start at 0
func (c *Chunker) ChunkFile(file models.SourceFile) ([]models.Chunk, error) {
	splitter := c.SplitterFor(file.Path)

	if cs, ok := splitter.(*CodeSplitter); ok {
		spans := cs.Spans(file.Content)
		chunks := make([]models.Chunk, len(spans))
		for i, sp := range spans {
			chunks[i] = models.Chunk{
				Text:       file.Content[sp.Start:sp.End],
				Path:       file.Path,
				ChunkIndex: i,
				Offset:     sp.Start,
			}
		}
		return chunks, nil
	}

	pieces, err := splitter.SplitText(file.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", file.Path, err)
	}
	chunks := make([]models.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, models.Chunk{
			Text:       piece,
			Path:       file.Path,
			ChunkIndex: len(chunks),
			Offset:     -1,
		})
	}
	return chunks, nil
}

// ChunkFiles splits every file independently, preserving file order
func (c *Chunker) ChunkFiles(files []models.SourceFile) ([]models.Chunk, error) {
	var all []models.Chunk
	for _, f := range files {
		chunks, err := c.ChunkFile(f)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", f.Path).Int("chunks", len(chunks)).Msg("Chunked file")
		all = append(all, chunks...)
	}
	return all, nil
}

// Reconstruct rebuilds the content of one file from its verbatim chunks by
// dropping the overlap each chunk shares with its predecessor.
func Reconstruct(chunks []models.Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", nil
	}
	sorted := make([]models.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	var b strings.Builder
	end := 0
	for i, ch := range sorted {
		if ch.Offset < 0 {
			return "", fmt.Errorf("chunk %d of %s has no offset", ch.ChunkIndex, ch.Path)
		}
		if i == 0 {
			if ch.Offset != 0 {
				return "", fmt.Errorf("first chunk of %s starts at %d", ch.Path, ch.Offset)
			}
			b.WriteString(ch.Text)
			end = len(ch.Text)
			continue
		}
		skip := end - ch.Offset
		if skip < 0 || skip > len(ch.Text) {
			return "", fmt.Errorf("chunk %d of %s is not contiguous with its predecessor", ch.ChunkIndex, ch.Path)
		}
		b.WriteString(ch.Text[skip:])
		end = ch.Offset + len(ch.Text)
	}
	return b.String(), nil
}

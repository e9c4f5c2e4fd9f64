package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Span is a half-open byte range of the split text
type Span struct {
	Start int
	End   int
}

// CodeSplitter splits text recursively on a prioritized separator list like
// textsplitter.RecursiveCharacter, but never trims or drops characters:
// every segment is an exact substring of the input. Sizes are in runes.
type CodeSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

var _ textsplitter.TextSplitter = (*CodeSplitter)(nil)

func NewCodeSplitter(chunkSize, chunkOverlap int, separators []string) (*CodeSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &CodeSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, Separators: separators}, nil
}

func (s *CodeSplitter) SplitText(text string) ([]string, error) {
	spans := s.Spans(text)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = text[sp.Start:sp.End]
	}
	return out, nil
}

// Spans returns the segment boundaries in emission order. Consecutive spans
// overlap by at most ChunkOverlap runes and every span starts after the previous one.
func (s *CodeSplitter) Spans(text string) []Span {
	if text == "" {
		return nil
	}
	return s.merge(text, s.atomize(text, 0, s.Separators))
}

// atomize cuts text into contiguous pieces of at most ChunkSize runes,
// preferring the highest-priority separator present in text.
func (s *CodeSplitter) atomize(text string, base int, separators []string) []Span {
	if utf8.RuneCountInString(text) <= s.ChunkSize {
		return []Span{{Start: base, End: base + len(text)}}
	}

	sep, rest, ok := pickSeparator(text, separators)
	if !ok || sep == "" {
		return s.hardCut(text, base)
	}

	var atoms []Span
	for _, part := range splitKeepSeparator(text, sep) {
		piece := text[part.Start:part.End]
		if utf8.RuneCountInString(piece) <= s.ChunkSize {
			atoms = append(atoms, Span{Start: base + part.Start, End: base + part.End})
			continue
		}
		atoms = append(atoms, s.atomize(piece, base+part.Start, rest)...)
	}
	return atoms
}

func (s *CodeSplitter) hardCut(text string, base int) []Span {
	var atoms []Span
	start, count := 0, 0
	for i := range text {
		if count == s.ChunkSize {
			atoms = append(atoms, Span{Start: base + start, End: base + i})
			start, count = i, 0
		}
		count++
	}
	return append(atoms, Span{Start: base + start, End: base + len(text)})
}

// merge greedily packs atoms into segments and carries a tail of at most
// ChunkOverlap runes into the next segment.
func (s *CodeSplitter) merge(text string, atoms []Span) []Span {
	var (
		out    []Span
		window []Span
		total  int
	)
	size := func(sp Span) int { return utf8.RuneCountInString(text[sp.Start:sp.End]) }

	for _, atom := range atoms {
		n := size(atom)
		if len(window) > 0 && total+n > s.ChunkSize {
			out = append(out, Span{Start: window[0].Start, End: window[len(window)-1].End})
			for len(window) > 0 && (total > s.ChunkOverlap || total+n > s.ChunkSize) {
				total -= size(window[0])
				window = window[1:]
			}
		}
		window = append(window, atom)
		total += n
	}
	if len(window) > 0 {
		out = append(out, Span{Start: window[0].Start, End: window[len(window)-1].End})
	}
	return out
}

func pickSeparator(text string, separators []string) (string, []string, bool) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:], true
		}
	}
	return "", nil, false
}

// splitKeepSeparator splits text before every occurrence of sep, so each
// separator stays at the head of the following part. text must not be empty.
func splitKeepSeparator(text, sep string) []Span {
	var parts []Span
	start := 0
	for {
		i := strings.Index(text[start+1:], sep)
		if i < 0 {
			break
		}
		cut := start + 1 + i
		parts = append(parts, Span{Start: start, End: cut})
		start = cut
	}
	return append(parts, Span{Start: start, End: len(text)})
}

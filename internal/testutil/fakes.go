// Package testutil holds in-process stand-ins for the embedding and chat
// services so pipeline tests never touch the network.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

const FakeDimension = 16

// FakeEmbedder implements embeddings.Embedder with a character histogram
type FakeEmbedder struct {
	Err error
	// Short drops the last vector of every EmbedDocuments response
	Short bool

	mu           sync.Mutex
	DocumentCall int
	QueryCall    int
	Embedded     []string
}

func Vector(text string) []float32 {
	v := make([]float32, FakeDimension)
	v[0] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[1+int(r-'a')%(FakeDimension-1)]++
		}
	}
	return v
}

func (f *FakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.DocumentCall++
	f.Embedded = append(f.Embedded, texts...)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, Vector(t))
	}
	if f.Short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.QueryCall++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	return Vector(text), nil
}

// FakeLLM implements llms.Model and records the last request
type FakeLLM struct {
	Response string
	Err      error
	// Empty returns a response without choices
	Empty bool

	mu       sync.Mutex
	Calls    int
	Messages []llms.MessageContent
	Options  llms.CallOptions
}

func (f *FakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls++
	f.Messages = messages
	f.Options = llms.CallOptions{}
	for _, opt := range options {
		opt(&f.Options)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Empty {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.Response}}}, nil
}

func (f *FakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

// MessageText joins the text parts of a message
func MessageText(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tc, ok := p.(llms.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

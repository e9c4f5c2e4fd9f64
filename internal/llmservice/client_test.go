package llmservice

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"codesage/internal/config"
	"codesage/internal/models"
	"codesage/internal/testutil"
)

func TestGenerateContent(t *testing.T) {
	fake := &testutil.FakeLLM{Response: "  verbatim answer\n"}
	msgs := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "hi")}

	got, err := GenerateContent(context.Background(), fake, msgs, 0.2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "  verbatim answer\n", got)
	assert.InDelta(t, 0.2, fake.Options.Temperature, 1e-9)
	assert.Equal(t, msgs, fake.Messages)
}

func TestGenerateContent_Errors(t *testing.T) {
	tests := []struct {
		name    string
		fake    *testutil.FakeLLM
		message string
	}{
		{"unreachable", &testutil.FakeLLM{Err: errors.New("connection refused")}, "connection refused"},
		{"timeout", &testutil.FakeLLM{Err: fmt.Errorf("post: %w", context.DeadlineExceeded)}, "timed out"},
		{"no choices", &testutil.FakeLLM{Empty: true}, "empty response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateContent(context.Background(), tt.fake, nil, 0.2, time.Second)
			assert.ErrorIs(t, err, models.ErrLLMService)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestNewLLM(t *testing.T) {
	cfg := config.Default()

	llm, err := NewLLM(&cfg.LLM, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, llm)

	cfg.LLM.Provider = "bedrock"
	_, err = NewLLM(&cfg.LLM, time.Second)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

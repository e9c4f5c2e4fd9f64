package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"codesage/internal/config"
	"codesage/internal/models"
)

// NewLLM creates the chat model client for the configured provider
func NewLLM(llmConfig *config.LLMConfig, timeout time.Duration) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("base_url", llmConfig.BaseURL).Str("model", llmConfig.Model).Msg("Creating chat model")

	httpClient := &http.Client{Timeout: timeout}
	switch llmConfig.Provider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
			ollama.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrLLMService, err)
		}
		return llm, nil
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
			openai.WithHTTPClient(httpClient),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrLLMService, err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", models.ErrInvalidConfig, llmConfig.Provider)
	}
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, messages []llms.MessageContent, temperature float64, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := llm.GenerateContent(ctx, messages, llms.WithTemperature(temperature))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: request timed out after %s", models.ErrLLMService, timeout)
		}
		return "", fmt.Errorf("%w: %v", models.ErrLLMService, err)
	}
	if res == nil || len(res.Choices) == 0 || res.Choices[0] == nil {
		return "", fmt.Errorf("%w: empty response", models.ErrLLMService)
	}
	return res.Choices[0].Content, nil
}

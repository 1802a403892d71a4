package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"document-index/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoChoices is returned when the model answers with an empty choice list.
var ErrNoChoices = errors.New("model returned no choices")

// NewModel builds the chat model for llmConfig. An empty model name means no
// chat model is configured and returns nil, nil.
func NewModel(llmConfig config.LLMConfig) (llms.Model, error) {
	if llmConfig.Model == "" {
		return nil, nil
	}
	log.Debug().Str("provider", llmConfig.Provider).Str("base_url", llmConfig.BaseURL).Str("model", llmConfig.Model).Msg("Creating chat model")

	switch llmConfig.Provider {
	case "openai":
		return openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
	case "ollama", "":
		return ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", llmConfig.Provider)
	}
}

// call llm
func GenerateContent(ctx context.Context, llm llms.Model, tools []llms.Tool, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}
	return llm.GenerateContent(ctx, messages, opts...)
}

// Complete sends a single human prompt and returns the first choice.
func Complete(ctx context.Context, llm llms.Model, prompt string, opts ...llms.CallOption) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	res, err := GenerateContent(ctx, llm, nil, msgContent, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", ErrNoChoices
	}
	return res.Choices[0].Content, nil
}

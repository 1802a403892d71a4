package llmservice

import (
	"context"
	"testing"

	"document-index/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

func TestComplete(t *testing.T) {
	llm := fake.NewFakeLLM([]string{"first", "second"})

	out, err := Complete(context.Background(), llm, "hello")
	require.NoError(t, err)
	assert.Equal(t, "first", out)

	out, err = Complete(context.Background(), llm, "again")
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestCompletePropagatesErrors(t *testing.T) {
	_, err := Complete(context.Background(), fake.NewFakeLLM(nil), "hello")
	assert.Error(t, err)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.LLMConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = NewModel(config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewModel(config.LLMConfig{Provider: "bard", Model: "x"})
	assert.Error(t, err)
}

package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"document-index/internal/llmservice"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

// LLMRecognizer asks a chat model for the entities of a text.
type LLMRecognizer struct {
	llm llms.Model
}

func NewLLMRecognizer(llm llms.Model) *LLMRecognizer {
	return &LLMRecognizer{llm: llm}
}

type entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

func (r *LLMRecognizer) Entities(ctx context.Context, text string) (map[string][]string, error) {
	if strings.TrimSpace(text) == "" {
		return map[string][]string{}, nil
	}
	out, err := llmservice.Complete(ctx, r.llm, fmt.Sprintf(models.EntityPromptTemplate, text), llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("failed to recognize entities: %w", err)
	}
	entities, err := parseEntities(out)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("labels", len(entities)).Msg("Recognized entities")
	return entities, nil
}

// parseEntities reads the JSON array in a model answer, tolerating prose or
// code fences around it.
func parseEntities(answer string) (map[string][]string, error) {
	start := strings.Index(answer, "[")
	end := strings.LastIndex(answer, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no entity list in model answer")
	}
	var list []entity
	if err := json.Unmarshal([]byte(answer[start:end+1]), &list); err != nil {
		return nil, fmt.Errorf("failed to decode entity list: %w", err)
	}

	byLabel := map[string][]string{}
	for _, e := range list {
		label := strings.ToUpper(strings.TrimSpace(e.Label))
		value := strings.TrimSpace(e.Text)
		if label == "" || value == "" {
			continue
		}
		if !slices.Contains(byLabel[label], value) {
			byLabel[label] = append(byLabel[label], value)
		}
	}
	for label := range byLabel {
		slices.Sort(byLabel[label])
	}
	return byLabel, nil
}

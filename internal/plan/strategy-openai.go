package plan

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Diego-DPL/zypace/internal/errors"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenAIModels are tried after the configured model, in order.
var DefaultOpenAIModels = []string{"gpt-4o-mini", "gpt-4o"}

type openAIStrategy struct {
	client *openai.Client
	model  string
}

// NewOpenAIStrategies returns one strategy per model, all sharing a client. Duplicate and empty model
// names are skipped. Retries are left to the candidate chain.
func NewOpenAIStrategies(apiKey, baseURL string, models ...string) ([]Strategy, error) {
	if apiKey == "" {
		return nil, errors.Wrap(ErrConfig, "OpenAI API key is empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	var strategies []Strategy
	seen := make(map[string]bool)
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		strategies = append(strategies, &openAIStrategy{client: &client, model: model})
	}
	return strategies, nil
}

func (s *openAIStrategy) Name() string {
	return s.model
}

func (s *openAIStrategy) Generate(ctx context.Context, prompt Prompt) (string, error) {
	completion, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{ //nolint:exhaustruct // defaults are fine.
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.DeveloperMessage(prompt.Instructions),
			openai.UserMessage(prompt.Input),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", errors.Wrap(err, "chat completion", slog.Int("status", apiErr.StatusCode))
		}
		return "", errors.Wrap(err, "chat completion")
	}
	if len(completion.Choices) == 0 {
		return "", errors.Wrap(ErrMalformedOutput, "no choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.Wrap(ErrMalformedOutput, "empty completion")
	}
	return content, nil
}

package plan

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Diego-DPL/zypace/internal/errors"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type geminiStrategy struct {
	apiKey string
	model  string
}

// NewGeminiStrategy returns a strategy backed by a Gemini model.
func NewGeminiStrategy(apiKey, model string) (Strategy, error) {
	if apiKey == "" {
		return nil, errors.Wrap(ErrConfig, "Gemini API key is empty")
	}
	if model == "" {
		return nil, errors.Wrap(ErrConfig, "Gemini model is empty")
	}
	return &geminiStrategy{apiKey: apiKey, model: model}, nil
}

func (s *geminiStrategy) Name() string {
	return s.model
}

func (s *geminiStrategy) Generate(ctx context.Context, prompt Prompt) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(s.apiKey))
	if err != nil {
		return "", errors.Wrap(err, "create Gemini client")
	}
	defer client.Close()

	model := client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.Instructions)}}
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.Input))
	if err != nil {
		return "", errors.Wrap(err, "generate content", slog.String("model", s.model))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.Wrap(ErrMalformedOutput, "no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errors.Wrap(ErrMalformedOutput, "empty content")
	}
	return b.String(), nil
}

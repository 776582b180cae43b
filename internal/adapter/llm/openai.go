package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
	"ragvault/config"
)

const systemPrompt = "Answer the question using only the provided context. If the context does not contain the answer, say so."

// OpenAIGenerator answers prompts through an OpenAI-compatible chat completion API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIGenerator reads the API key from cfg.APIKeyEnv. A custom BaseURL
// (a local OpenAI-compatible server) may run without a key.
func NewOpenAIGenerator(cfg config.GenerationConfig) (*OpenAIGenerator, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: float32(cfg.Temperature),
	}, nil
}

func (g *OpenAIGenerator) ModelName() string {
	return g.model
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

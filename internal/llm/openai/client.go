// Package openai implements llm.Gateway on top of any OpenAI-compatible
// chat completions endpoint (OpenAI, Together, DeepSeek, local servers).
package openai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/MikeSquared-Agency/iepscribe/internal/llm"
)

const defaultMaxTokens = 2048

type Client struct {
	client    *goopenai.Client
	model     string
	maxTokens int
}

// NewClient creates a chat client. An empty baseURL uses the OpenAI default.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{
		client:    goopenai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: defaultMaxTokens,
	}
}

// WithMaxTokens returns a copy of c that caps completions at n tokens.
func (c *Client) WithMaxTokens(n int) *Client {
	cp := *c
	cp.maxTokens = n
	return &cp
}

// Complete sends a system+user prompt pair and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: userPrompt})

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(temperature),
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %w", llm.ErrUpstream, err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.Upstream("empty chat response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", llm.Upstream("empty completion text")
	}
	return text, nil
}

package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/sapiens-pipeline/internal/infra/ai/prompt"
)

const maxTokens = 2048

// Client implements the analysis.Reasoner port on chat completions.
type Client struct {
	*openai.Client
	Model   string
	Timeout time.Duration
}

func NewClient(apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{Client: openai.NewClient(apiKey), Model: model, Timeout: timeout}
}

func (c *Client) Reason(ctx context.Context, role, instruction, context_ string) (string, error) {
	model := c.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: context_},
		},
	}
	// The gate must answer with a parseable JSON object.
	if role == prompt.RoleGatekeeper {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// Reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens instead of MaxTokens.
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion for role %s: %w", role, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion for role %s: empty response", role)
	}
	return resp.Choices[0].Message.Content, nil
}

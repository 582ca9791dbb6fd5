package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	transport
	apiKey string
	model  string
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicClient creates a client. An empty model selects DefaultAnthropicModel.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{
		transport: newTransport(anthropicBaseURL),
		apiKey:    apiKey,
		model:     model,
	}
}

// Model returns the model the client sends requests to.
func (c *AnthropicClient) Model() string { return c.model }

// Suggest implements Suggester.
func (c *AnthropicClient) Suggest(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		System:    req.Action.SystemPrompt(),
		Messages:  []anthropicMessage{{Role: "user", Content: req.UserMessage()}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	header := http.Header{}
	header.Set("x-api-key", c.apiKey)
	header.Set("anthropic-version", anthropicVersion)

	respBody, err := c.post(ctx, "Anthropic", body, header, func(b []byte) string {
		var e anthropicError
		if json.Unmarshal(b, &e) == nil && e.Error.Message != "" {
			return fmt.Sprintf("%s (model: %s)", e.Error.Message, c.model)
		}
		return string(b)
	})
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, nil
		}
	}
	return "", nil
}

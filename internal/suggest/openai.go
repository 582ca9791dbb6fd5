package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const openaiBaseURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient calls the OpenAI Chat Completions API.
type OpenAIClient struct {
	transport
	apiKey string
	model  string
}

type openaiRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openaiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIClient creates a client. An empty model selects DefaultOpenAIModel.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		transport: newTransport(openaiBaseURL),
		apiKey:    apiKey,
		model:     model,
	}
}

// Model returns the model the client sends requests to.
func (c *OpenAIClient) Model() string { return c.model }

// Suggest implements Suggester.
func (c *OpenAIClient) Suggest(ctx context.Context, req Request) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	var messages []openaiMessage
	if sys := req.Action.SystemPrompt(); sys != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: sys})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.UserMessage()})

	body, err := json.Marshal(openaiRequest{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	respBody, err := c.post(ctx, "OpenAI", body, header, func(b []byte) string {
		var e openaiError
		if json.Unmarshal(b, &e) == nil && e.Error.Message != "" {
			return e.Error.Message
		}
		return string(b)
	})
	if err != nil {
		return "", err
	}

	var resp openaiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", nil
	}
	return *resp.Choices[0].Message.Content, nil
}

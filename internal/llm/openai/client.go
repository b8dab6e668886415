// Package openai is the primary provider: any OpenAI-compatible chat
// completions endpoint (Groq by default) reached through a configurable base
// URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"conformity-backend/internal/llm"
)

// Client implements llm.Provider using Chat Completions.
type Client struct {
	name   string
	model  string
	client *openai.Client
}

// Config holds the connection settings for an OpenAI-compatible endpoint.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
}

// NewClient constructs a client. BaseURL may be empty for api.openai.com.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("PRIMARY_MODEL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("PRIMARY_API_KEY is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		clientConfig.BaseURL = base
	}
	// Deadlines come from the per-call context.
	clientConfig.HTTPClient = &http.Client{}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &Client{
		name:   name,
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name identifies the provider in logs and metadata.
func (c *Client) Name() string { return c.name }

// Call sends one JSON-mode completion request.
func (c *Client) Call(ctx context.Context, prompt llm.Prompt, timeout time.Duration) (string, error) {
	return llm.CallWithTimeout(ctx, c.name, timeout, func(ctx context.Context) (string, error) {
		resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(prompt))
		if err != nil {
			return "", c.wrapError(err)
		}
		if len(resp.Choices) == 0 {
			return "", &llm.ProviderError{Provider: c.name, Message: "response missing choices", Err: llm.ErrEmptyResponse}
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return "", &llm.ProviderError{Provider: c.name, Err: llm.ErrEmptyResponse}
		}
		return content, nil
	})
}

func (c *Client) buildRequest(prompt llm.Prompt) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.User,
	})
	return openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		// A literal 0 is dropped by omitempty and the server default applies.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

func (c *Client) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = "request failed"
		}
		return &llm.ProviderError{Provider: c.name, StatusCode: apiErr.HTTPStatusCode, Message: msg, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &llm.ProviderError{Provider: c.name, StatusCode: reqErr.HTTPStatusCode, Message: "request failed", Err: err}
	}
	return &llm.ProviderError{Provider: c.name, Message: "request failed", Err: err}
}

var _ llm.Provider = (*Client)(nil)

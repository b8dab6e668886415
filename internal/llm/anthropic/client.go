// Package anthropic is the secondary provider, backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"conformity-backend/internal/llm"
)

const defaultMaxTokens = 4096

// Config holds the connection settings for the Messages API.
type Config struct {
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Client implements llm.Provider.
type Client struct {
	name      string
	model     string
	maxTokens int
	client    anthropic.Client
}

// NewClient constructs a client. The SDK's own retries are disabled because
// the orchestrator owns the retry policy.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("SECONDARY_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("SECONDARY_MODEL is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		name:      name,
		model:     cfg.Model,
		maxTokens: maxTokens,
		client:    anthropic.NewClient(opts...),
	}, nil
}

// Name identifies the provider in logs and metadata.
func (c *Client) Name() string { return c.name }

// Call sends one Messages request and concatenates the text blocks.
func (c *Client) Call(ctx context.Context, prompt llm.Prompt, timeout time.Duration) (string, error) {
	return llm.CallWithTimeout(ctx, c.name, timeout, func(ctx context.Context) (string, error) {
		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(c.model),
			MaxTokens:   int64(c.maxTokens),
			Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User))},
			Temperature: anthropic.Float(0),
		}
		if prompt.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", c.wrapError(err)
		}

		var text strings.Builder
		for _, block := range message.Content {
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				text.WriteString(tb.Text)
			}
		}
		out := strings.TrimSpace(text.String())
		if out == "" {
			return "", &llm.ProviderError{Provider: c.name, Err: llm.ErrEmptyResponse}
		}
		return out, nil
	})
}

func (c *Client) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{Provider: c.name, StatusCode: apiErr.StatusCode, Message: "messages request failed", Err: err}
	}
	return &llm.ProviderError{Provider: c.name, Message: "messages request failed", Err: err}
}

var _ llm.Provider = (*Client)(nil)

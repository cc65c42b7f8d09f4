package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const ProviderAnthropic = "anthropic"

// AnthropicClient generates completions with the Anthropic Messages API.
type AnthropicClient struct {
	log       *slog.Logger
	client    anthropic.Client
	maxTokens int64
}

// NewAnthropicClient builds a client. The SDK's own retries are disabled so
// every failure reaches the caller.
func NewAnthropicClient(log *slog.Logger, apiKey string, maxTokens int64, opts ...option.RequestOption) *AnthropicClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &AnthropicClient{
		log:       log,
		client:    anthropic.NewClient(opts...),
		maxTokens: maxTokens,
	}
}

func (c *AnthropicClient) Name() string { return ProviderAnthropic }

func (c *AnthropicClient) Generate(ctx context.Context, prompt Prompt, model string) (string, error) {
	start := time.Now()
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Opt(0.0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: prompt.System}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		c.log.Debug("llm: anthropic call failed", "model", model, "duration", duration, "error", err)
		return "", classifyAnthropicError(ctx, err)
	}
	c.log.Debug("llm: anthropic call completed", "model", model, "duration", duration, "stopReason", msg.StopReason)

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", newError(ProviderAnthropic, ErrInvalidResponse, errors.New("no text content in response"))
	}
	return sb.String(), nil
}

func classifyAnthropicError(ctx context.Context, err error) error {
	if cerr := classifyContext(ProviderAnthropic, ctx, err); cerr != nil {
		return cerr
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		// 529 is Anthropic's "overloaded".
		return newError(ProviderAnthropic, classifyStatus(apiErr.StatusCode), err)
	}
	return newError(ProviderAnthropic, ErrProviderUnavailable, err)
}

package analysis

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rfontain/glimpse/internal/config"
	"github.com/rfontain/glimpse/internal/errors"
)

// anthropicMaxTokens bounds the reply; the JSON verdict fits well
// within it.
const anthropicMaxTokens = 1024

// AnthropicProvider sends capture groups to the hosted Claude vision
// API. Failed calls are never retried here; the group stays unanalyzed
// for a later pass.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider reads the API key from the environment variable
// named in config. A missing key means the provider is unavailable.
func NewAnthropicProvider(cfg *config.Config) (*AnthropicProvider, error) {
	key := os.Getenv(cfg.AnthropicKeyEnv)
	if key == "" {
		return nil, errors.NewProviderUnavailable(ProviderClaude, cfg.AnthropicKeyEnv+" is not set")
	}
	return &AnthropicProvider{
		client: newAnthropicClient(key),
		model:  cfg.AnthropicModel,
	}, nil
}

// newAnthropicClient disables the SDK's built-in retries; an unanalyzed
// group is picked up again by the next pass.
func newAnthropicClient(key string, extra ...option.RequestOption) anthropic.Client {
	opts := append([]option.RequestOption{option.WithAPIKey(key), option.WithMaxRetries(0)}, extra...)
	return anthropic.NewClient(opts...)
}

func (p *AnthropicProvider) Name() string { return ProviderClaude }

// Analyze attaches every changed image first, then the prompt text,
// and expects a JSON-only reply.
func (p *AnthropicProvider) Analyze(ctx context.Context, req Request) (*Result, error) {
	if len(req.Images) == 0 {
		return nil, errors.NewInvalidRequest("no images to analyze")
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	for _, img := range req.Images {
		data, mediaType, err := EncodeImage(img.Path, req.ImageMode)
		if err != nil {
			return nil, errors.NewProviderFailed(ProviderClaude, "read image: "+err.Error())
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)))
	}

	prompt := singlePrompt(req)
	if req.Multi() {
		prompt = multiPrompt(req)
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return nil, errors.NewProviderFailed(ProviderClaude, err.Error())
	}

	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text = tb.Text
			break
		}
	}
	if text == "" {
		return nil, errors.NewProviderFailed(ProviderClaude, "empty response")
	}

	res, err := ParseResult(text)
	if err != nil {
		return nil, errors.NewProviderFailed(ProviderClaude, err.Error())
	}
	return res, nil
}

package broker

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicProvider backs llm_complete requests routed to Claude models. It
// lives only inside secretsbrokerd — the runtime process never links this
// file's API key.
type anthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

func newAnthropicProvider(apiKey, defaultModel string) *anthropicProvider {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	return &anthropicProvider{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (p *anthropicProvider) complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []anthropic.MessageParam
	for _, msg := range req.Messages {
		if msg.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &CompletionResult{
		Content:      text,
		FinishReason: string(msg.StopReason),
	}, nil
}

func (p *anthropicProvider) embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error) {
	return nil, fmt.Errorf("anthropic: embeddings not supported, route embed requests to the openai provider")
}

package broker

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openaiProvider backs llm_complete requests routed to GPT models and every
// embed request (Anthropic has no embeddings endpoint).
type openaiProvider struct {
	client         *openai.Client
	defaultModel   string
	embeddingModel string
}

func newOpenAIProvider(apiKey, defaultModel, embeddingModel string) *openaiProvider {
	if defaultModel == "" {
		defaultModel = openai.GPT4o
	}
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	return &openaiProvider{
		client:         openai.NewClient(apiKey),
		defaultModel:   defaultModel,
		embeddingModel: embeddingModel,
	}
}

func (p *openaiProvider) complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai completion: no choices returned")
	}

	return &CompletionResult{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

func (p *openaiProvider) embed(ctx context.Context, req EmbedRequest) (*EmbedResult, error) {
	model := req.Model
	if model == "" {
		model = p.embeddingModel
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: req.Input,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		vectors[data.Index] = data.Embedding
	}
	return &EmbedResult{Vectors: vectors}, nil
}

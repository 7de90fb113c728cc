package broker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// bedrockProvider routes llm_complete requests to AWS Bedrock-hosted
// foundation models via the Converse API. Credentials come from the AWS
// default chain (env, IAM role) — the broker process, not the runtime,
// assumes the role that can call Bedrock.
type bedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

func newBedrockProvider(ctx context.Context, region, defaultModel string) (*bedrockProvider, error) {
	if region == "" {
		region = "us-east-1"
	}
	if defaultModel == "" {
		defaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &bedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: defaultModel,
	}, nil
}

func (p *bedrockProvider) complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []types.Message
	for _, msg := range req.Messages {
		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Content}},
		})
	}

	converseReq := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(req.MaxTokens))}
	}

	out, err := p.client.Converse(ctx, converseReq)
	if err != nil {
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}

	var text string
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				text += textBlock.Value
			}
		}
	}

	return &CompletionResult{
		Content:      text,
		FinishReason: string(out.StopReason),
	}, nil
}

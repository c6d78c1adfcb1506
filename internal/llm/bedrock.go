package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

var _ converseAPI = (*bedrockruntime.Client)(nil)

type BedrockClient struct {
	api converseAPI
}

func NewBedrockClient(api converseAPI) *BedrockClient {
	return &BedrockClient{api: api}
}

func NewBedrockClientFromConfig(cfg aws.Config) *BedrockClient {
	return NewBedrockClient(bedrockruntime.NewFromConfig(cfg))
}

func (c *BedrockClient) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", errors.New("llm: bedrock model id is required")
	}

	system := make([]brtypes.SystemContentBlock, 0, len(req.System))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	msgs := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		var role brtypes.ConversationRole
		switch m.Role {
		case RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: content})
			continue
		case RoleUser:
			role = brtypes.ConversationRoleUser
		case RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return "", fmt.Errorf("llm: unsupported role %q", m.Role)
		}
		msgs = append(msgs, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
		})
	}

	var inference *brtypes.InferenceConfiguration
	if req.MaxTokens > 0 || req.Temperature > 0 {
		inference = &brtypes.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			inference.MaxTokens = aws.Int32(req.MaxTokens)
		}
		if req.Temperature > 0 {
			inference.Temperature = aws.Float32(req.Temperature)
		}
	}

	out, err := c.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          system,
		Messages:        msgs,
		InferenceConfig: inference,
	})
	if err != nil {
		return "", classifyBedrockError(req.Model, err)
	}
	return bedrockText(out)
}

func classifyBedrockError(model string, err error) error {
	var notFound *brtypes.ResourceNotFoundException
	var notReady *brtypes.ModelNotReadyException
	if errors.As(err, &notFound) || errors.As(err, &notReady) {
		return fmt.Errorf("llm: bedrock %s: %w: %w", model, types.ErrModelUnavailable, err)
	}
	return fmt.Errorf("llm: bedrock %s: %w", model, err)
}

func bedrockText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("llm: bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("llm: bedrock response did not include a message")
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("llm: bedrock response contained no text")
	}
	return text, nil
}

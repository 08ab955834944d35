package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"declarations/logging"
	"declarations/models"
	"declarations/stream"
	"declarations/tools"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicProvider streams steps from the Anthropic Messages API. Transient
// failures are retried by the SDK client before the stream opens.
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
	logger *slog.Logger
}

func NewAnthropicProvider(apiKey, model string, maxRetries int, logger *slog.Logger, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(maxRetries),
	}, opts...)
	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		model:  anthropic.Model(model),
		logger: logging.NewComponentLogger(logger, "anthropic"),
	}
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request, onText func(text string) error) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: anthropicMaxTokens,
		Messages:  convertToAnthropicMessages(req.Turns),
		Tools:     buildAnthropicToolSpecs(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	p.logger.Debug("Anthropic request", "model", p.model, "messages", len(params.Messages), "tools", len(params.Tools))

	events := p.client.Messages.NewStreaming(ctx, params)
	defer events.Close()

	message := anthropic.Message{}
	for events.Next() {
		event := events.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("failed to accumulate anthropic stream: %w", err)
		}

		switch event := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				if err := onText(delta.Text); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := events.Err(); err != nil {
		return nil, fmt.Errorf("failed to stream from Anthropic API: %w", err)
	}

	resp := &Response{
		FinishReason: anthropicFinishReason(message.StopReason),
		Usage: stream.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
		},
	}

	for _, block := range message.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += block.Text
		case anthropic.ToolUseBlock:
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to encode tool input for %s: %w", block.Name, err)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Args: args})
		}
	}

	p.logger.Debug("Anthropic response", "stop_reason", message.StopReason, "tool_calls", len(resp.ToolCalls))
	return resp, nil
}

func anthropicFinishReason(reason anthropic.StopReason) stream.FinishReason {
	switch reason {
	case anthropic.StopReasonToolUse:
		return stream.FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return stream.FinishLength
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return stream.FinishStop
	default:
		return stream.FinishUnknown
	}
}

func convertToAnthropicMessages(turns []Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, turn := range turns {
		switch turn.Role {
		case models.RoleUser:
			blocks := []anthropic.ContentBlockParamUnion{}
			if turn.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
			}
			for _, att := range turn.Attachments {
				blocks = append(blocks, anthropicAttachmentBlock(att))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		case models.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if turn.Text != "" {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: turn.Text},
				})
			}
			for _, call := range turn.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: argsOrEmpty(call.Args),
					},
				})
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case models.RoleTool:
			blocks := []anthropic.ContentBlockParamUnion{}
			for _, result := range turn.ToolResults {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: result.ToolCallID,
						Content: []anthropic.ToolResultBlockParamContentUnion{
							{OfText: &anthropic.TextBlockParam{Text: result.Content}},
						},
					},
				})
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	return messages
}

func anthropicAttachmentBlock(att models.Attachment) anthropic.ContentBlockParamUnion {
	content := readAttachment(att)
	if content.kind == attachmentImage && content.data != "" {
		return anthropic.NewImageBlockBase64(content.mediaType, content.data)
	}
	if content.kind == attachmentImage {
		return anthropic.NewTextBlock(fmt.Sprintf("The user attached an image: %s", att.URL))
	}
	return anthropic.NewTextBlock(content.text)
}

func buildAnthropicToolSpecs(definitions []tools.Definition) []anthropic.ToolUnionParam {
	var specs []anthropic.ToolUnionParam

	for _, def := range definitions {
		specs = append(specs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        string(def.Name),
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.Schema.Properties,
					Required:   def.Schema.Required,
				},
			},
		})
	}

	return specs
}

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"declarations/logging"
	"declarations/models"
	"declarations/resilience"
	"declarations/stream"
	"declarations/tools"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LLMProvider runs steps against a langchaingo model such as an Azure OpenAI
// deployment. Each step is a single completion; its text is forwarded once the
// step finishes, so a retry never repeats text the client already saw.
type LLMProvider struct {
	llm    llms.Model
	retry  resilience.RetryPolicy
	logger *slog.Logger
}

func NewAzureProvider(resource, apiKey, deployment, apiVersion string, retry resilience.RetryPolicy, logger *slog.Logger) (*LLMProvider, error) {
	llm, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL(fmt.Sprintf("https://%s.openai.azure.com", resource)),
		openai.WithAPIVersion(apiVersion),
		openai.WithToken(apiKey),
		openai.WithModel(deployment),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure OpenAI client: %w", err)
	}
	return NewLLMProvider(llm, retry, logger), nil
}

// NewLLMProvider wraps any langchaingo model.
func NewLLMProvider(llm llms.Model, retry resilience.RetryPolicy, logger *slog.Logger) *LLMProvider {
	return &LLMProvider{
		llm:    llm,
		retry:  retry,
		logger: logging.NewComponentLogger(logger, "azure"),
	}
}

func (p *LLMProvider) Generate(ctx context.Context, req Request, onText func(text string) error) (*Response, error) {
	messages := convertToLLMMessages(req.System, req.Turns)
	toolSpecs := buildLLMTools(req.Tools)

	var resp *llms.ContentResponse
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = p.llm.GenerateContent(ctx, messages, llms.WithTools(toolSpecs))
		if err != nil {
			p.logger.Warn("Model call failed", "error", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call Azure OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in Azure OpenAI response")
	}
	choice := resp.Choices[0]

	out := &Response{
		Text:         choice.Content,
		FinishReason: llmFinishReason(choice),
		Usage:        llmUsage(choice.GenerationInfo),
	}
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   call.ID,
			Name: call.FunctionCall.Name,
			Args: json.RawMessage(call.FunctionCall.Arguments),
		})
	}

	if out.Text != "" {
		if err := onText(out.Text); err != nil {
			return nil, err
		}
	}

	p.logger.Debug("Azure OpenAI response", "stop_reason", choice.StopReason, "tool_calls", len(out.ToolCalls))
	return out, nil
}

func llmFinishReason(choice *llms.ContentChoice) stream.FinishReason {
	if len(choice.ToolCalls) > 0 {
		return stream.FinishToolCalls
	}
	switch strings.ToLower(choice.StopReason) {
	case "stop", "":
		return stream.FinishStop
	case "length":
		return stream.FinishLength
	case "tool_calls", "function_call":
		return stream.FinishToolCalls
	case "content_filter":
		return stream.FinishError
	default:
		return stream.FinishUnknown
	}
}

func llmUsage(info map[string]any) stream.Usage {
	return stream.Usage{
		PromptTokens:     intFromInfo(info, "PromptTokens"),
		CompletionTokens: intFromInfo(info, "CompletionTokens"),
	}
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func convertToLLMMessages(system string, turns []Turn) []llms.MessageContent {
	messages := []llms.MessageContent{}
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}

	for _, turn := range turns {
		switch turn.Role {
		case models.RoleUser:
			parts := []llms.ContentPart{}
			if turn.Text != "" {
				parts = append(parts, llms.TextContent{Text: turn.Text})
			}
			for _, att := range turn.Attachments {
				parts = append(parts, llmAttachmentPart(att))
			}
			messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
		case models.RoleAssistant:
			parts := []llms.ContentPart{}
			if turn.Text != "" {
				parts = append(parts, llms.TextContent{Text: turn.Text})
			}
			for _, call := range turn.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: string(argsOrEmpty(call.Args)),
					},
				})
			}
			messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case models.RoleTool:
			// One message per result: the OpenAI API expects a tool message per call id.
			for _, result := range turn.ToolResults {
				messages = append(messages, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: result.ToolCallID,
						Name:       result.Name,
						Content:    result.Content,
					}},
				})
			}
		}
	}

	return messages
}

// llmAttachmentPart passes images by URL; OpenAI accepts data URLs there.
func llmAttachmentPart(att models.Attachment) llms.ContentPart {
	content := readAttachment(att)
	if content.kind == attachmentImage {
		return llms.ImageURLContent{URL: att.URL}
	}
	return llms.TextContent{Text: content.text}
}

func buildLLMTools(definitions []tools.Definition) []llms.Tool {
	specs := make([]llms.Tool, 0, len(definitions))
	for _, def := range definitions {
		specs = append(specs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        string(def.Name),
				Description: def.Description,
				Parameters:  def.Parameters(),
			},
		})
	}
	return specs
}

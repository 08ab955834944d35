package chat

import (
	"context"
	"fmt"
	"log/slog"

	"declarations/logging"
	"declarations/models"
	"declarations/stream"
	"declarations/tools"

	"github.com/google/uuid"
)

const DefaultMaxSteps = 30

// EventSink receives the events of one chat response in order.
type EventSink interface {
	Encode(event stream.Event) error
}

type Service struct {
	provider     Provider
	registry     *tools.Registry
	maxSteps     int
	systemPrompt string
	logger       *slog.Logger
	newID        func() string
}

type Option func(*Service)

func WithMaxSteps(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSteps = n
		}
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(s *Service) {
		s.systemPrompt = prompt
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logging.NewComponentLogger(logger, "chat")
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

func NewService(provider Provider, registry *tools.Registry, opts ...Option) *Service {
	s := &Service{
		provider:     provider,
		registry:     registry,
		maxSteps:     DefaultMaxSteps,
		systemPrompt: SystemPrompt,
		logger:       logging.NewComponentLogger(nil, "chat"),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stream runs the model over messages for at most maxSteps steps and writes
// the response to sink. Tool calls with a server-side executor are resolved
// here and fed back to the model; the first step that needs the client ends
// the response so the client can resolve its calls and submit again.
func (s *Service) Stream(ctx context.Context, messages []models.Message, sink EventSink) error {
	s.logger.Info("Starting chat stream", "messages", len(messages), "max_steps", s.maxSteps)

	system, turns := buildConversation(s.systemPrompt, messages)
	definitions := s.registry.Definitions()

	var total stream.Usage
	finish := stream.FinishStop

	for step := 0; ; step++ {
		if step >= s.maxSteps {
			s.logger.Warn("Step ceiling reached", "max_steps", s.maxSteps)
			finish = stream.FinishLength
			break
		}

		if err := sink.Encode(stream.StartStepEvent{MessageID: "msg-" + s.newID()}); err != nil {
			return err
		}

		s.logger.Debug("Calling model", "step", step, "turns", len(turns), "tools", len(definitions))
		resp, err := s.provider.Generate(ctx, Request{System: system, Turns: turns, Tools: definitions}, func(text string) error {
			return sink.Encode(stream.TextEvent{Text: text})
		})
		if err != nil {
			s.logger.Error("Failed to call model", "step", step, "error", err)
			if encErr := sink.Encode(stream.ErrorEvent{Message: fmt.Sprintf("failed to call model: %v", err)}); encErr != nil {
				s.logger.Debug("Failed to report model error to client", "error", encErr)
			}
			return fmt.Errorf("failed to call model: %w", err)
		}
		total = total.Add(resp.Usage)

		s.logger.Info("Model step completed", "step", step, "finish_reason", resp.FinishReason, "tool_calls", len(resp.ToolCalls))

		results, needsClient, err := s.resolveToolCalls(ctx, resp.ToolCalls, sink)
		if err != nil {
			return err
		}

		continued := len(resp.ToolCalls) > 0 && !needsClient
		if err := sink.Encode(stream.FinishStepEvent{
			FinishReason: resp.FinishReason,
			Usage:        resp.Usage,
			IsContinued:  continued,
		}); err != nil {
			return err
		}

		if !continued {
			finish = resp.FinishReason
			break
		}

		turns = append(turns,
			Turn{Role: models.RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls},
			Turn{Role: models.RoleTool, ToolResults: results},
		)
	}

	s.logger.Info("Chat stream completed", "finish_reason", finish, "prompt_tokens", total.PromptTokens, "completion_tokens", total.CompletionTokens)
	return sink.Encode(stream.FinishMessageEvent{FinishReason: finish, Usage: total})
}

// resolveToolCalls announces every call in emission order and resolves the
// ones the server owns. Unknown tools and malformed arguments resolve to an
// error result, so the client never dispatches them.
func (s *Service) resolveToolCalls(ctx context.Context, calls []ToolCall, sink EventSink) ([]ToolResult, bool, error) {
	var (
		results     []ToolResult
		needsClient bool
	)

	for _, call := range calls {
		call.Args = argsOrEmpty(call.Args)
		if err := sink.Encode(stream.ToolCallEvent{ToolCallID: call.ID, ToolName: call.Name, Args: call.Args}); err != nil {
			return nil, false, err
		}

		def, decoded, err := s.decode(call)
		if err == nil && !def.ServerSide() {
			needsClient = true
			continue
		}

		var result string
		if err == nil {
			s.logger.Info("Executing tool", "tool", call.Name, "call_id", call.ID)
			result, err = def.Execute(ctx, decoded)
		}
		if err != nil {
			s.logger.Warn("Tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
			result = fmt.Sprintf("Error: %v", err)
		} else {
			s.logger.Info("Tool execution result", "tool", call.Name, "result", result)
		}

		if err := sink.Encode(stream.ToolResultEvent{ToolCallID: call.ID, Result: result}); err != nil {
			return nil, false, err
		}
		results = append(results, ToolResult{ToolCallID: call.ID, Name: call.Name, Content: result})
	}

	return results, needsClient, nil
}

func (s *Service) decode(call ToolCall) (tools.Definition, tools.Call, error) {
	def, err := s.registry.Lookup(call.Name)
	if err != nil {
		return tools.Definition{}, nil, err
	}
	decoded, err := def.Decode(call.Args)
	if err != nil {
		return tools.Definition{}, nil, err
	}
	return def, decoded, nil
}

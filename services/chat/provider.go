package chat

import (
	"context"
	"encoding/json"

	"declarations/models"
	"declarations/stream"
	"declarations/tools"
)

// Provider runs one model step: a single request to the hosted model,
// streaming text through onText as it arrives.
type Provider interface {
	Generate(ctx context.Context, req Request, onText func(text string) error) (*Response, error)
}

type Request struct {
	System string
	Turns  []Turn
	Tools  []tools.Definition
}

// Turn is one provider-neutral conversation entry.
type Turn struct {
	Role        models.Role
	Text        string
	Attachments []models.Attachment
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
}

type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason stream.FinishReason
	Usage        stream.Usage
}

func argsOrEmpty(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	return args
}

// Package stream implements the line-oriented data stream spoken between the
// chat endpoint and its clients. Every line is "<code>:<json>\n".
package stream

import "encoding/json"

const (
	codeText          = '0'
	codeError         = '3'
	codeToolCall      = '9'
	codeToolResult    = 'a'
	codeFinishStep    = 'e'
	codeFinishMessage = 'd'
	codeStartStep     = 'f'
)

// HeaderName and HeaderValue identify a response carrying this protocol.
const (
	HeaderName  = "X-Vercel-AI-Data-Stream"
	HeaderValue = "v1"
	ContentType = "text/plain; charset=utf-8"
)

type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool-calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
	FinishUnknown   FinishReason = "unknown"
)

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
	}
}

// Event is one decoded line of the stream.
type Event interface {
	code() byte
}

type TextEvent struct {
	Text string
}

type ErrorEvent struct {
	Message string
}

type ToolCallEvent struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type ToolResultEvent struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type StartStepEvent struct {
	MessageID string `json:"messageId"`
}

type FinishStepEvent struct {
	FinishReason FinishReason `json:"finishReason"`
	Usage        Usage        `json:"usage"`
	IsContinued  bool         `json:"isContinued"`
}

type FinishMessageEvent struct {
	FinishReason FinishReason `json:"finishReason"`
	Usage        Usage        `json:"usage"`
}

func (TextEvent) code() byte          { return codeText }
func (ErrorEvent) code() byte         { return codeError }
func (ToolCallEvent) code() byte      { return codeToolCall }
func (ToolResultEvent) code() byte    { return codeToolResult }
func (StartStepEvent) code() byte     { return codeStartStep }
func (FinishStepEvent) code() byte    { return codeFinishStep }
func (FinishMessageEvent) code() byte { return codeFinishMessage }

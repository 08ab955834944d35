package models

import (
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleAssistant, RoleUser, RoleTool:
		return true
	}
	return false
}

// HiddenIDPrefix marks messages that exist only as context for the model.
const HiddenIDPrefix = "hide-"

type InvocationState string

const (
	InvocationStateCall   InvocationState = "call"
	InvocationStateResult InvocationState = "result"
)

type Message struct {
	ID              string           `json:"id,omitempty"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
	Attachments     []Attachment     `json:"experimental_attachments,omitempty"`
}

// Attachment is a file sent along with a user message. URL is usually a
// base64 data URL.
type Attachment struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url"`
}

// Hidden reports whether the message should be kept out of the rendered transcript.
func (m Message) Hidden() bool {
	return strings.HasPrefix(m.ID, HiddenIDPrefix)
}

// Resolved reports whether every tool invocation on the message has a result.
// A message without invocations is not considered resolved.
func (m Message) Resolved() bool {
	if len(m.ToolInvocations) == 0 {
		return false
	}
	for _, inv := range m.ToolInvocations {
		if inv.State != InvocationStateResult {
			return false
		}
	}
	return true
}

type ToolInvocation struct {
	State      InvocationState `json:"state"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     string          `json:"result,omitempty"`
}

type ChatRequest struct {
	Messages []Message `json:"messages"`
}

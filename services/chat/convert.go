package chat

import (
	"strings"

	"declarations/models"
)

// buildConversation turns the client transcript into a system instruction and
// provider turns. Greetings the assistant sent before the first user message
// move into the instruction, since providers expect a user turn first.
// Invocations without a result were never resolved and are dropped.
func buildConversation(basePrompt string, messages []models.Message) (string, []Turn) {
	system := []string{basePrompt}
	var turns []Turn
	seenUser := false

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			if strings.TrimSpace(msg.Content) != "" {
				system = append(system, msg.Content)
			}

		case models.RoleUser:
			seenUser = true
			if strings.TrimSpace(msg.Content) == "" && len(msg.Attachments) == 0 {
				continue
			}
			turns = append(turns, Turn{Role: models.RoleUser, Text: msg.Content, Attachments: msg.Attachments})

		case models.RoleAssistant:
			calls, results := resolvedInvocations(msg.ToolInvocations)
			if !seenUser && len(calls) == 0 {
				if strings.TrimSpace(msg.Content) != "" {
					system = append(system, greetingInstruction+msg.Content)
				}
				continue
			}
			if msg.Content == "" && len(calls) == 0 {
				continue
			}
			turns = append(turns, Turn{Role: models.RoleAssistant, Text: msg.Content, ToolCalls: calls})
			if len(results) > 0 {
				turns = append(turns, Turn{Role: models.RoleTool, ToolResults: results})
			}

		case models.RoleTool:
			_, results := resolvedInvocations(msg.ToolInvocations)
			if len(results) > 0 {
				turns = append(turns, Turn{Role: models.RoleTool, ToolResults: results})
			}
		}
	}

	return strings.Join(system, "\n\n"), turns
}

func resolvedInvocations(invocations []models.ToolInvocation) ([]ToolCall, []ToolResult) {
	var (
		calls   []ToolCall
		results []ToolResult
	)
	for _, inv := range invocations {
		if inv.State != models.InvocationStateResult {
			continue
		}
		calls = append(calls, ToolCall{ID: inv.ToolCallID, Name: inv.ToolName, Args: argsOrEmpty(inv.Args)})
		results = append(results, ToolResult{ToolCallID: inv.ToolCallID, Name: inv.ToolName, Content: inv.Result})
	}
	return calls, results
}

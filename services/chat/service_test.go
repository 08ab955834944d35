package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"declarations/models"
	"declarations/stream"
	"declarations/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	responses []*Response
	err       error
	requests  []Request
}

func (p *scriptedProvider) Generate(ctx context.Context, req Request, onText func(text string) error) (*Response, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	if resp.Text != "" {
		if err := onText(resp.Text); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

type recordingSink struct {
	events []stream.Event
}

func (s *recordingSink) Encode(event stream.Event) error {
	s.events = append(s.events, event)
	return nil
}

type fakeGifs struct {
	url string
	err error
}

func (f fakeGifs) SearchGif(ctx context.Context, query string) (string, error) {
	if f.err != nil {
		return "", fmt.Errorf("%w for query %q", f.err, query)
	}
	return f.url, nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%d", n)
	}
}

func userMessages(text string) []models.Message {
	return []models.Message{{ID: "u1", Role: models.RoleUser, Content: text}}
}

func TestServiceStreamTextOnly(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{{
		Text:         "Wat is de titel van je declaratie?",
		FinishReason: stream.FinishStop,
		Usage:        stream.Usage{PromptTokens: 20, CompletionTokens: 8},
	}}}
	sink := &recordingSink{}
	service := NewService(provider, tools.NewRegistry(nil), WithIDGenerator(sequentialIDs()))

	err := service.Stream(context.Background(), userMessages("Hoi"), sink)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.StartStepEvent{MessageID: "msg-1"},
		stream.TextEvent{Text: "Wat is de titel van je declaratie?"},
		stream.FinishStepEvent{FinishReason: stream.FinishStop, Usage: stream.Usage{PromptTokens: 20, CompletionTokens: 8}},
		stream.FinishMessageEvent{FinishReason: stream.FinishStop, Usage: stream.Usage{PromptTokens: 20, CompletionTokens: 8}},
	}, sink.events)

	require.Len(t, provider.requests, 1)
	assert.Contains(t, provider.requests[0].System, "declarations")
	assert.Len(t, provider.requests[0].Tools, 7)
}

func TestServiceStreamResolvesServerToolsThenHandsOffToClient(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{
		{
			ToolCalls:    []ToolCall{{ID: "call-gif", Name: "searchGif", Args: json.RawMessage(`{"query":"taxi"}`)}},
			FinishReason: stream.FinishToolCalls,
			Usage:        stream.Usage{PromptTokens: 10, CompletionTokens: 2},
		},
		{
			Text: "Ik voeg de taxi toe.",
			ToolCalls: []ToolCall{{
				ID:   "call-add",
				Name: "addCostRow",
				Args: json.RawMessage(`{"amount":42.5,"expenseTitle":"Taxi","gifUrl":"https://media.giphy.com/taxi.gif"}`),
			}},
			FinishReason: stream.FinishToolCalls,
			Usage:        stream.Usage{PromptTokens: 15, CompletionTokens: 3},
		},
	}}
	sink := &recordingSink{}
	registry := tools.NewRegistry(fakeGifs{url: "https://media.giphy.com/taxi.gif"})
	service := NewService(provider, registry, WithIDGenerator(sequentialIDs()))

	err := service.Stream(context.Background(), userMessages("Taxi van 42,50"), sink)
	require.NoError(t, err)

	assert.Equal(t, []stream.Event{
		stream.StartStepEvent{MessageID: "msg-1"},
		stream.ToolCallEvent{ToolCallID: "call-gif", ToolName: "searchGif", Args: json.RawMessage(`{"query":"taxi"}`)},
		stream.ToolResultEvent{ToolCallID: "call-gif", Result: "https://media.giphy.com/taxi.gif"},
		stream.FinishStepEvent{FinishReason: stream.FinishToolCalls, Usage: stream.Usage{PromptTokens: 10, CompletionTokens: 2}, IsContinued: true},
		stream.StartStepEvent{MessageID: "msg-2"},
		stream.TextEvent{Text: "Ik voeg de taxi toe."},
		stream.ToolCallEvent{
			ToolCallID: "call-add",
			ToolName:   "addCostRow",
			Args:       json.RawMessage(`{"amount":42.5,"expenseTitle":"Taxi","gifUrl":"https://media.giphy.com/taxi.gif"}`),
		},
		stream.FinishStepEvent{FinishReason: stream.FinishToolCalls, Usage: stream.Usage{PromptTokens: 15, CompletionTokens: 3}},
		stream.FinishMessageEvent{FinishReason: stream.FinishToolCalls, Usage: stream.Usage{PromptTokens: 25, CompletionTokens: 5}},
	}, sink.events)

	require.Len(t, provider.requests, 2)
	second := provider.requests[1].Turns
	require.Len(t, second, 3)
	assert.Equal(t, models.RoleAssistant, second[1].Role)
	assert.Equal(t, "call-gif", second[1].ToolCalls[0].ID)
	assert.Equal(t, models.RoleTool, second[2].Role)
	assert.Equal(t, []ToolResult{{ToolCallID: "call-gif", Name: "searchGif", Content: "https://media.giphy.com/taxi.gif"}}, second[2].ToolResults)
}

func TestServiceStreamFailsClosedOnBadToolCalls(t *testing.T) {
	tests := []struct {
		name     string
		call     ToolCall
		gifs     tools.GifSearcher
		expected string
	}{
		{
			name:     "unknown tool",
			call:     ToolCall{ID: "call-1", Name: "submitExpense", Args: json.RawMessage(`{}`)},
			expected: `Error: unknown tool: "submitExpense"`,
		},
		{
			name:     "malformed arguments",
			call:     ToolCall{ID: "call-1", Name: "addCostRow", Args: json.RawMessage(`{"expenseTitle":"Taxi"}`)},
			expected: `Error: invalid tool arguments: addCostRow: missing required argument "amount"`,
		},
		{
			name:     "no gif found",
			call:     ToolCall{ID: "call-1", Name: "searchGif", Args: json.RawMessage(`{"query":"cat"}`)},
			gifs:     fakeGifs{err: tools.ErrNoGifFound},
			expected: `Error: no gif found for query "cat"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{responses: []*Response{
				{ToolCalls: []ToolCall{tt.call}, FinishReason: stream.FinishToolCalls},
				{Text: "Dat ging mis.", FinishReason: stream.FinishStop},
			}}
			sink := &recordingSink{}
			service := NewService(provider, tools.NewRegistry(tt.gifs), WithIDGenerator(sequentialIDs()))

			require.NoError(t, service.Stream(context.Background(), userMessages("hoi"), sink))

			require.Contains(t, sink.events, stream.ToolResultEvent{ToolCallID: "call-1", Result: tt.expected})
			last := sink.events[len(sink.events)-1]
			assert.Equal(t, stream.FinishMessageEvent{FinishReason: stream.FinishStop}, last)

			require.Len(t, provider.requests, 2)
			turns := provider.requests[1].Turns
			assert.Equal(t, tt.expected, turns[len(turns)-1].ToolResults[0].Content)
		})
	}
}

func TestServiceStreamStepCeiling(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{{
		ToolCalls:    []ToolCall{{ID: "call", Name: "searchGif", Args: json.RawMessage(`{"query":"loop"}`)}},
		FinishReason: stream.FinishToolCalls,
	}}}
	sink := &recordingSink{}
	service := NewService(provider, tools.NewRegistry(fakeGifs{url: "https://media.giphy.com/loop.gif"}), WithMaxSteps(3))

	require.NoError(t, service.Stream(context.Background(), userMessages("loop"), sink))

	assert.Len(t, provider.requests, 3)
	starts := 0
	for _, ev := range sink.events {
		if _, ok := ev.(stream.StartStepEvent); ok {
			starts++
		}
	}
	assert.Equal(t, 3, starts)
	assert.Equal(t, stream.FinishMessageEvent{FinishReason: stream.FinishLength}, sink.events[len(sink.events)-1])
}

func TestServiceStreamProviderFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("429 rate limited")}
	sink := &recordingSink{}
	service := NewService(provider, tools.NewRegistry(nil), WithIDGenerator(sequentialIDs()))

	err := service.Stream(context.Background(), userMessages("hoi"), sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429 rate limited")

	require.Len(t, sink.events, 2)
	assert.Equal(t, stream.ErrorEvent{Message: "failed to call model: 429 rate limited"}, sink.events[1])
}

func TestBuildConversation(t *testing.T) {
	messages := []models.Message{
		{ID: "hide-initialPrompt", Role: models.RoleSystem, Content: "Answer in Dutch."},
		{ID: "start-question", Role: models.RoleAssistant, Content: "Hallo! Wat is de titel?"},
		{ID: "u1", Role: models.RoleUser, Content: "Congres in Berlijn"},
		{
			ID:      "a1",
			Role:    models.RoleAssistant,
			Content: "Ik zet de titel.",
			ToolInvocations: []models.ToolInvocation{
				{State: models.InvocationStateResult, ToolCallID: "c1", ToolName: "setTitleOfBusinessExpense", Args: json.RawMessage(`{"title":"Congres"}`), Result: "Set title to Congres"},
				{State: models.InvocationStateCall, ToolCallID: "c2", ToolName: "askForConfirmationOfBussinessExpense"},
			},
		},
		{ID: "hide-c3", Role: models.RoleUser, Content: "Confirmation of business expense declined"},
		{ID: "u2", Role: models.RoleUser, Content: "   "},
	}

	system, turns := buildConversation("BASE", messages)

	assert.Equal(t, "BASE\n\nAnswer in Dutch.\n\n"+greetingInstruction+"Hallo! Wat is de titel?", system)
	require.Len(t, turns, 4)

	assert.Equal(t, Turn{Role: models.RoleUser, Text: "Congres in Berlijn"}, turns[0])

	assert.Equal(t, models.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Ik zet de titel.", turns[1].Text)
	require.Len(t, turns[1].ToolCalls, 1)
	assert.Equal(t, "c1", turns[1].ToolCalls[0].ID)

	assert.Equal(t, Turn{Role: models.RoleTool, ToolResults: []ToolResult{{ToolCallID: "c1", Name: "setTitleOfBusinessExpense", Content: "Set title to Congres"}}}, turns[2])
	assert.Equal(t, Turn{Role: models.RoleUser, Text: "Confirmation of business expense declined"}, turns[3])
}

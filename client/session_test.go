package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"declarations/models"
	"declarations/stream"
	"declarations/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceStream struct {
	events []stream.Event
	onNext func(i int)
	i      int
}

func (s *sliceStream) Next() (stream.Event, error) {
	if s.onNext != nil {
		s.onNext(s.i)
	}
	if s.i >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func (s *sliceStream) Close() error { return nil }

// fakeAPI replays one scripted response per request and records transcripts.
type fakeAPI struct {
	mu          sync.Mutex
	responses   [][]stream.Event
	submissions [][]models.Message
	onNext      func(i int)
	block       chan struct{}
	entered     chan struct{}
}

func (f *fakeAPI) Chat(ctx context.Context, messages []models.Message) (EventStream, error) {
	f.mu.Lock()
	f.submissions = append(f.submissions, messages)
	var events []stream.Event
	if len(f.responses) > 0 {
		events = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	f.mu.Unlock()

	if f.entered != nil {
		close(f.entered)
		f.entered = nil
	}
	if f.block != nil {
		<-f.block
	}
	return &sliceStream{events: events, onNext: f.onNext}, nil
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func call(id string, name tools.Name, args string) stream.ToolCallEvent {
	return stream.ToolCallEvent{ToolCallID: id, ToolName: string(name), Args: json.RawMessage(args)}
}

func text(t string) []stream.Event {
	return []stream.Event{
		stream.StartStepEvent{MessageID: "msg-text"},
		stream.TextEvent{Text: t},
		stream.FinishMessageEvent{FinishReason: stream.FinishStop},
	}
}

func newTestSession(api ChatAPI, opts ...Option) *Session {
	opts = append([]Option{WithIDGenerator(sequentialIDs("id"))}, opts...)
	return NewSession(api, tools.NewRegistry(nil), opts...)
}

func TestSessionStartsWithGreeting(t *testing.T) {
	s := newTestSession(&fakeAPI{})

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, GreetingID, msgs[0].ID)
	assert.Equal(t, models.RoleAssistant, msgs[0].Role)
	assert.Equal(t, Greeting, msgs[0].Content)
}

func TestSessionTaxiScenario(t *testing.T) {
	api := &fakeAPI{responses: [][]stream.Event{
		{
			stream.StartStepEvent{MessageID: "msg-1"},
			call("c1", tools.AddCostRow, `{"amount":42.5,"expenseTitle":"Taxi"}`),
			stream.FinishMessageEvent{FinishReason: stream.FinishToolCalls},
		},
		text("Toegevoegd."),
		{call("c2", tools.UpdateExpenseRow, `{"expenseId":"id-2","amount":45,"expenseTitle":"Taxi ride"}`)},
		text("Aangepast."),
		{call("c3", tools.RemoveCostRow, `{"expenseId":"id-2"}`)},
		text("Verwijderd."),
	}}
	s := newTestSession(api)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, "Taxi 42,50"))
	rows := s.Declaration().Rows
	require.Len(t, rows, 1)
	assert.Equal(t, models.ExpenseRow{ID: "id-2", Title: "Taxi", Amount: 42.5}, rows[0])

	require.Len(t, api.submissions, 2)
	resubmitted := api.submissions[1]
	last := resubmitted[len(resubmitted)-1]
	assert.Equal(t, "msg-1", last.ID)
	assert.Equal(t, []models.ToolInvocation{{
		State:      models.InvocationStateResult,
		ToolCallID: "c1",
		ToolName:   "addCostRow",
		Args:       json.RawMessage(`{"amount":42.5,"expenseTitle":"Taxi"}`),
		Result:     "Added expense with id-2",
	}}, last.ToolInvocations)

	require.NoError(t, s.Send(ctx, "Maak er Taxi ride 45 van"))
	assert.Equal(t, []models.ExpenseRow{{ID: "id-2", Title: "Taxi ride", Amount: 45}}, s.Declaration().Rows)
	assert.InDelta(t, 45.0, s.Declaration().Total(), 1e-9)

	require.NoError(t, s.Send(ctx, "Verwijder de taxi"))
	assert.Empty(t, s.Declaration().Rows)
	assert.Zero(t, s.Declaration().Total())
	assert.Len(t, api.submissions, 6)
}

func TestSessionUsesServerResultForSearchGif(t *testing.T) {
	api := &fakeAPI{responses: [][]stream.Event{
		{
			call("g1", tools.SearchGif, `{"query":"taxi"}`),
			stream.ToolResultEvent{ToolCallID: "g1", Result: "https://media.giphy.com/taxi.gif"},
			call("c1", tools.AddCostRow, `{"amount":10,"expenseTitle":"Taxi","gifUrl":"https://media.giphy.com/taxi.gif"}`),
		},
		text("Klaar."),
	}}
	var results []models.ToolInvocation
	s := newTestSession(api, WithObserver(Observer{
		OnToolResult: func(inv models.ToolInvocation) { results = append(results, inv) },
	}))

	require.NoError(t, s.Send(context.Background(), "Taxi met gif"))

	require.Len(t, results, 2)
	assert.Equal(t, "https://media.giphy.com/taxi.gif", results[0].Result)
	assert.Equal(t, "https://media.giphy.com/taxi.gif", s.Declaration().Rows[0].GifURL)
}

func TestSessionFailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		event    stream.ToolCallEvent
		expected string
	}{
		{
			name:     "unknown tool",
			event:    call("c1", "submitExpense", `{}`),
			expected: `Error: unknown tool: "submitExpense"`,
		},
		{
			name:     "malformed arguments",
			event:    call("c1", tools.AddCostRow, `{"amount":"veel","expenseTitle":"Taxi"}`),
			expected: "Error: invalid tool arguments: addCostRow",
		},
		{
			name:     "server tool without result",
			event:    call("c1", tools.SearchGif, `{"query":"cat"}`),
			expected: "Error: " + missingResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{responses: [][]stream.Event{{tt.event}, text("Sorry.")}}
			s := newTestSession(api)

			require.NoError(t, s.Send(context.Background(), "hoi"))

			assert.Empty(t, s.Declaration().Rows)
			require.Len(t, api.submissions, 2)
			resubmitted := api.submissions[1]
			inv := resubmitted[len(resubmitted)-1].ToolInvocations[0]
			assert.Equal(t, models.InvocationStateResult, inv.State)
			assert.Contains(t, inv.Result, tt.expected)
		})
	}
}

func TestSessionConfirmationDeclined(t *testing.T) {
	api := &fakeAPI{responses: [][]stream.Event{
		{
			stream.TextEvent{Text: "Wil je indienen?"},
			call("c1", tools.AskForConfirmation, `{}`),
		},
		text("Oké, niet ingediend."),
	}}
	var requested []string
	s := newTestSession(api, WithObserver(Observer{
		OnConfirmationRequested: func(id string) { requested = append(requested, id) },
	}))
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, "Klaar"))

	id, pending := s.PendingConfirmation()
	require.True(t, pending)
	assert.Equal(t, []string{id}, requested)
	require.Len(t, api.submissions, 1)

	msgs := s.Messages()
	assert.Equal(t, "Asking for confirmation, no result yet", msgs[len(msgs)-1].ToolInvocations[0].Result)

	require.NoError(t, s.Confirm(ctx, false))

	_, pending = s.PendingConfirmation()
	assert.False(t, pending)
	require.Len(t, api.submissions, 2)
	sent := api.submissions[1]
	assert.Equal(t, models.Message{
		ID:      "hide-" + id,
		Role:    models.RoleUser,
		Content: "Confirmation of business expense declined",
	}, sent[len(sent)-1])

	for _, msg := range s.VisibleMessages() {
		assert.False(t, msg.Hidden())
	}
	assert.Len(t, s.VisibleMessages(), len(s.Messages())-1)
}

func TestSessionConfirmWithoutRequest(t *testing.T) {
	api := &fakeAPI{}
	s := newTestSession(api)

	assert.ErrorIs(t, s.Confirm(context.Background(), true), ErrNoPendingConfirmation)
	assert.Empty(t, api.submissions)
}

func TestSessionRejectsSecondConfirmation(t *testing.T) {
	api := &fakeAPI{responses: [][]stream.Event{{
		call("c1", tools.AskForConfirmation, `{}`),
		call("c2", tools.AskForConfirmation, `{}`),
	}}}
	s := newTestSession(api)

	require.NoError(t, s.Send(context.Background(), "Indienen"))

	msgs := s.Messages()
	invs := msgs[len(msgs)-1].ToolInvocations
	require.Len(t, invs, 2)
	assert.Equal(t, "Asking for confirmation, no result yet", invs[0].Result)
	assert.Equal(t, "Error: "+ErrConfirmationPending.Error(), invs[1].Result)

	id, pending := s.PendingConfirmation()
	assert.True(t, pending)
	assert.Equal(t, "id-2", id)
}

func TestSessionStepCeiling(t *testing.T) {
	api := &fakeAPI{responses: [][]stream.Event{{
		call("c1", tools.SetTitleOfBusinessExpense, `{"title":"Lus"}`),
	}}}
	s := newTestSession(api, WithMaxSteps(3))

	require.NoError(t, s.Send(context.Background(), "hoi"))
	assert.Len(t, api.submissions, 3)
}

func TestSessionSingleFlight(t *testing.T) {
	api := &fakeAPI{
		responses: [][]stream.Event{text("Hallo")},
		block:     make(chan struct{}),
		entered:   make(chan struct{}),
	}
	s := newTestSession(api)
	entered := api.entered

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "eerste") }()

	<-entered
	assert.ErrorIs(t, s.Send(context.Background(), "tweede"), ErrRequestInFlight)
	assert.ErrorIs(t, s.Confirm(context.Background(), true), ErrRequestInFlight)

	close(api.block)
	require.NoError(t, <-done)
	assert.Len(t, api.submissions, 1)
}

func TestSessionCancellationDiscardsUnresolvedCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeAPI{
		responses: [][]stream.Event{{
			stream.StartStepEvent{MessageID: "msg-1"},
			call("g1", tools.SearchGif, `{"query":"taxi"}`),
			call("c1", tools.AddCostRow, `{"amount":10,"expenseTitle":"Taxi"}`),
		}},
		onNext: func(i int) {
			if i == 2 {
				cancel()
			}
		},
	}
	s := newTestSession(api)

	err := s.Send(ctx, "Taxi")
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, s.Declaration().Rows)
	assert.Len(t, api.submissions, 1)
	for _, msg := range s.Messages() {
		assert.Empty(t, msg.ToolInvocations)
	}
}

func TestSessionStreamError(t *testing.T) {
	api := &fakeAPI{responses: [][]stream.Event{{
		stream.StartStepEvent{MessageID: "msg-1"},
		stream.TextEvent{Text: "Even kijken"},
		stream.ErrorEvent{Message: "failed to call model: 503"},
	}}}
	var errs []string
	s := newTestSession(api, WithObserver(Observer{OnError: func(m string) { errs = append(errs, m) }}))

	err := s.Send(context.Background(), "hoi")
	assert.ErrorIs(t, err, ErrStreamFailed)
	assert.Equal(t, []string{"failed to call model: 503"}, errs)
	assert.Len(t, api.submissions, 1)

	msgs := s.Messages()
	assert.Equal(t, "Even kijken", msgs[len(msgs)-1].Content)
}

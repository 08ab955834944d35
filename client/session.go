// Package client drives a declaration conversation against the chat
// endpoint: it streams responses, resolves the tools the client owns and
// resubmits until the assistant needs the user again.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"declarations/declaration"
	"declarations/logging"
	"declarations/models"
	"declarations/stream"
	"declarations/tools"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultMaxSteps = 20

	GreetingID = "start-question"
	Greeting   = "Hallo! Ik zal je helpen met het declareren van je zakelijke uitgaven. Geef me alsjeblieft de titel van je zakelijke uitgave."
)

var (
	ErrRequestInFlight = errors.New("a chat request is already in flight")
	ErrStreamFailed    = errors.New("chat stream failed")
)

const missingResult = "no result received for tool call"

// Observer receives session activity as it happens. Nil hooks are skipped.
type Observer struct {
	OnText                  func(text string)
	OnToolCall              func(inv models.ToolInvocation)
	OnToolResult            func(inv models.ToolInvocation)
	OnConfirmationRequested func(id string)
	OnError                 func(message string)
}

type Session struct {
	api        ChatAPI
	dispatcher *Dispatcher
	maxSteps   int
	observer   Observer
	logger     *slog.Logger
	newID      func() string

	flight sync.Mutex

	mu           sync.Mutex
	messages     []models.Message
	state        declaration.State
	confirmation Confirmation
}

type Option func(*Session)

func WithMaxSteps(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxSteps = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logging.NewComponentLogger(logger, "session")
	}
}

// WithIDGenerator replaces uuid generation for message, row and confirmation ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) {
		s.newID = newID
	}
}

// NewSession starts a conversation with the assistant greeting. The registry
// decides which calls the client resolves itself.
func NewSession(api ChatAPI, registry *tools.Registry, opts ...Option) *Session {
	s := &Session{
		api:      api,
		maxSteps: DefaultMaxSteps,
		logger:   logging.NewComponentLogger(nil, "session"),
		newID:    uuid.NewString,
		messages: []models.Message{{ID: GreetingID, Role: models.RoleAssistant, Content: Greeting}},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = NewDispatcher(registry, s.newID)
	return s
}

// Send adds a user message and runs the conversation until the assistant
// waits for the user.
func (s *Session) Send(ctx context.Context, text string, attachments ...models.Attachment) error {
	if !s.flight.TryLock() {
		return ErrRequestInFlight
	}
	defer s.flight.Unlock()

	s.mu.Lock()
	s.messages = append(s.messages, models.Message{
		ID:          s.newID(),
		Role:        models.RoleUser,
		Content:     text,
		Attachments: attachments,
	})
	s.mu.Unlock()

	return s.run(ctx)
}

// Confirm answers the pending confirmation and lets the assistant react.
func (s *Session) Confirm(ctx context.Context, yes bool) error {
	if !s.flight.TryLock() {
		return ErrRequestInFlight
	}
	defer s.flight.Unlock()

	s.mu.Lock()
	msg, err := s.confirmation.Answer(yes)
	if err == nil {
		s.messages = append(s.messages, msg)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("Confirmation answered", "confirmed", yes)
	return s.run(ctx)
}

// Messages returns a copy of the full transcript, hidden messages included.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

// VisibleMessages returns the transcript without hidden messages.
func (s *Session) VisibleMessages() []models.Message {
	return lo.Filter(s.Messages(), func(msg models.Message, _ int) bool { return !msg.Hidden() })
}

func (s *Session) Declaration() declaration.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PendingConfirmation() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmation.Pending()
}

func (s *Session) run(ctx context.Context) error {
	for step := 0; step < s.maxSteps; step++ {
		if err := s.submit(ctx); err != nil {
			return err
		}
		if !s.shouldContinue() {
			return nil
		}
		s.logger.Debug("Resubmitting resolved tool results", "step", step+1)
	}
	s.logger.Warn("Step ceiling reached", "max_steps", s.maxSteps)
	return nil
}

// shouldContinue reports whether the last assistant message only carries
// resolved tool calls, which the model still has to see.
func (s *Session) shouldContinue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, pending := s.confirmation.Pending(); pending {
		return false
	}
	last := s.messages[len(s.messages)-1]
	return last.Role == models.RoleAssistant && last.Resolved()
}

// submit sends the transcript and folds one streamed response into a single
// assistant message.
func (s *Session) submit(ctx context.Context) error {
	events, err := s.api.Chat(ctx, s.Messages())
	if err != nil {
		s.notifyError(err.Error())
		return err
	}
	defer events.Close()

	msg := models.Message{Role: models.RoleAssistant}
	var streamErr error

	for {
		ev, err := events.Next()
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.logger.Info("Chat request cancelled", "error", ctxErr)
			s.commit(discardUnresolved(msg))
			return ctxErr
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.commit(discardUnresolved(msg))
			s.notifyError(err.Error())
			return fmt.Errorf("failed to read chat stream: %w", err)
		}

		switch ev := ev.(type) {
		case stream.StartStepEvent:
			if msg.ID == "" {
				msg.ID = ev.MessageID
			}
		case stream.TextEvent:
			msg.Content += ev.Text
			if s.observer.OnText != nil {
				s.observer.OnText(ev.Text)
			}
		case stream.ToolCallEvent:
			msg.ToolInvocations = append(msg.ToolInvocations, s.handleToolCall(ev))
		case stream.ToolResultEvent:
			s.handleToolResult(&msg, ev)
		case stream.ErrorEvent:
			streamErr = fmt.Errorf("%w: %s", ErrStreamFailed, ev.Message)
			s.notifyError(ev.Message)
		case stream.FinishStepEvent:
			s.logger.Debug("Step finished", "finish_reason", ev.FinishReason, "continued", ev.IsContinued)
		case stream.FinishMessageEvent:
			s.logger.Debug("Message finished", "finish_reason", ev.FinishReason,
				"prompt_tokens", ev.Usage.PromptTokens, "completion_tokens", ev.Usage.CompletionTokens)
		}
	}

	if streamErr != nil {
		s.commit(discardUnresolved(msg))
		return streamErr
	}

	// Calls the server owns but never answered fail closed.
	for i, inv := range msg.ToolInvocations {
		if inv.State == models.InvocationStateCall {
			s.logger.Warn("Tool call left unresolved", "tool", inv.ToolName, "call_id", inv.ToolCallID)
			msg.ToolInvocations[i] = resolve(inv, errorResult(errors.New(missingResult)))
			s.notifyToolResult(msg.ToolInvocations[i])
		}
	}

	s.commit(msg)
	return nil
}

func (s *Session) handleToolCall(ev stream.ToolCallEvent) models.ToolInvocation {
	inv := models.ToolInvocation{
		State:      models.InvocationStateCall,
		ToolCallID: ev.ToolCallID,
		ToolName:   ev.ToolName,
		Args:       ev.Args,
	}
	if s.observer.OnToolCall != nil {
		s.observer.OnToolCall(inv)
	}

	s.mu.Lock()
	out, ok := s.dispatcher.Dispatch(s.state, &s.confirmation, ev.ToolName, ev.Args)
	if ok {
		s.state = out.State
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("Waiting for server tool result", "tool", ev.ToolName, "call_id", ev.ToolCallID)
		return inv
	}

	s.logger.Info("Tool call resolved", "tool", ev.ToolName, "call_id", ev.ToolCallID, "result", out.Result)
	inv = resolve(inv, out.Result)
	s.notifyToolResult(inv)

	if out.ConfirmationRequested && s.observer.OnConfirmationRequested != nil {
		id, _ := s.PendingConfirmation()
		s.observer.OnConfirmationRequested(id)
	}
	return inv
}

func (s *Session) handleToolResult(msg *models.Message, ev stream.ToolResultEvent) {
	for i, inv := range msg.ToolInvocations {
		if inv.ToolCallID == ev.ToolCallID {
			msg.ToolInvocations[i] = resolve(inv, ev.Result)
			s.notifyToolResult(msg.ToolInvocations[i])
			return
		}
	}
	s.logger.Warn("Tool result for unknown call", "call_id", ev.ToolCallID)
}

func (s *Session) commit(msg models.Message) {
	if msg.Content == "" && len(msg.ToolInvocations) == 0 {
		return
	}
	if msg.ID == "" {
		msg.ID = s.newID()
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *Session) notifyToolResult(inv models.ToolInvocation) {
	if s.observer.OnToolResult != nil {
		s.observer.OnToolResult(inv)
	}
}

func (s *Session) notifyError(message string) {
	if s.observer.OnError != nil {
		s.observer.OnError(message)
	}
}

func resolve(inv models.ToolInvocation, result string) models.ToolInvocation {
	inv.State = models.InvocationStateResult
	inv.Result = result
	return inv
}

func discardUnresolved(msg models.Message) models.Message {
	msg.ToolInvocations = lo.Filter(msg.ToolInvocations, func(inv models.ToolInvocation, _ int) bool {
		return inv.State == models.InvocationStateResult
	})
	return msg
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"declarations/logging"
	"declarations/models"
	"declarations/resilience"
	"declarations/stream"

	"github.com/tidwall/gjson"
)

// EventStream yields the events of one chat response in order.
type EventStream interface {
	Next() (stream.Event, error)
	Close() error
}

// ChatAPI submits a transcript and returns the streamed response.
type ChatAPI interface {
	Chat(ctx context.Context, messages []models.Message) (EventStream, error)
}

type HTTPChatAPI struct {
	baseURL    string
	httpClient *http.Client
	retry      resilience.RetryPolicy
	logger     *slog.Logger
}

func NewHTTPChatAPI(baseURL string, httpClient *http.Client, retry resilience.RetryPolicy, logger *slog.Logger) *HTTPChatAPI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPChatAPI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		retry:      retry,
		logger:     logging.NewComponentLogger(logger, "api"),
	}
}

// StatusError is returned when the chat endpoint answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat endpoint returned status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// Chat posts the transcript. Failures before the response starts streaming
// are retried; once events flow the stream is returned as is.
func (a *HTTPChatAPI) Chat(ctx context.Context, messages []models.Message) (EventStream, error) {
	body, err := json.Marshal(models.ChatRequest{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	var resp *http.Response
	err = a.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build chat request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := a.httpClient.Do(req)
		if err != nil {
			a.logger.Warn("Chat request failed", "error", err)
			return err
		}
		if r.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			r.Body.Close()
			msg := gjson.GetBytes(data, "error").String()
			if msg == "" {
				msg = strings.TrimSpace(string(data))
			}
			return &StatusError{StatusCode: r.StatusCode, Message: msg}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call chat endpoint: %w", err)
	}

	if v := resp.Header.Get(stream.HeaderName); v != stream.HeaderValue {
		a.logger.Warn("Unexpected stream protocol version", "header", stream.HeaderName, "value", v)
	}

	return &responseStream{body: resp.Body, dec: stream.NewDecoder(resp.Body)}, nil
}

type responseStream struct {
	body io.ReadCloser
	dec  *stream.Decoder
}

func (s *responseStream) Next() (stream.Event, error) {
	return s.dec.Next()
}

func (s *responseStream) Close() error {
	return s.body.Close()
}

package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Encoder writes events to w, flushing after every line when w supports it.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		enc.flusher = f
	}
	return enc
}

// WriteHeaders sets the response headers of a data stream response.
func WriteHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(HeaderName, HeaderValue)
}

func (e *Encoder) Encode(event Event) error {
	payload, err := marshalPayload(event)
	if err != nil {
		return fmt.Errorf("failed to encode %T: %w", event, err)
	}

	line := make([]byte, 0, len(payload)+3)
	line = append(line, event.code(), ':')
	line = append(line, payload...)
	line = append(line, '\n')

	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("failed to write stream line: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

func marshalPayload(event Event) ([]byte, error) {
	switch ev := event.(type) {
	case TextEvent:
		return json.Marshal(ev.Text)
	case ErrorEvent:
		return json.Marshal(ev.Message)
	case ToolCallEvent:
		if len(ev.Args) == 0 {
			ev.Args = json.RawMessage("{}")
		}
		return json.Marshal(ev)
	default:
		return json.Marshal(ev)
	}
}

package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var ErrMalformedLine = errors.New("malformed stream line")

// Decoder reads events one line at a time. Unknown codes are skipped so
// newer servers can add event kinds.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
func (d *Decoder) Next() (Event, error) {
	for {
		line, err := d.r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		event, ok, decodeErr := decodeLine(bytes.TrimRight(line, "\r\n"))
		if decodeErr != nil {
			return nil, decodeErr
		}
		if ok {
			return event, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func decodeLine(line []byte) (Event, bool, error) {
	if len(line) < 2 || line[1] != ':' {
		return nil, false, fmt.Errorf("%w: %q", ErrMalformedLine, line)
	}
	payload := line[2:]

	var (
		event Event
		err   error
	)
	switch line[0] {
	case codeText:
		var text string
		err = json.Unmarshal(payload, &text)
		event = TextEvent{Text: text}
	case codeError:
		var msg string
		err = json.Unmarshal(payload, &msg)
		event = ErrorEvent{Message: msg}
	case codeToolCall:
		var ev ToolCallEvent
		err = json.Unmarshal(payload, &ev)
		event = ev
	case codeToolResult:
		var ev ToolResultEvent
		err = json.Unmarshal(payload, &ev)
		event = ev
	case codeStartStep:
		var ev StartStepEvent
		err = json.Unmarshal(payload, &ev)
		event = ev
	case codeFinishStep:
		var ev FinishStepEvent
		err = json.Unmarshal(payload, &ev)
		event = ev
	case codeFinishMessage:
		var ev FinishMessageEvent
		err = json.Unmarshal(payload, &ev)
		event = ev
	default:
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: %q: %v", ErrMalformedLine, line, err)
	}
	return event, true, nil
}

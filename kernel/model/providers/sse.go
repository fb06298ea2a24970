package providers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sseEvent is one dispatched server-sent event with a non-empty payload.
type sseEvent struct {
	name string
	data []byte
}

// sseReader splits an event stream into events. A "[DONE]" payload ends
// the stream like EOF does.
type sseReader struct {
	scanner *bufio.Scanner
	name    string
	data    [][]byte
	done    bool
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	return &sseReader{scanner: scanner}
}

// next returns the next event, or io.EOF once the stream is over.
func (s *sseReader) next() (sseEvent, error) {
	for !s.done {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return sseEvent{}, fmt.Errorf("providers: sse scanner: %w", err)
			}
			s.done = true
			if ev, ok := s.dispatch(); ok {
				return ev, nil
			}
			break
		}
		line := s.scanner.Text()
		switch {
		case strings.TrimSpace(line) == "":
			if ev, ok := s.dispatch(); ok {
				return ev, nil
			}
		case strings.HasPrefix(line, "event:"):
			s.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			s.data = append(s.data, []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))))
		}
	}
	return sseEvent{}, io.EOF
}

func (s *sseReader) dispatch() (sseEvent, bool) {
	ev := sseEvent{name: s.name, data: bytes.TrimSpace(bytes.Join(s.data, []byte("\n")))}
	s.name, s.data = "", s.data[:0]
	if len(ev.data) == 0 {
		return sseEvent{}, false
	}
	if string(ev.data) == "[DONE]" {
		s.done = true
		return sseEvent{}, false
	}
	return ev, true
}

// pumpSSE decodes every payload of an event stream into T and emits the
// text pick extracts. An error event, or a payload carrying an error
// object, breaks the stream with that message.
func pumpSSE[T any](body io.Reader, emit func(string) error, pick func(*T) string) error {
	r := newSSEReader(body)
	for {
		ev, err := r.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := streamFailure(ev); err != nil {
			return err
		}
		var chunk T
		if err := json.Unmarshal(ev.data, &chunk); err != nil {
			return fmt.Errorf("model: decode stream chunk: %w", err)
		}
		if err := emit(pick(&chunk)); err != nil {
			return err
		}
	}
}

type streamErrorPayload struct {
	Error  json.RawMessage `json:"error"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func streamFailure(ev sseEvent) error {
	var p streamErrorPayload
	if json.Unmarshal(ev.data, &p) != nil {
		if ev.name == "error" {
			return fmt.Errorf("model: stream error: %s", ev.data)
		}
		return nil
	}
	if len(p.Error) > 0 && string(p.Error) != "null" {
		return fmt.Errorf("model: stream error: %s", errorText(p.Error))
	}
	if len(p.Errors) > 0 {
		return fmt.Errorf("model: stream error: %s", p.Errors[0].Message)
	}
	if ev.name == "error" {
		return fmt.Errorf("model: stream error: %s", ev.data)
	}
	return nil
}

// errorText accepts both {"message": "..."} and a bare string.
func errorText(raw json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if json.Unmarshal(raw, &s) == nil && s != "" {
		return s
	}
	return string(raw)
}

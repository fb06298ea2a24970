package relay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSEWriter is a Sink that writes server-sent events to an HTTP response,
// flushing after every event. Headers are sent with the first event.
type SSEWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	return &SSEWriter{w: w, rc: http.NewResponseController(w)}
}

// Started reports whether any byte has been written to the response.
func (s *SSEWriter) Started() bool {
	return s.started
}

func (s *SSEWriter) Emit(ev Event) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-store")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	var frame strings.Builder
	frame.WriteString("event: ")
	frame.WriteString(ev.Name)
	frame.WriteByte('\n')
	if ev.Data != nil {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("relay: encode %s event: %w", ev.Name, err)
		}
		frame.WriteString("data: ")
		frame.Write(payload)
		frame.WriteByte('\n')
	}
	frame.WriteByte('\n')
	if _, err := io.WriteString(s.w, frame.String()); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// ClientEvent is one decoded server-sent event. Data holds the raw JSON
// payload, empty for ready and done.
type ClientEvent struct {
	Name string
	Data json.RawMessage
}

// ReadEvents decodes a server-sent event stream written by SSEWriter and
// calls fn for each event until the stream ends or fn returns an error.
func ReadEvents(r io.Reader, fn func(ClientEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var (
		name string
		data []string
	)
	dispatch := func() error {
		if name == "" && len(data) == 0 {
			return nil
		}
		ev := ClientEvent{Name: name}
		if ev.Name == "" {
			ev.Name = "message"
		}
		if len(data) > 0 {
			ev.Data = json.RawMessage(strings.Join(data, "\n"))
		}
		name, data = "", data[:0]
		return fn(ev)
	}
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("relay: read events: %w", err)
	}
	return dispatch()
}

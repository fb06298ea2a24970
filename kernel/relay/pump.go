package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const readBufferSize = 32 * 1024

// Result describes a finished relay.
type Result struct {
	// Text is the concatenation of every relayed delta.
	Text string
	// Completed is true when the stream ended with a done event.
	Completed bool
	// Err is the upstream failure reported to the client as an error event.
	Err error
}

type record struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
}

// Pump relays body to sink. Every non-blank line must be a JSON object
// {delta?, done?}; each becomes a delta event tagged with sessionID. The
// stream then ends with exactly one done event at upstream EOF, or exactly
// one error event when a line does not parse or the read fails.
//
// When ctx is cancelled the body is closed, if it is an io.Closer, and Pump
// returns ctx.Err() without emitting anything further. A non-nil error is
// also returned when sink rejects an event; upstream failures are reported
// through Result.Err instead.
func Pump(ctx context.Context, body io.Reader, sessionID string, sink Sink) (Result, error) {
	if c, ok := body.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}
	p := &pump{ctx: ctx, sink: sink, sessionID: sessionID}
	var asm LineAssembler
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, line := range asm.Feed(buf[:n]) {
				if err := p.line(line); err != nil {
					return p.finish(err)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			if rest := asm.Flush(); len(bytes.TrimSpace(rest)) > 0 {
				if err := p.line(rest); err != nil {
					return p.finish(err)
				}
			}
			return p.finish(nil)
		}
		if readErr != nil {
			return p.finish(&upstreamError{err: readErr})
		}
	}
}

type pump struct {
	ctx       context.Context
	sink      Sink
	sessionID string
	text      strings.Builder
}

type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

type sinkError struct {
	err error
}

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

func (p *pump) line(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return &upstreamError{err: fmt.Errorf("relay: malformed record: %w", err)}
	}
	if err := p.emit(Event{Name: EventDelta, Data: Delta{Delta: rec.Delta, Done: rec.Done, SessionID: p.sessionID}}); err != nil {
		return err
	}
	p.text.WriteString(rec.Delta)
	return nil
}

func (p *pump) emit(ev Event) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if err := p.sink.Emit(ev); err != nil {
		return &sinkError{err: err}
	}
	return nil
}

// finish emits the single terminal event for cause and builds the result.
func (p *pump) finish(cause error) (Result, error) {
	res := Result{Text: p.text.String()}
	if err := p.ctx.Err(); err != nil {
		return res, err
	}
	var sinkErr *sinkError
	if errors.As(cause, &sinkErr) {
		return res, sinkErr.err
	}
	if cause == nil {
		if err := p.emit(Event{Name: EventDone}); err != nil {
			return res, unwrapSink(err)
		}
		res.Completed = true
		return res, nil
	}
	res.Err = cause
	var up *upstreamError
	if errors.As(cause, &up) {
		res.Err = up.err
	}
	if err := p.emit(Event{Name: EventError, Data: ErrorData{Message: res.Err.Error()}}); err != nil {
		return res, unwrapSink(err)
	}
	return res, nil
}

func unwrapSink(err error) error {
	var sinkErr *sinkError
	if errors.As(err, &sinkErr) {
		return sinkErr.err
	}
	return err
}

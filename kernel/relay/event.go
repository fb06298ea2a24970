// Package relay turns a newline-delimited JSON generation body into a live
// client event stream.
package relay

// Event names of the client stream.
const (
	EventReady = "ready"
	EventDelta = "delta"
	EventError = "error"
	EventDone  = "done"
)

// Event is one client-facing stream event. Data is nil for ready and done.
type Event struct {
	Name string
	Data any
}

// Delta is the payload of a delta event: one upstream record with the
// session id attached.
type Delta struct {
	Delta     string `json:"delta,omitempty"`
	Done      bool   `json:"done,omitempty"`
	SessionID string `json:"sessionId"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// Sink receives stream events in order.
type Sink interface {
	Emit(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(ev Event) error { return f(ev) }

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxTurns bounds the stored history of one session. Older turns are
// evicted first.
const MaxTurns = 20

// maxSessionIDLen keeps ids usable as file names and primary keys.
const maxSessionIDLen = 128

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrNilState        = errors.New("session: state is nil")
)

// Role attributes a turn to one side of the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two conversational roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message of a conversation. Turns are immutable once stored.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// State is the persisted state of one session.
type State struct {
	Turns       []Turn
	Summary     string
	LastUpdated time.Time
}

// NewState returns the empty state a session starts with.
func NewState(now time.Time) *State {
	return &State{Turns: []Turn{}, LastUpdated: now}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Turns = append(make([]Turn, 0, len(s.Turns)), s.Turns...)
	return &cp
}

// Append adds a turn and evicts the oldest turns beyond MaxTurns.
func (s *State) Append(turn Turn, now time.Time) {
	s.Turns = append(s.Turns, turn)
	if over := len(s.Turns) - MaxTurns; over > 0 {
		s.Turns = append(make([]Turn, 0, MaxTurns), s.Turns[over:]...)
	}
	s.LastUpdated = now
}

// Reset clears history and summary while keeping the session.
func (s *State) Reset(now time.Time) {
	s.Turns = []Turn{}
	s.Summary = ""
	s.LastUpdated = now
}

// Store persists session state addressed by session id. Implementations must
// be safe for concurrent use across different ids; callers serialize access
// to one id.
type Store interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, sessionID string, state *State) error
}

// SummaryMirror receives a copy of every new summary for read-optimized
// external consumers. It is write-only from the service's perspective.
type SummaryMirror interface {
	PutSummary(ctx context.Context, sessionID, summary string) error
}

// ValidateID checks that id can address a session in any store.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session: id is required")
	}
	if len(id) > maxSessionIDLen {
		return fmt.Errorf("session: id longer than %d bytes", maxSessionIDLen)
	}
	return nil
}

package inmemory

import (
	"context"
	"sync"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

// Store is a thread-safe in-memory session store. It also records mirrored
// summaries so tests and single-process deployments can inspect them.
type Store struct {
	mu        sync.RWMutex
	states    map[string]*session.State
	summaries map[string]string
}

func New() *Store {
	return &Store{
		states:    map[string]*session.State{},
		summaries: map[string]string{},
	}
}

func (s *Store) Load(ctx context.Context, sessionID string) (*session.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sessionID]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return state.Clone(), nil
}

func (s *Store) Save(ctx context.Context, sessionID string, state *session.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	if state == nil {
		return session.ErrNilState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = state.Clone()
	return nil
}

func (s *Store) PutSummary(ctx context.Context, sessionID, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sessionID] = summary
	return nil
}

// Summary returns the last mirrored summary for sessionID.
func (s *Store) Summary(sessionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[sessionID]
	return summary, ok
}

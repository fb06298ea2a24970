package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

const (
	stateFile   = "state.json"
	summaryFile = "summary.md"
)

// Store persists one JSON state document per session on local disk:
// <root>/<session id>/state.json. Writes go through a temp file and a
// rename so a crash never leaves a torn document behind.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("filestore: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (*session.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(dir, stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	state := &session.State{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("filestore: decode state: %w", err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, state *session.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil {
		return session.ErrNilState
	}
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(dir, stateFile, raw)
}

// PutSummary mirrors the latest summary next to the state document.
func (s *Store) PutSummary(ctx context.Context, sessionID, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	return writeAtomic(dir, summaryFile, []byte(summary))
}

func writeAtomic(dir, name string, raw []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *Store) sessionDir(sessionID string) (string, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return "", err
	}
	if err := validatePathComponent(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, sessionID), nil
}

func validatePathComponent(value string) error {
	if value == "." || value == ".." {
		return fmt.Errorf("filestore: invalid session_id")
	}
	if strings.Contains(value, "/") || strings.Contains(value, "\\") {
		return fmt.Errorf("filestore: invalid session_id")
	}
	if filepath.Clean(value) != value {
		return fmt.Errorf("filestore: invalid session_id")
	}
	return nil
}

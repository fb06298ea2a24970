package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	return store, root
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, root := newTestStore(t)
	ts := time.UnixMilli(1_700_000_000_000)
	state := session.NewState(ts)
	state.Append(session.Turn{Role: session.RoleUser, Content: "hi", Timestamp: ts}, ts)
	state.Summary = "- greeting"
	if err := store.Save(context.Background(), "s", state); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "s", "state.json")); err != nil {
		t.Fatalf("expected state document on disk: %v", err)
	}

	loaded, err := store.Load(context.Background(), "s")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Turns) != 1 || loaded.Turns[0].Content != "hi" || !loaded.Turns[0].Timestamp.Equal(ts) {
		t.Fatalf("unexpected turns: %+v", loaded.Turns)
	}
	if loaded.Summary != "- greeting" {
		t.Fatalf("unexpected summary %q", loaded.Summary)
	}
}

func TestStore_LoadMissingReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	store, root := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := store.Save(context.Background(), "s", session.NewState(time.Now())); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(root, "s"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files after save: %v", names)
	}
}

func TestStore_RejectsPathEscapingIDs(t *testing.T) {
	store, _ := newTestStore(t)
	for _, id := range []string{"..", ".", "a/b", `a\b`, "../x"} {
		if err := store.Save(context.Background(), id, session.NewState(time.Now())); err == nil {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
}

func TestStore_PutSummaryWritesMarkdown(t *testing.T) {
	store, root := newTestStore(t)
	if err := store.PutSummary(context.Background(), "s", "- goal: ship"); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(root, "s", "summary.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "- goal: ship" {
		t.Fatalf("unexpected summary file %q", raw)
	}
}

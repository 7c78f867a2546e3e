package memory

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store, err := NewSQLiteStoreDB(db)
	if err != nil {
		t.Fatalf("NewSQLiteStoreDB: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteAddAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddMessage(ctx, "conv-1", "user", "Merhaba"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := store.AddMessage(ctx, "conv-1", "assistant", "Merhaba!"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	msgs, err := store.Messages(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" {
		t.Errorf("expected chronological order, first role %q", msgs[0].Role)
	}
	if msgs[1].Content != "Merhaba!" {
		t.Errorf("unexpected content %q", msgs[1].Content)
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestSQLiteLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if err := store.AddMessage(ctx, "conv-1", "user", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	msgs, err := store.Messages(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "message 5" {
		t.Errorf("expected window to start at message 5, got %q", msgs[0].Content)
	}
	if msgs[9].Content != "message 14" {
		t.Errorf("expected window to end at message 14, got %q", msgs[9].Content)
	}
}

func TestSQLiteClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddMessage(ctx, "conv-1", "user", "a")
	store.AddMessage(ctx, "conv-2", "user", "b")

	if err := store.Clear(ctx, "conv-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	msgs, _ := store.Messages(ctx, "conv-1", 0)
	if len(msgs) != 0 {
		t.Errorf("expected conv-1 empty, got %d messages", len(msgs))
	}
	msgs, _ = store.Messages(ctx, "conv-2", 0)
	if len(msgs) != 1 {
		t.Errorf("expected conv-2 untouched, got %d messages", len(msgs))
	}
}

func TestSQLiteStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddMessage(ctx, "conv-1", "user", "a")
	store.AddMessage(ctx, "conv-1", "assistant", "b")
	store.AddMessage(ctx, "conv-2", "user", "c")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["conversations"] != 2 {
		t.Errorf("expected 2 conversations, got %v", stats["conversations"])
	}
	if stats["messages"] != 3 {
		t.Errorf("expected 3 messages, got %v", stats["messages"])
	}
	if stats["storage"] != "sqlite" {
		t.Errorf("expected sqlite storage label, got %v", stats["storage"])
	}
}

func TestSQLiteEmptyConversation(t *testing.T) {
	store := newTestStore(t)
	msgs, err := store.Messages(context.Background(), "nope", 5)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d", len(msgs))
	}
}

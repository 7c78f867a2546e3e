package memory

import (
	"context"
	"fmt"
	"testing"
)

func TestMemStoreAddAndGet(t *testing.T) {
	store := NewMemStore(100)
	ctx := context.Background()

	if err := store.AddMessage(ctx, "conv-1", "user", "Merhaba"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := store.AddMessage(ctx, "conv-1", "assistant", "Merhaba! Nasıl yardımcı olabilirim?"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	msgs, err := store.Messages(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("messages out of order: %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].ID == "" {
		t.Error("expected message ID to be set")
	}
}

func TestMemStoreLimit(t *testing.T) {
	store := NewMemStore(100)
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
	// Limit keeps the most recent, in chronological order.
	if msgs[0].Content != "message 5" {
		t.Errorf("expected oldest returned to be message 5, got %q", msgs[0].Content)
	}
	if msgs[9].Content != "message 14" {
		t.Errorf("expected newest to be message 14, got %q", msgs[9].Content)
	}
}

func TestMemStoreTrim(t *testing.T) {
	store := NewMemStore(5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if err := store.AddMessage(ctx, "conv-1", "user", fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	msgs, _ := store.Messages(ctx, "conv-1", 0)
	if len(msgs) != 5 {
		t.Fatalf("expected trim to 5 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "message 3" {
		t.Errorf("expected oldest surviving message 3, got %q", msgs[0].Content)
	}
}

func TestMemStoreClear(t *testing.T) {
	store := NewMemStore(100)
	ctx := context.Background()

	store.AddMessage(ctx, "conv-1", "user", "hello")
	store.AddMessage(ctx, "conv-2", "user", "hello")

	if err := store.Clear(ctx, "conv-1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	msgs, _ := store.Messages(ctx, "conv-1", 0)
	if len(msgs) != 0 {
		t.Errorf("expected cleared conversation to be empty, got %d", len(msgs))
	}
	msgs, _ = store.Messages(ctx, "conv-2", 0)
	if len(msgs) != 1 {
		t.Errorf("expected other conversation untouched, got %d", len(msgs))
	}
}

func TestMemStoreStats(t *testing.T) {
	store := NewMemStore(100)
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
}

func TestMemStoreUnknownConversation(t *testing.T) {
	store := NewMemStore(100)
	msgs, err := store.Messages(context.Background(), "nope", 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d", len(msgs))
	}
}

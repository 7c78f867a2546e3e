package usage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTrackRecordsConversation(t *testing.T) {
	s := testStore(t)
	tr := NewTracker(s, testPricing(), discardLogger())

	ctx := WithConversation(context.Background(), "conv-1")
	tr.Track(ctx, "analyzer", "gemini-2.5-flash", "gemini", 1000, 500)
	tr.Track(ctx, "responder", "gemini-2.5-flash", "gemini", 2000, 1000)
	tr.Track(WithConversation(context.Background(), "conv-2"), "responder", "qwen3:4b", "ollama", 100, 50)

	sum, err := s.SummaryForConversation("conv-1")
	if err != nil {
		t.Fatalf("SummaryForConversation: %v", err)
	}
	if sum.TotalRecords != 2 {
		t.Errorf("conv-1 records = %d, want 2", sum.TotalRecords)
	}
	if sum.TotalInputTokens != 3000 {
		t.Errorf("conv-1 input tokens = %d, want 3000", sum.TotalInputTokens)
	}

	other, err := s.SummaryForConversation("conv-2")
	if err != nil {
		t.Fatalf("SummaryForConversation: %v", err)
	}
	if other.TotalRecords != 1 {
		t.Errorf("conv-2 records = %d, want 1", other.TotalRecords)
	}
}

func TestTrackWithoutConversation(t *testing.T) {
	s := testStore(t)
	tr := NewTracker(s, nil, discardLogger())

	tr.Track(context.Background(), "analyzer", "m", "p", 10, 5)

	start := time.Now().Add(-1 * time.Minute)
	end := time.Now().Add(1 * time.Minute)
	sum, err := s.Summary(start, end)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalRecords != 1 {
		t.Errorf("TotalRecords = %d, want 1", sum.TotalRecords)
	}

	// An untagged context leaves the conversation empty.
	none, err := s.SummaryForConversation("")
	if err != nil {
		t.Fatalf("SummaryForConversation: %v", err)
	}
	if none.TotalRecords != 1 {
		t.Errorf("empty conversation records = %d, want 1", none.TotalRecords)
	}
}

func TestTrackNilTracker(t *testing.T) {
	var tr *Tracker
	// Must not panic.
	tr.Track(context.Background(), "analyzer", "m", "p", 1, 1)
}

func TestConversationFromContext(t *testing.T) {
	if got := ConversationFromContext(context.Background()); got != "" {
		t.Errorf("untagged context = %q, want empty", got)
	}
	ctx := WithConversation(context.Background(), "c9")
	if got := ConversationFromContext(ctx); got != "c9" {
		t.Errorf("tagged context = %q, want c9", got)
	}
}

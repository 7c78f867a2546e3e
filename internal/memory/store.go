// Package memory provides conversation history storage.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the interface for conversation history storage.
type Store interface {
	// AddMessage appends a message to a conversation.
	AddMessage(ctx context.Context, conversationID, role, content string) error

	// Messages returns the most recent messages of a conversation in
	// chronological order. limit <= 0 means no limit.
	Messages(ctx context.Context, conversationID string, limit int) ([]Message, error)

	// Clear removes a conversation and its messages.
	Clear(ctx context.Context, conversationID string) error

	// Stats returns storage statistics for the stats endpoint.
	Stats(ctx context.Context) (map[string]any, error)

	// Close releases underlying resources.
	Close() error
}

// Message represents a single conversation message.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MemStore keeps conversations in memory. It is the default store when
// no database path is configured, and the natural choice for one-shot
// CLI runs.
type MemStore struct {
	mu            sync.RWMutex
	conversations map[string][]Message
	maxMessages   int // per conversation
}

// NewMemStore creates an in-memory store. maxMessages caps each
// conversation; older messages are trimmed first.
func NewMemStore(maxMessages int) *MemStore {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &MemStore{
		conversations: make(map[string][]Message),
		maxMessages:   maxMessages,
	}
}

// AddMessage appends a message to a conversation.
func (s *MemStore) AddMessage(_ context.Context, conversationID, role, content string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.conversations[conversationID], Message{
		ID:        id.String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})

	// Trim oldest messages when over the cap.
	if len(msgs) > s.maxMessages {
		msgs = msgs[len(msgs)-s.maxMessages:]
	}
	s.conversations[conversationID] = msgs
	return nil
}

// Messages returns the most recent messages in chronological order.
func (s *MemStore) Messages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.conversations[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Clear removes a conversation.
func (s *MemStore) Clear(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

// Stats returns storage statistics.
func (s *MemStore) Stats(_ context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalMessages := 0
	for _, msgs := range s.conversations {
		totalMessages += len(msgs)
	}

	return map[string]any{
		"storage":       "memory",
		"conversations": len(s.conversations),
		"messages":      totalMessages,
		"max_per_conv":  s.maxMessages,
	}, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

package usage

import "context"

type conversationKey struct{}

// WithConversation tags ctx with the conversation a turn belongs to.
// The manager sets it once per turn; every LLM call tracked under that
// context is attributed to the conversation.
func WithConversation(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationKey{}, conversationID)
}

// ConversationFromContext returns the conversation ID set by
// [WithConversation], or "" when the context carries none.
func ConversationFromContext(ctx context.Context) string {
	id, _ := ctx.Value(conversationKey{}).(string)
	return id
}

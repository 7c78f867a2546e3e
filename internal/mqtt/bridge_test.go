package mqtt

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kahyalabs/kahya/internal/assistant"
	"github.com/kahyalabs/kahya/internal/config"
	"github.com/kahyalabs/kahya/internal/input"
)

type countingAsker struct {
	calls int
}

func (c *countingAsker) Process(ctx context.Context, conversationID string, in input.Input) *assistant.Reply {
	c.calls++
	return &assistant.Reply{Text: "ok", Success: true, ConversationID: conversationID}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBridge() *Bridge {
	cfg := config.MQTTConfig{
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "kahya",
	}
	return NewBridge(cfg, "0198c5b6-test", nil, discard())
}

func TestTopics(t *testing.T) {
	b := testBridge()

	if got := b.statusTopic(); got != "kahya/status" {
		t.Errorf("statusTopic = %q", got)
	}
	if got := b.askFilter(); got != "kahya/ask/+" {
		t.Errorf("askFilter = %q", got)
	}
	if got := b.replyTopic("c1"); got != "kahya/reply/c1" {
		t.Errorf("replyTopic = %q", got)
	}
}

func TestConversationFromTopic(t *testing.T) {
	b := testBridge()

	cases := []struct {
		topic string
		want  string
	}{
		{"kahya/ask/c1", "c1"},
		{"kahya/ask/0198c5b6-7a9e", "0198c5b6-7a9e"},
		{"kahya/ask/", ""},
		{"kahya/ask/a/b", ""},
		{"kahya/reply/c1", ""},
		{"other/ask/c1", ""},
	}
	for _, tc := range cases {
		if got := b.conversationFromTopic(tc.topic); got != tc.want {
			t.Errorf("conversationFromTopic(%q) = %q, want %q", tc.topic, got, tc.want)
		}
	}
}

func TestParseAsk(t *testing.T) {
	b := testBridge()

	conv, question, err := b.parseAsk("kahya/ask/c1", []byte("saat kaç"))
	if err != nil {
		t.Fatalf("plain text: %v", err)
	}
	if conv != "c1" || question != "saat kaç" {
		t.Errorf("plain text = %q, %q", conv, question)
	}

	conv, question, err = b.parseAsk("kahya/ask/c2", []byte(`{"input": "hava nasıl"}`))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if conv != "c2" || question != "hava nasıl" {
		t.Errorf("json = %q, %q", conv, question)
	}

	if _, _, err := b.parseAsk("kahya/ask/c1", []byte("  ")); err == nil {
		t.Error("empty payload accepted")
	}
	if _, _, err := b.parseAsk("kahya/status", []byte("hi")); err == nil {
		t.Error("wrong topic accepted")
	}

	// Malformed JSON degrades to plain text.
	_, question, err = b.parseAsk("kahya/ask/c1", []byte("{broken"))
	if err != nil {
		t.Fatalf("malformed json: %v", err)
	}
	if question != "{broken" {
		t.Errorf("malformed json question = %q", question)
	}
}

func TestClientID(t *testing.T) {
	b := testBridge()
	if got := b.clientID(); got != "kahya-0198c5b6-test" {
		t.Errorf("clientID = %q", got)
	}

	b.cfg.ClientID = "custom"
	if got := b.clientID(); got != "custom" {
		t.Errorf("clientID = %q", got)
	}
}

// A question delivered before the connection is stored must not reach
// the manager or panic: without a connection there is no reply path.
func TestHandleAskBeforeConnect(t *testing.T) {
	asker := &countingAsker{}
	cfg := config.MQTTConfig{
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "kahya",
	}
	b := NewBridge(cfg, "0198c5b6-test", asker, discard())

	b.handleAsk(context.Background(), "kahya/ask/c1", []byte("saat kaç"))

	if asker.calls != 0 {
		t.Errorf("manager called %d times without a connection", asker.calls)
	}
}

func TestStopWithoutConnection(t *testing.T) {
	b := testBridge()
	if err := b.Stop(context.Background()); err != nil {
		t.Errorf("Stop = %v", err)
	}
}

func TestStartRejectsBadBroker(t *testing.T) {
	b := testBridge()
	b.cfg.Broker = "://bad"

	err := b.Start(t.Context())
	if err == nil || !strings.Contains(err.Error(), "parse mqtt broker URL") {
		t.Errorf("error = %v", err)
	}
}

// Package mailbox is an IMAP plugin: it lists, reads and searches
// messages in a configured account so the assistant can answer "any
// new mail?" style requests.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kahyalabs/kahya/internal/plugin"
)

// Plugin implements the mailbox plugin over an IMAP session.
type Plugin struct {
	mail   mailer
	folder string // default folder when a request names none
	logger *slog.Logger
}

// New creates the plugin. The IMAP session is built in Init from the
// manifest settings.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return "mailbox" }

func (p *Plugin) Description() string {
	return "Email mailbox: list, read and search messages over IMAP"
}

func (p *Plugin) Actions() []plugin.ActionSpec {
	return []plugin.ActionSpec{
		{
			Name:        "list_messages",
			Description: "List recent messages in a folder",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"folder": map[string]any{"type": "string"},
					"limit":  map[string]any{"type": "integer"},
					"unseen": map[string]any{"type": "boolean", "description": "only unread messages"},
				},
			},
		},
		{
			Name:        "read_message",
			Description: "Read one message by UID",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"uid":    map[string]any{"type": "integer"},
					"folder": map[string]any{"type": "string"},
				},
				"required": []string{"uid"},
			},
		},
		{
			Name:        "search_messages",
			Description: "Search messages by text",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":  map[string]any{"type": "string"},
					"folder": map[string]any{"type": "string"},
					"limit":  map[string]any{"type": "integer"},
				},
				"required": []string{"query"},
			},
		},
	}
}

// Init builds the IMAP session from manifest settings: host, port
// (default 993), username, password, tls (default true), folder
// (default INBOX). A pre-injected session (tests) is kept.
func (p *Plugin) Init(_ context.Context, settings plugin.Settings, logger *slog.Logger) error {
	p.logger = logger.With("plugin", p.Name())

	p.folder = settings.String("folder")
	if p.folder == "" {
		p.folder = "INBOX"
	}

	if p.mail != nil {
		return nil
	}

	cfg := sessionConfig{
		Host:     settings.String("host"),
		Port:     settings.Int("port"),
		Username: settings.String("username"),
		Password: settings.String("password"),
		TLS:      true,
	}
	if _, set := settings["tls"]; set {
		cfg.TLS = settings.Bool("tls")
	}
	if cfg.Host == "" {
		return fmt.Errorf("mailbox plugin requires a host setting")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("mailbox plugin requires username and password settings")
	}
	if cfg.Port == 0 {
		if cfg.TLS {
			cfg.Port = 993
		} else {
			cfg.Port = 143
		}
	}

	p.mail = newSession(cfg, p.logger)
	return nil
}

func (p *Plugin) Execute(ctx context.Context, req plugin.Request) (*plugin.Result, error) {
	switch req.Action {
	case "list_messages":
		return p.listMessages(ctx, req.Params)
	case "read_message":
		return p.readMessage(ctx, req.Params)
	case "search_messages":
		return p.searchMessages(ctx, req.Params)
	default:
		return nil, fmt.Errorf("unsupported action %q", req.Action)
	}
}

func (p *Plugin) Close() error {
	if p.mail == nil {
		return nil
	}
	return p.mail.Close()
}

func (p *Plugin) listMessages(ctx context.Context, params map[string]any) (*plugin.Result, error) {
	folder := p.folderParam(params)
	limit := plugin.IntParam(params, "limit")
	unseen, _ := params["unseen"].(bool)

	envelopes, err := p.mail.list(ctx, folder, limit, unseen)
	if err != nil {
		return nil, err
	}
	return envelopeResult(folder, envelopes), nil
}

func (p *Plugin) searchMessages(ctx context.Context, params map[string]any) (*plugin.Result, error) {
	query := plugin.StringParam(params, "query")
	if query == "" {
		return nil, fmt.Errorf("search_messages requires a query")
	}
	folder := p.folderParam(params)
	limit := plugin.IntParam(params, "limit")

	envelopes, err := p.mail.search(ctx, folder, query, limit)
	if err != nil {
		return nil, err
	}
	return envelopeResult(folder, envelopes), nil
}

func (p *Plugin) readMessage(ctx context.Context, params map[string]any) (*plugin.Result, error) {
	uid := plugin.IntParam(params, "uid")
	if uid <= 0 {
		return nil, fmt.Errorf("read_message requires a uid")
	}
	folder := p.folderParam(params)

	msg, err := p.mail.read(ctx, folder, uint32(uid))
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", msg.Date.Format("2006-01-02 15:04"))
	}
	b.WriteString("\n")
	if msg.Body != "" {
		b.WriteString(msg.Body)
	} else {
		b.WriteString("(no text body)")
	}

	return &plugin.Result{
		Text: b.String(),
		Data: map[string]any{
			"uid":     msg.UID,
			"from":    msg.From,
			"to":      msg.To,
			"subject": msg.Subject,
			"date":    msg.Date,
			"body":    msg.Body,
		},
	}, nil
}

func (p *Plugin) folderParam(params map[string]any) string {
	if folder := plugin.StringParam(params, "folder"); folder != "" {
		return folder
	}
	return p.folder
}

// envelopeResult formats a message listing for the user, one line per
// message with UID, sender and subject.
func envelopeResult(folder string, envelopes []envelope) *plugin.Result {
	if len(envelopes) == 0 {
		return &plugin.Result{
			Text: fmt.Sprintf("No messages in %s.", folder),
			Data: map[string]any{"folder": folder, "messages": []envelope{}},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d message(s) in %s:\n", len(envelopes), folder)
	for _, e := range envelopes {
		marker := " "
		if e.Unseen {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s [%d] %s — %s\n", marker, e.UID, e.From, e.Subject)
	}

	return &plugin.Result{
		Text: strings.TrimRight(b.String(), "\n"),
		Data: map[string]any{"folder": folder, "messages": envelopes},
	}
}

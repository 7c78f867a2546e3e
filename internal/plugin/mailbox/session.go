package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

// maxBodyBytes caps the parsed text body included in a message.
const maxBodyBytes = 32 * 1024

// maxRawBytes caps how much of the raw RFC822 literal is buffered.
// The rest is drained so the IMAP stream stays in sync.
const maxRawBytes = 5 * 1024 * 1024

// sessionConfig holds the IMAP account settings from the manifest.
type sessionConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

// envelope is a message summary from a folder listing or search.
type envelope struct {
	UID     uint32    `json:"uid"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Unseen  bool      `json:"unseen,omitempty"`
}

// fullMessage is a single fetched message with its text body.
type fullMessage struct {
	envelope
	To   []string `json:"to,omitempty"`
	Body string   `json:"body"`
}

// mailer is the IMAP surface the plugin needs. The concrete session
// implements it; tests substitute a fake.
type mailer interface {
	list(ctx context.Context, folder string, limit int, unseen bool) ([]envelope, error)
	search(ctx context.Context, folder, query string, limit int) ([]envelope, error)
	read(ctx context.Context, folder string, uid uint32) (*fullMessage, error)
	Close() error
}

// session is a single-account IMAP session with lazy connection and
// mutex-serialized access.
type session struct {
	cfg    sessionConfig
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

func newSession(cfg sessionConfig, logger *slog.Logger) *session {
	return &session{cfg: cfg, logger: logger}
}

// connectLocked dials and authenticates. Caller must hold s.mu.
func (s *session) connectLocked() error {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var opts imapclient.Options
	var client *imapclient.Client
	var err error
	if s.cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
		client, err = imapclient.DialTLS(addr, &opts)
	} else {
		client, err = imapclient.DialInsecure(addr, &opts)
	}
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if err := client.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		return fmt.Errorf("login as %s: %w", s.cfg.Username, err)
	}

	s.client = client
	s.logger.Info("IMAP connected", "host", s.cfg.Host, "user", s.cfg.Username)
	return nil
}

// ensureConnected reconnects when the session is stale. Caller must
// hold s.mu.
func (s *session) ensureConnected() error {
	if s.client != nil {
		if err := s.client.Noop().Wait(); err == nil {
			return nil
		}
		s.logger.Debug("IMAP connection stale, reconnecting", "host", s.cfg.Host)
	}
	return s.connectLocked()
}

// selectFolder selects a mailbox, defaulting to INBOX. Caller must
// hold s.mu.
func (s *session) selectFolder(folder string) error {
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := s.client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("select %s: %w", folder, err)
	}
	return nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// list returns the most recent messages of a folder, newest first.
func (s *session) list(ctx context.Context, folder string, limit int, unseen bool) ([]envelope, error) {
	criteria := &imap.SearchCriteria{}
	if unseen {
		criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
	}
	return s.searchEnvelopes(ctx, folder, criteria, limit)
}

// search returns messages whose text matches query, newest first.
func (s *session) search(ctx context.Context, folder, query string, limit int) ([]envelope, error) {
	criteria := &imap.SearchCriteria{}
	if query != "" {
		criteria.Text = append(criteria.Text, query)
	}
	return s.searchEnvelopes(ctx, folder, criteria, limit)
}

func (s *session) searchEnvelopes(_ context.Context, folder string, criteria *imap.SearchCriteria, limit int) ([]envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", folder, err)
	}

	allUIDs := searchData.AllUIDs()
	if len(allUIDs) == 0 {
		return nil, nil
	}

	// Highest UIDs are newest; take the last N.
	if len(allUIDs) > limit {
		allUIDs = allUIDs[len(allUIDs)-limit:]
	}

	uidSet := imap.UIDSet{}
	for _, uid := range allUIDs {
		uidSet.AddNum(uid)
	}

	fetchCmd := s.client.Fetch(uidSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		Flags:    true,
	})

	var envelopes []envelope
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		env, ok := parseEnvelope(msg)
		if !ok {
			continue
		}
		envelopes = append(envelopes, env)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch envelopes: %w", err)
	}

	// Newest first.
	for i, j := 0, len(envelopes)-1; i < j; i, j = i+1, j-1 {
		envelopes[i], envelopes[j] = envelopes[j], envelopes[i]
	}
	return envelopes, nil
}

// read fetches one message by UID and extracts its text body.
func (s *session) read(_ context.Context, folder string, uid uint32) (*fullMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(imap.UID(uid))

	fetchCmd := s.client.Fetch(uidSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		Flags:    true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: false}, // reading marks \Seen
		},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message UID %d not found in %s", uid, folder)
	}

	result := &fullMessage{}
	var raw []byte
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			result.UID = uint32(data.UID)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				result.Date = data.Envelope.Date
				result.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					result.From = formatAddress(data.Envelope.From[0])
				}
				for _, addr := range data.Envelope.To {
					result.To = append(result.To, formatAddress(addr))
				}
			}
		case imapclient.FetchItemDataBodySection:
			// The literal streams from the connection; it must be
			// consumed before the next item.
			if data.Literal == nil {
				continue
			}
			var readErr error
			raw, readErr = io.ReadAll(io.LimitReader(data.Literal, maxRawBytes))
			_, _ = io.Copy(io.Discard, data.Literal)
			if readErr != nil {
				s.logger.Debug("error reading body literal", "uid", uid, "error", readErr)
				raw = nil
			}
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch message UID %d: %w", uid, err)
	}

	if raw != nil {
		result.Body = extractTextBody(raw, s.logger)
	}
	return result, nil
}

// parseEnvelope builds an envelope from IMAP fetch items. Returns
// false when the message has no UID.
func parseEnvelope(msg *imapclient.FetchMessageData) (envelope, bool) {
	var env envelope
	seen := false
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			env.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			for _, f := range data.Flags {
				if f == imap.FlagSeen {
					seen = true
				}
			}
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				env.Date = data.Envelope.Date
				env.Subject = data.Envelope.Subject
				if len(data.Envelope.From) > 0 {
					env.From = formatAddress(data.Envelope.From[0])
				}
			}
		case imapclient.FetchItemDataBodySection:
			if data.Literal != nil {
				_, _ = io.Copy(io.Discard, data.Literal)
			}
		}
	}
	env.Unseen = !seen
	return env, env.UID != 0
}

// formatAddress renders "Name <user@host>" or the bare address.
func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}

// extractTextBody walks the MIME structure and returns the first
// text/plain part, truncated at maxBodyBytes. go-message can return
// both a part and an error for unknown charsets; those are treated as
// non-fatal since garbled text still beats no text.
func extractTextBody(raw []byte, logger *slog.Logger) string {
	mr, err := mail.CreateReader(strings.NewReader(string(raw)))
	if mr == nil {
		if err != nil {
			logger.Debug("message parse failed", "error", err)
		}
		return ""
	}

	for {
		part, partErr := mr.NextPart()
		if part == nil {
			break
		}
		if partErr != nil {
			logger.Debug("message part warning", "error", partErr)
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ctype, _, _ := header.ContentType()
		if ctype != "text/plain" && ctype != "" {
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes+1))
		if readErr != nil && len(body) == 0 {
			continue
		}
		text := string(body)
		if len(text) > maxBodyBytes {
			text = text[:maxBodyBytes] + "\n[truncated]"
		}
		return strings.TrimSpace(text)
	}
	return ""
}

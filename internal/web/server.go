// Package web provides the chat web interface: a server-rendered chat
// page, a websocket for live conversations and a QR code that points
// phones at the public URL.
package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"github.com/yuin/goldmark"

	"github.com/kahyalabs/kahya/internal/assistant"
	"github.com/kahyalabs/kahya/internal/auth"
	"github.com/kahyalabs/kahya/internal/input"
	"github.com/kahyalabs/kahya/internal/memory"
)

//go:embed templates/*.html
var templateFiles embed.FS

// conversationCookie keeps a browser pinned to one conversation.
const conversationCookie = "kahya_conversation"

// historyLimit caps how many messages the chat page renders.
const historyLimit = 50

// Asker processes one conversation turn.
type Asker interface {
	Process(ctx context.Context, conversationID string, in input.Input) *assistant.Reply
}

// Server serves the chat UI.
type Server struct {
	manager   Asker
	store     memory.Store
	verifier  *auth.Verifier
	publicURL string
	markdown  goldmark.Markdown
	template  *template.Template
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewServer creates the web UI server. publicURL feeds the QR code;
// empty disables the endpoint.
func NewServer(manager Asker, store memory.Store, verifier *auth.Verifier, publicURL string, logger *slog.Logger) *Server {
	return &Server{
		manager:   manager,
		store:     store,
		verifier:  verifier,
		publicURL: publicURL,
		markdown:  goldmark.New(),
		template: template.Must(
			template.New("chat.html").ParseFS(templateFiles, "templates/chat.html"),
		),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger.With("component", "web"),
	}
}

// Register mounts the UI routes on a mux. Every route checks the token
// itself; the websocket and the page carry it as a query parameter
// since browsers cannot set headers there.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /chat", s.withAuth(s.handlePage))
	mux.HandleFunc("POST /chat", s.withAuth(s.handleSend))
	mux.HandleFunc("GET /ws", s.withAuth(s.handleSocket))
	mux.HandleFunc("GET /qr.png", s.withAuth(s.handleQR))
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.verifier.AllowRequest(r) {
			http.Error(w, "missing or invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// conversationID reads the conversation cookie, minting one when
// absent.
func (s *Server) conversationID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(conversationCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     conversationCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// renderMarkdown converts assistant markdown to safe-for-template HTML.
// On conversion failure the raw text is escaped instead.
func (s *Server) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(text), &buf); err != nil {
		s.logger.Warn("markdown conversion failed", "error", err)
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

// chatMessage is one rendered history entry.
type chatMessage struct {
	Role string
	HTML template.HTML
}

// pageData is the chat template context.
type pageData struct {
	Messages       []chatMessage
	ConversationID string
	Token          string
	ShowQR         bool
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	conversationID := s.conversationID(w, r)

	history, err := s.store.Messages(r.Context(), conversationID, historyLimit)
	if err != nil {
		s.logger.Warn("history load failed", "conversation_id", conversationID, "error", err)
	}

	messages := make([]chatMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, chatMessage{
			Role: m.Role,
			HTML: s.renderMarkdown(m.Content),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = s.template.Execute(w, pageData{
		Messages:       messages,
		ConversationID: conversationID,
		Token:          r.URL.Query().Get("token"),
		ShowQR:         s.publicURL != "",
	})
	if err != nil {
		s.logger.Error("template render failed", "error", err)
	}
}

// handleSend is the no-script fallback: one form turn, then a redirect
// back to the page.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	message := r.PostFormValue("message")
	if message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	conversationID := s.conversationID(w, r)
	s.manager.Process(r.Context(), conversationID, input.Input{Kind: input.KindText, Text: message})

	target := "/chat"
	if token := r.URL.Query().Get("token"); token != "" {
		target += "?token=" + token
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// socketRequest is one inbound websocket message.
type socketRequest struct {
	Input          string `json:"input"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// socketReply is one outbound websocket frame.
type socketReply struct {
	Type           string `json:"type"` // "reply" or "error"
	Text           string `json:"text"`
	HTML           string `json:"html,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("websocket connected", "remote", r.RemoteAddr)

	for {
		var req socketRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if req.Input == "" {
			s.writeSocket(conn, socketReply{Type: "error", Text: "input is required"})
			continue
		}

		reply := s.manager.Process(r.Context(), req.ConversationID, input.Input{
			Kind: input.KindText,
			Text: req.Input,
		})

		frame := socketReply{
			Type:           "reply",
			Text:           reply.Text,
			HTML:           string(s.renderMarkdown(reply.Text)),
			ConversationID: reply.ConversationID,
		}
		if !reply.Success {
			frame.Type = "error"
		}
		s.writeSocket(conn, frame)
	}
}

func (s *Server) writeSocket(conn *websocket.Conn, frame socketReply) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
	}
}

// handleQR serves a QR code for the public URL so phones can join the
// chat without typing an address.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	if s.publicURL == "" {
		http.Error(w, "public URL not configured", http.StatusNotFound)
		return
	}
	png, err := qrcode.Encode(s.publicURL, qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("qr encoding failed", "error", err)
		http.Error(w, "qr encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

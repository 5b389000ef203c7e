package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"time"

	"wagate/internal/domain"
)

const maxWebhookBody = 1 << 20

// Handler serves the webhook: GET answers the subscription challenge, POST
// carries inbound messages and calls.
func (c *Client) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+c.webhookPath, c.handleVerification)
	mux.HandleFunc("POST "+c.webhookPath, c.handleIncoming)
	return mux
}

func (c *Client) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && c.verifyToken != "" && token == c.verifyToken {
		c.logger.Info("whatsapp webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	c.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

func (c *Client) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	if c.appSecret != "" && !c.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		c.logger.Warn("whatsapp invalid signature")
		http.Error(rw, "Forbidden", http.StatusForbidden)
		return
	}

	var payload waPayload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
		c.logger.Warn("whatsapp bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	// Acknowledge before dispatch; the API retries slow webhooks.
	rw.WriteHeader(http.StatusOK)

	ctx := context.WithoutCancel(r.Context())
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			c.processChange(ctx, change.Value)
		}
	}
}

func (c *Client) processChange(ctx context.Context, v waValue) {
	names := make(map[string]string, len(v.Contacts))
	for _, ct := range v.Contacts {
		id := ct.WaID + domain.UserSuffix
		names[id] = ct.Profile.Name
		if c.store != nil {
			if err := c.store.SaveContact(ctx, id, ct.Profile.Name); err != nil {
				c.logger.Warn("index contact failed", "id", id, "err", err)
			}
		}
	}

	for _, m := range v.Messages {
		rec, ok := toRecord(m)
		if !ok {
			c.logger.Debug("whatsapp message type ignored", "type", m.Type, "id", m.ID)
			continue
		}
		if c.store != nil {
			if err := c.store.UpsertChat(ctx, ChatRecord{ID: rec.ChatID, Name: names[rec.ChatID], UpdatedAt: rec.SentAt}); err != nil {
				c.logger.Warn("index chat failed", "chat", rec.ChatID, "err", err)
			}
			if err := c.store.SaveMessage(ctx, rec); err != nil {
				c.logger.Warn("index message failed", "id", rec.ID, "err", err)
			}
		}
		c.logger.Info("whatsapp message received", "from", rec.ChatID, "type", rec.Type, "text_len", len(rec.Body))
		c.emit(domain.Event{Type: domain.EventMessage, Message: c.inbound(rec)})
	}

	for _, call := range v.Calls {
		if call.Event != "connect" {
			continue
		}
		callID := call.ID
		c.emit(domain.Event{Type: domain.EventCall, Call: &domain.Call{
			ID:   callID,
			From: call.From + domain.UserSuffix,
			Reject: func(ctx context.Context) error {
				return c.rejectCall(ctx, callID)
			},
		}})
	}
}

// toRecord converts a webhook message. ok is false for types the bot does
// not handle (reactions, system notices, unknown types).
func toRecord(m waMessage) (MessageRecord, bool) {
	rec := MessageRecord{
		ID:     m.ID,
		ChatID: m.From + domain.UserSuffix,
		Type:   m.Type,
		SentAt: parseTimestamp(m.Timestamp),
	}
	if m.Context != nil {
		rec.QuotedID = m.Context.ID
	}

	switch m.Type {
	case "text":
		if m.Text == nil {
			return rec, false
		}
		rec.Type = "chat"
		rec.Body = m.Text.Body
	case "image", "video", "audio", "document", "sticker":
		media := m.media()
		if media == nil {
			return rec, false
		}
		rec.MediaID = media.ID
		rec.MimeType = media.MimeType
		rec.Filename = media.Filename
		rec.Body = media.Caption
	case "location":
		if m.Location == nil {
			return rec, false
		}
		desc := m.Location.Name
		if m.Location.Address != "" {
			desc += "\n" + m.Location.Address
		}
		rec.Location = &domain.Location{Latitude: m.Location.Latitude, Longitude: m.Location.Longitude, Description: desc}
	case "button":
		if m.Button == nil {
			return rec, false
		}
		rec.Type = "chat"
		rec.Body = m.Button.Text
	case "interactive":
		if m.Interactive == nil {
			return rec, false
		}
		rec.Type = "chat"
		switch {
		case m.Interactive.ButtonReply != nil:
			rec.Body = m.Interactive.ButtonReply.Title
		case m.Interactive.ListReply != nil:
			rec.Body = m.Interactive.ListReply.Title
		default:
			return rec, false
		}
	default:
		return rec, false
	}
	return rec, true
}

func parseTimestamp(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

// verifySignature checks the X-Hub-Signature-256 header.
func (c *Client) verifySignature(body []byte, signature string) bool {
	if len(signature) < 7 || signature[:7] != "sha256=" {
		return false
	}
	expected := signature[7:]

	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// --- Webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Contacts         []waContact `json:"contacts"`
	Messages         []waMessage `json:"messages"`
	Calls            []waCall    `json:"calls"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waMessage struct {
	From        string         `json:"from"`
	ID          string         `json:"id"`
	Timestamp   string         `json:"timestamp"`
	Type        string         `json:"type"`
	Context     *waContext     `json:"context,omitempty"`
	Text        *waText        `json:"text,omitempty"`
	Image       *waMedia       `json:"image,omitempty"`
	Video       *waMedia       `json:"video,omitempty"`
	Audio       *waMedia       `json:"audio,omitempty"`
	Document    *waMedia       `json:"document,omitempty"`
	Sticker     *waMedia       `json:"sticker,omitempty"`
	Location    *waLocation    `json:"location,omitempty"`
	Button      *waButton      `json:"button,omitempty"`
	Interactive *waInteractive `json:"interactive,omitempty"`
}

func (m waMessage) media() *waMedia {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	case "sticker":
		return m.Sticker
	}
	return nil
}

type waContext struct {
	From string `json:"from"`
	ID   string `json:"id"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type waLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

type waButton struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type waInteractive struct {
	Type        string         `json:"type"`
	ButtonReply *waReplyOption `json:"button_reply,omitempty"`
	ListReply   *waReplyOption `json:"list_reply,omitempty"`
}

type waReplyOption struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type waCall struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	Event string `json:"event"`
}

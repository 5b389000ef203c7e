package chattest

import (
	"context"
	"sync"
	"time"

	"wagate/internal/domain"
)

// Handle is a fake domain.MessageHandle bound to a Client and Chat.
type Handle struct {
	client *Client
	chat   *Chat
	id     string
	from   string
	quoted *domain.InboundMessage
	media  *domain.MediaRef

	mu        sync.Mutex
	reactions []string
	edits     []string
	deleted   bool
}

// Message builds an inbound message in chat. Options customize the snapshot.
func Message(c *Client, chat *Chat, id, body string, opts ...Option) *domain.InboundMessage {
	h := &Handle{client: c, chat: chat, id: id, from: chat.ID()}
	msg := &domain.InboundMessage{
		ID:          id,
		From:        chat.ID(),
		Body:        body,
		Type:        "chat",
		IsFromGroup: chat.IsGroup(),
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		Handle:      h,
	}
	for _, opt := range opts {
		opt(msg, h)
	}
	return msg
}

// Option customizes a fake message.
type Option func(*domain.InboundMessage, *Handle)

// FromMe marks the message as sent by the session itself.
func FromMe() Option {
	return func(m *domain.InboundMessage, _ *Handle) { m.FromMe = true }
}

// WithMedia attaches media.
func WithMedia(ref *domain.MediaRef) Option {
	return func(m *domain.InboundMessage, h *Handle) {
		m.HasMedia = true
		h.media = ref
	}
}

// Quoting makes the message a reply to quoted.
func Quoting(quoted *domain.InboundMessage) Option {
	return func(m *domain.InboundMessage, h *Handle) {
		m.HasQuotedMessage = true
		h.quoted = quoted
	}
}

// WithLocation attaches a location.
func WithLocation(loc domain.Location) Option {
	return func(m *domain.InboundMessage, _ *Handle) { m.Location = &loc }
}

// WithAuthor sets the group author.
func WithAuthor(author string) Option {
	return func(m *domain.InboundMessage, _ *Handle) { m.Author = author }
}

// HandleOf returns the fake handle behind msg.
func HandleOf(msg *domain.InboundMessage) *Handle {
	return msg.Handle.(*Handle)
}

func (h *Handle) Chat(ctx context.Context) (domain.Chat, error) {
	if h.chat == nil {
		return nil, domain.ErrChatNotFound
	}
	return h.chat, nil
}

func (h *Handle) QuotedMessage(ctx context.Context) (*domain.InboundMessage, error) {
	return h.quoted, nil
}

func (h *Handle) Contact(ctx context.Context) (*domain.Contact, error) {
	return &domain.Contact{ID: h.from, Number: domain.UserPart(h.from), PushName: "Tester"}, nil
}

func (h *Handle) DownloadMedia(ctx context.Context) (*domain.MediaRef, error) {
	if h.media == nil {
		return nil, domain.ErrNoMedia
	}
	return h.media, nil
}

func (h *Handle) Reply(ctx context.Context, content domain.Content, opts *domain.SendOptions) (*domain.SentMessage, error) {
	o := domain.SendOptions{}
	if opts != nil {
		o = *opts
	}
	o.QuotedMessageID = h.id
	return h.client.SendMessage(ctx, h.from, content, &o)
}

func (h *Handle) React(ctx context.Context, emoji string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reactions = append(h.reactions, emoji)
	return nil
}

func (h *Handle) Edit(ctx context.Context, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.edits = append(h.edits, text)
	return nil
}

func (h *Handle) Delete(ctx context.Context, everyone bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = true
	return nil
}

// Reactions returns recorded reactions.
func (h *Handle) Reactions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.reactions...)
}

// Edits returns recorded edits.
func (h *Handle) Edits() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.edits...)
}

// Deleted reports whether Delete was called.
func (h *Handle) Deleted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deleted
}

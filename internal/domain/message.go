package domain

import (
	"context"
	"strings"
	"time"
)

// Address suffixes used by the network.
const (
	UserSuffix  = "@c.us"
	GroupSuffix = "@g.us"
)

// UserPart strips the server suffix from an address.
func UserPart(address string) string {
	if i := strings.IndexByte(address, '@'); i >= 0 {
		return address[:i]
	}
	return address
}

// InboundMessage is an immutable snapshot of a received message. Handle
// gives lazy access to related objects and message-level actions.
type InboundMessage struct {
	ID               string
	From             string // chat address the message arrived in
	Author           string // sender inside a group; empty for direct chats
	Body             string
	Type             string
	HasMedia         bool
	HasQuotedMessage bool
	IsFromGroup      bool
	FromMe           bool
	Location         *Location
	Timestamp        time.Time

	Handle MessageHandle `json:"-"`
}

// MessageHandle is the back-reference from a snapshot to the live client.
type MessageHandle interface {
	Chat(ctx context.Context) (Chat, error)
	QuotedMessage(ctx context.Context) (*InboundMessage, error)
	Contact(ctx context.Context) (*Contact, error)
	DownloadMedia(ctx context.Context) (*MediaRef, error)

	Reply(ctx context.Context, content Content, opts *SendOptions) (*SentMessage, error)
	React(ctx context.Context, emoji string) error
	Edit(ctx context.Context, text string) error
	Delete(ctx context.Context, everyone bool) error
}

// Contact is a network participant.
type Contact struct {
	ID       string `json:"id"`
	Number   string `json:"number"`
	PushName string `json:"pushName,omitempty"`
}

// Call is an incoming or outgoing call notification.
type Call struct {
	ID      string
	From    string
	FromMe  bool
	IsGroup bool
	IsVideo bool

	Reject func(ctx context.Context) error `json:"-"`
}

// SendOptions tunes a single send.
type SendOptions struct {
	Caption         string
	QuotedMessageID string
	Mentions        []string
}

// SentMessage is what a successful send returns; it is surfaced verbatim in
// API responses.
type SentMessage struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Body      string    `json:"body,omitempty"`
	Type      string    `json:"type"`
	FromMe    bool      `json:"fromMe"`
	Timestamp time.Time `json:"timestamp"`
}

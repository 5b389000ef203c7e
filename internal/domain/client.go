package domain

import (
	"context"
	"errors"
)

var (
	// ErrUnsupported is returned by a ChatClient for operations its network
	// backend cannot perform.
	ErrUnsupported = errors.New("operation not supported by chat client")
	// ErrChatNotFound is returned when no chat exists for an address.
	ErrChatNotFound = errors.New("chat not found")
	// ErrNoMedia is returned when media is requested from a message without any.
	ErrNoMedia = errors.New("message has no media")
	// ErrNotReady is returned when an operation needs an initialized session.
	ErrNotReady = errors.New("chat client not ready")
)

// EventType names a lifecycle or traffic event emitted by a ChatClient.
type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventAuthFailure   EventType = "auth_failure"
	EventReady         EventType = "ready"
	EventDisconnected  EventType = "disconnected"
	EventMessage       EventType = "message"
	EventCall          EventType = "call"
	EventLoadingScreen EventType = "loading_screen"
)

// Event is a single emission from a ChatClient. Only the fields relevant to
// Type are set.
type Event struct {
	Type    EventType
	QR      string          // EventQR: raw challenge payload
	Reason  string          // EventDisconnected, EventAuthFailure
	Message *InboundMessage // EventMessage
	Call    *Call           // EventCall
	Percent int             // EventLoadingScreen
	Text    string          // EventLoadingScreen
}

// EventHandler receives ChatClient events.
type EventHandler func(Event)

// SessionInfo describes the account the session is logged into.
type SessionInfo struct {
	DisplayName string `json:"displayName"`
	SelfAddress string `json:"selfAddress"`
	Platform    string `json:"platform"`
}

// User returns the bare user part of the self address.
func (i SessionInfo) User() string {
	return UserPart(i.SelfAddress)
}

// ChatClient is the chat network capability: protocol, auth and transport
// live behind it.
type ChatClient interface {
	// Initialize starts the client. Lifecycle progress is reported through
	// the registered event handler, not the return value.
	Initialize(ctx context.Context) error
	Destroy(ctx context.Context) error
	// OnEvent registers the single event handler. It must be set before
	// Initialize.
	OnEvent(handler EventHandler)
	Info() *SessionInfo

	SendMessage(ctx context.Context, to string, content Content, opts *SendOptions) (*SentMessage, error)
	IsRegisteredUser(ctx context.Context, address string) (bool, error)
	GetChatByID(ctx context.Context, address string) (Chat, error)
	GetChats(ctx context.Context) ([]Chat, error)
	AcceptInvite(ctx context.Context, code string) (string, error)
	SetStatus(ctx context.Context, status string) error
}

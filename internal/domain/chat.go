package domain

import (
	"context"
	"time"
)

// GroupInfo is present on group chats only.
type GroupInfo struct {
	Description  string
	CreatedAt    time.Time
	Owner        string
	Participants []string
}

// Chat is a live conversation handle obtained from a ChatClient.
type Chat interface {
	ID() string
	Name() string
	IsGroup() bool
	// Group returns nil for direct chats.
	Group() *GroupInfo

	SendMessage(ctx context.Context, content Content, opts *SendOptions) (*SentMessage, error)
	SendSeen(ctx context.Context) error
	ClearMessages(ctx context.Context) (bool, error)

	SetSubject(ctx context.Context, subject string) error
	SetDescription(ctx context.Context, description string) error
	Leave(ctx context.Context) error

	Pin(ctx context.Context) error
	Archive(ctx context.Context) error
	Mute(ctx context.Context, until time.Time) error

	SendStateTyping(ctx context.Context) error
	SendStateRecording(ctx context.Context) error
	ClearState(ctx context.Context) error

	Labels(ctx context.Context) ([]string, error)
	ChangeLabels(ctx context.Context, labelIDs []string) error
}

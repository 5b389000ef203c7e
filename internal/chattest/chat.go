package chattest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wagate/internal/domain"
)

// Chat is a fake domain.Chat that records every mutation as a string in
// Calls (e.g. "subject:new name", "pin").
type Chat struct {
	id     string
	name   string
	group  *domain.GroupInfo
	client *Client

	mu       sync.Mutex
	calls    []string
	labels   []string
	ClearErr error
}

// NewChat builds a direct chat.
func NewChat(id, name string) *Chat {
	return &Chat{id: id, name: name}
}

// NewGroup builds a group chat.
func NewGroup(id, name string, info domain.GroupInfo) *Chat {
	return &Chat{id: id, name: name, group: &info}
}

func (c *Chat) ID() string               { return c.id }
func (c *Chat) Name() string             { return c.name }
func (c *Chat) IsGroup() bool            { return c.group != nil }
func (c *Chat) Group() *domain.GroupInfo { return c.group }

// Calls returns recorded mutations in order.
func (c *Chat) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *Chat) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return nil
}

func (c *Chat) SendMessage(ctx context.Context, content domain.Content, opts *domain.SendOptions) (*domain.SentMessage, error) {
	return c.client.SendMessage(ctx, c.id, content, opts)
}

func (c *Chat) SendSeen(ctx context.Context) error { return c.record("seen") }

func (c *Chat) ClearMessages(ctx context.Context) (bool, error) {
	if c.ClearErr != nil {
		return false, c.ClearErr
	}
	c.record("clear")
	return true, nil
}

func (c *Chat) SetSubject(ctx context.Context, s string) error {
	return c.record("subject:" + s)
}

func (c *Chat) SetDescription(ctx context.Context, s string) error {
	return c.record("desc:" + s)
}

func (c *Chat) Leave(ctx context.Context) error   { return c.record("leave") }
func (c *Chat) Pin(ctx context.Context) error     { return c.record("pin") }
func (c *Chat) Archive(ctx context.Context) error { return c.record("archive") }

func (c *Chat) Mute(ctx context.Context, until time.Time) error {
	return c.record("mute")
}

func (c *Chat) SendStateTyping(ctx context.Context) error    { return c.record("typing") }
func (c *Chat) SendStateRecording(ctx context.Context) error { return c.record("recording") }
func (c *Chat) ClearState(ctx context.Context) error         { return c.record("clearstate") }

func (c *Chat) Labels(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.labels...), nil
}

func (c *Chat) ChangeLabels(ctx context.Context, ids []string) error {
	c.mu.Lock()
	c.labels = append([]string(nil), ids...)
	c.mu.Unlock()
	return c.record(fmt.Sprintf("labels:%v", ids))
}

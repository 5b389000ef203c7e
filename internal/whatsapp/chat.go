package whatsapp

import (
	"context"
	"time"

	"wagate/internal/domain"
)

// chat is a conversation from the local index. Group administration,
// labels and chat-list state are not exposed by the Cloud API.
type chat struct {
	client *Client
	rec    ChatRecord
}

func (c *chat) ID() string               { return c.rec.ID }
func (c *chat) Name() string             { return c.rec.Name }
func (c *chat) IsGroup() bool            { return c.rec.IsGroup }
func (c *chat) Group() *domain.GroupInfo { return nil }

func (c *chat) SendMessage(ctx context.Context, content domain.Content, opts *domain.SendOptions) (*domain.SentMessage, error) {
	return c.client.SendMessage(ctx, c.rec.ID, content, opts)
}

// SendSeen marks the newest inbound message read.
func (c *chat) SendSeen(ctx context.Context) error {
	return c.markLastRead(ctx, false)
}

// ClearMessages drops the local history of the chat.
func (c *chat) ClearMessages(ctx context.Context) (bool, error) {
	if c.client.store == nil {
		return false, domain.ErrUnsupported
	}
	n, err := c.client.store.ClearMessages(ctx, c.rec.ID)
	if err != nil {
		return false, err
	}
	c.client.logger.Info("chat history cleared", "chat", c.rec.ID, "messages", n)
	return true, nil
}

// SendStateTyping shows the typing indicator. It clears itself after the
// next reply or a short timeout.
func (c *chat) SendStateTyping(ctx context.Context) error {
	return c.markLastRead(ctx, true)
}

func (c *chat) markLastRead(ctx context.Context, typing bool) error {
	if c.client.store == nil {
		return nil
	}
	last, err := c.client.store.LastInbound(ctx, c.rec.ID)
	if err != nil || last == nil {
		return err
	}
	return c.client.markRead(ctx, last.ID, typing)
}

func (c *chat) SetSubject(context.Context, string) error     { return domain.ErrUnsupported }
func (c *chat) SetDescription(context.Context, string) error { return domain.ErrUnsupported }
func (c *chat) Leave(context.Context) error                  { return domain.ErrUnsupported }
func (c *chat) Pin(context.Context) error                    { return domain.ErrUnsupported }
func (c *chat) Archive(context.Context) error                { return domain.ErrUnsupported }
func (c *chat) Mute(context.Context, time.Time) error        { return domain.ErrUnsupported }
func (c *chat) SendStateRecording(context.Context) error     { return domain.ErrUnsupported }
func (c *chat) ClearState(context.Context) error             { return domain.ErrUnsupported }
func (c *chat) Labels(context.Context) ([]string, error)     { return nil, domain.ErrUnsupported }
func (c *chat) ChangeLabels(context.Context, []string) error { return domain.ErrUnsupported }

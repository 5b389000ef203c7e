package whatsapp

import (
	"context"

	"wagate/internal/domain"
)

// handle backs an InboundMessage with the client and its index.
type handle struct {
	client *Client
	rec    MessageRecord
}

func (c *Client) inbound(rec MessageRecord) *domain.InboundMessage {
	return &domain.InboundMessage{
		ID:               rec.ID,
		From:             rec.ChatID,
		Author:           rec.Author,
		Body:             rec.Body,
		Type:             rec.Type,
		HasMedia:         rec.MediaID != "",
		HasQuotedMessage: rec.QuotedID != "",
		IsFromGroup:      false,
		FromMe:           rec.FromMe,
		Location:         rec.Location,
		Timestamp:        rec.SentAt,
		Handle:           &handle{client: c, rec: rec},
	}
}

func (h *handle) Chat(ctx context.Context) (domain.Chat, error) {
	return h.client.GetChatByID(ctx, h.rec.ChatID)
}

// QuotedMessage returns nil when the quoted message predates the index.
func (h *handle) QuotedMessage(ctx context.Context) (*domain.InboundMessage, error) {
	if h.rec.QuotedID == "" || h.client.store == nil {
		return nil, nil
	}
	rec, err := h.client.store.GetMessage(ctx, h.rec.QuotedID)
	if err != nil || rec == nil {
		return nil, err
	}
	return h.client.inbound(*rec), nil
}

func (h *handle) Contact(ctx context.Context) (*domain.Contact, error) {
	id := h.rec.Author
	if id == "" {
		id = h.rec.ChatID
	}
	contact := &domain.Contact{ID: id, Number: domain.UserPart(id)}
	if h.client.store != nil {
		name, err := h.client.store.ContactName(ctx, id)
		if err != nil {
			return nil, err
		}
		contact.PushName = name
	}
	return contact, nil
}

func (h *handle) DownloadMedia(ctx context.Context) (*domain.MediaRef, error) {
	if h.rec.MediaID == "" {
		return nil, domain.ErrNoMedia
	}
	return h.client.downloadMedia(ctx, h.rec.MediaID, h.rec.Filename)
}

func (h *handle) Reply(ctx context.Context, content domain.Content, opts *domain.SendOptions) (*domain.SentMessage, error) {
	o := domain.SendOptions{}
	if opts != nil {
		o = *opts
	}
	o.QuotedMessageID = h.rec.ID
	return h.client.SendMessage(ctx, h.rec.ChatID, content, &o)
}

func (h *handle) React(ctx context.Context, emoji string) error {
	return h.client.react(ctx, h.rec.ChatID, h.rec.ID, emoji)
}

func (h *handle) Edit(context.Context, string) error { return domain.ErrUnsupported }

func (h *handle) Delete(context.Context, bool) error { return domain.ErrUnsupported }

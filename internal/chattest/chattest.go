// Package chattest provides an in-memory domain.ChatClient for tests.
package chattest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wagate/internal/domain"
)

// Sent records one outbound send.
type Sent struct {
	To      string
	Content domain.Content
	Opts    *domain.SendOptions
}

// Text returns the text payload, or "" for non-text content.
func (s Sent) Text() string {
	if t, ok := s.Content.(domain.Text); ok {
		return string(t)
	}
	return ""
}

// Client is a scriptable fake. Every address is registered unless listed in
// Unregistered.
type Client struct {
	mu      sync.Mutex
	handler domain.EventHandler
	sent    []Sent
	seq     int

	Unregistered map[string]bool
	RegisterErr  error
	SendErr      error
	InitErr      error
	InviteErr    error
	InfoValue    *domain.SessionInfo
	Chats        map[string]*Chat
	Status       string
	Inits        int
	Destroys     int
	Checks       int

	// OnInitialize runs synchronously inside Initialize, e.g. to emit a
	// scripted lifecycle.
	OnInitialize func(c *Client)
}

// New returns an empty fake client.
func New() *Client {
	return &Client{
		Unregistered: make(map[string]bool),
		Chats:        make(map[string]*Chat),
		InfoValue:    &domain.SessionInfo{DisplayName: "Bot", SelfAddress: "6280000000000@c.us", Platform: "test"},
	}
}

// Emit delivers an event to the registered handler.
func (c *Client) Emit(ev domain.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	c.Inits++
	err := c.InitErr
	hook := c.OnInitialize
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(c)
	}
	return nil
}

func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Destroys++
	return nil
}

// InitCount returns the number of Initialize calls so far.
func (c *Client) InitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Inits
}

// DestroyCount returns the number of Destroy calls so far.
func (c *Client) DestroyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Destroys
}

func (c *Client) OnEvent(handler domain.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Client) Info() *domain.SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.InfoValue
}

func (c *Client) SendMessage(ctx context.Context, to string, content domain.Content, opts *domain.SendOptions) (*domain.SentMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return nil, c.SendErr
	}
	c.sent = append(c.sent, Sent{To: to, Content: content, Opts: opts})
	c.seq++
	msg := &domain.SentMessage{
		ID:        fmt.Sprintf("out-%d", c.seq),
		To:        to,
		Type:      string(content.Kind()),
		FromMe:    true,
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	if t, ok := content.(domain.Text); ok {
		msg.Body = string(t)
	}
	return msg, nil
}

// Sent returns a copy of every recorded send.
func (c *Client) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *Client) IsRegisteredUser(ctx context.Context, address string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Checks++
	if c.RegisterErr != nil {
		return false, c.RegisterErr
	}
	return !c.Unregistered[address], nil
}

func (c *Client) GetChatByID(ctx context.Context, address string) (domain.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.Chats[address]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	return ch, nil
}

func (c *Client) GetChats(ctx context.Context) ([]domain.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Chat, 0, len(c.Chats))
	for _, ch := range c.Chats {
		out = append(out, ch)
	}
	return out, nil
}

func (c *Client) AcceptInvite(ctx context.Context, code string) (string, error) {
	if c.InviteErr != nil {
		return "", c.InviteErr
	}
	if code == "" {
		return "", errors.New("empty invite code")
	}
	return code + "@g.us", nil
}

func (c *Client) SetStatus(ctx context.Context, status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = status
	return nil
}

// AddChat registers a chat so GetChatByID and message handles can find it.
func (c *Client) AddChat(ch *Chat) *Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch.client = c
	c.Chats[ch.id] = ch
	return ch
}

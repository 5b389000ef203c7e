// Package whatsapp implements the chat client against the WhatsApp Business
// Cloud API, with a local SQLite index for history the API does not keep.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"wagate/internal/domain"
	"wagate/internal/httpclient"
)

const (
	defaultAPIBase     = "https://graph.facebook.com/v21.0"
	defaultWebhookPath = "/webhook/whatsapp"
	platformName       = "cloud_api"
)

// Config configures a Client.
type Config struct {
	AccessToken   string
	PhoneNumberID string
	// VerifyToken answers the webhook subscription challenge.
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret   string
	APIBase     string
	WebhookPath string

	// MaxRetries bounds retries of sends answered with 429 or 5xx. Zero uses
	// the default, negative disables retries.
	MaxRetries   int
	RetryBackoff time.Duration
	// SendRatePerMinute throttles outbound messages. Zero disables.
	SendRatePerMinute float64
	SendBurst         int

	Store      *Store
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a domain.ChatClient for the Cloud API. Inbound traffic arrives
// through Handler, which must be mounted on the HTTP server.
type Client struct {
	token         string
	phoneNumberID string
	verifyToken   string
	appSecret     string
	apiBase       string
	webhookPath   string
	store         *Store
	http          *http.Client
	logger        *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
	sendLimiter  *rateLimiter

	mu      sync.RWMutex
	handler domain.EventHandler
	info    *domain.SessionInfo
}

// New creates a client. It does not contact the API until Initialize.
func New(cfg Config) *Client {
	c := &Client{
		token:         cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		verifyToken:   cfg.VerifyToken,
		appSecret:     cfg.AppSecret,
		apiBase:       strings.TrimRight(cfg.APIBase, "/"),
		webhookPath:   cfg.WebhookPath,
		store:         cfg.Store,
		http:          cfg.HTTPClient,
		logger:        cfg.Logger,
		maxRetries:    cfg.MaxRetries,
		retryBackoff:  cfg.RetryBackoff,
		sendLimiter:   newRateLimiter(cfg.SendBurst, cfg.SendRatePerMinute),
	}
	switch {
	case c.maxRetries == 0:
		c.maxRetries = defaultMaxRetries
	case c.maxRetries < 0:
		c.maxRetries = 0
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}
	if c.apiBase == "" {
		c.apiBase = defaultAPIBase
	}
	if c.webhookPath == "" {
		c.webhookPath = defaultWebhookPath
	}
	if c.http == nil {
		c.http = httpclient.New(30 * time.Second)
	}
	return c
}

// WebhookPath is where Handler expects to be mounted.
func (c *Client) WebhookPath() string { return c.webhookPath }

func (c *Client) OnEvent(handler domain.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Client) emit(ev domain.Event) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(ev)
	}
}

// Initialize verifies the credentials by fetching the phone number profile.
// A rejected token is reported as auth_failure, any other failure as
// disconnected.
func (c *Client) Initialize(ctx context.Context) error {
	if c.token == "" || c.phoneNumberID == "" {
		return errors.New("whatsapp: access token and phone number id are required")
	}
	c.emit(domain.Event{Type: domain.EventLoadingScreen, Percent: 0, Text: "Connecting to the Cloud API"})

	profile, err := c.fetchPhoneNumber(ctx)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			c.logger.Warn("whatsapp credentials rejected", "err", err)
			c.emit(domain.Event{Type: domain.EventAuthFailure, Reason: apiErr.Message})
			return nil
		}
		c.logger.Warn("whatsapp initialize failed", "err", err)
		c.emit(domain.Event{Type: domain.EventDisconnected, Reason: err.Error()})
		return nil
	}

	info := &domain.SessionInfo{
		DisplayName: profile.VerifiedName,
		SelfAddress: digitsOnly(profile.DisplayPhoneNumber) + domain.UserSuffix,
		Platform:    platformName,
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	c.emit(domain.Event{Type: domain.EventLoadingScreen, Percent: 50, Text: "Credentials verified"})
	c.emit(domain.Event{Type: domain.EventAuthenticated})
	c.emit(domain.Event{Type: domain.EventLoadingScreen, Percent: 100, Text: "Ready"})
	c.emit(domain.Event{Type: domain.EventReady})
	c.logger.Info("whatsapp client ready", "number", info.User(), "name", info.DisplayName)
	return nil
}

// Destroy forgets the session. The Cloud API holds no connection to close.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = nil
	return nil
}

func (c *Client) Info() *domain.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return nil
	}
	info := *c.info
	return &info
}

func (c *Client) ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info != nil
}

// SendMessage sends content to a user address and records it as our own
// message.
func (c *Client) SendMessage(ctx context.Context, to string, content domain.Content, opts *domain.SendOptions) (*domain.SentMessage, error) {
	if !c.ready() {
		return nil, domain.ErrNotReady
	}
	if !strings.HasSuffix(to, domain.UserSuffix) {
		return nil, fmt.Errorf("send to %s: %w", to, domain.ErrUnsupported)
	}

	payload, err := c.buildPayload(ctx, domain.UserPart(to), content, opts)
	if err != nil {
		return nil, err
	}
	id, err := c.postMessage(ctx, payload)
	if err != nil {
		return nil, err
	}

	sent := &domain.SentMessage{
		ID:        id,
		To:        to,
		Type:      string(content.Kind()),
		FromMe:    true,
		Timestamp: time.Now().UTC(),
	}
	rec := MessageRecord{ID: id, ChatID: to, Type: string(content.Kind()), FromMe: true, SentAt: sent.Timestamp}
	switch v := content.(type) {
	case domain.Text:
		sent.Body = string(v)
		rec.Type = "chat"
		rec.Body = string(v)
	case *domain.MediaRef:
		rec.MimeType = v.MimeType
		rec.Filename = v.Filename
		rec.MediaID = payload.mediaID
	case domain.Location:
		rec.Location = &v
	}
	if opts != nil {
		rec.QuotedID = opts.QuotedMessageID
	}
	c.record(ctx, rec)
	return sent, nil
}

// record indexes a message and its chat. Index failures never fail a send.
func (c *Client) record(ctx context.Context, rec MessageRecord) {
	if c.store == nil {
		return
	}
	if err := c.store.UpsertChat(ctx, ChatRecord{ID: rec.ChatID, UpdatedAt: rec.SentAt}); err != nil {
		c.logger.Warn("index chat failed", "chat", rec.ChatID, "err", err)
	}
	if err := c.store.SaveMessage(ctx, rec); err != nil {
		c.logger.Warn("index message failed", "id", rec.ID, "err", err)
	}
}

// IsRegisteredUser accepts any user address with a plausible E.164 length.
// The Cloud API offers no contact lookup; unknown numbers fail at send time.
func (c *Client) IsRegisteredUser(ctx context.Context, address string) (bool, error) {
	user, ok := strings.CutSuffix(address, domain.UserSuffix)
	if !ok {
		return false, nil
	}
	if digitsOnly(user) != user {
		return false, nil
	}
	return len(user) >= 8 && len(user) <= 15, nil
}

func (c *Client) GetChatByID(ctx context.Context, address string) (domain.Chat, error) {
	if c.store == nil {
		return nil, domain.ErrChatNotFound
	}
	rec, err := c.store.GetChat(ctx, address)
	if err != nil {
		return nil, err
	}
	return &chat{client: c, rec: *rec}, nil
}

func (c *Client) GetChats(ctx context.Context) ([]domain.Chat, error) {
	if c.store == nil {
		return nil, nil
	}
	recs, err := c.store.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Chat, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &chat{client: c, rec: rec})
	}
	return out, nil
}

// AcceptInvite is not available: business numbers cannot join groups by
// invite.
func (c *Client) AcceptInvite(ctx context.Context, code string) (string, error) {
	return "", domain.ErrUnsupported
}

// SetStatus updates the business profile "about" text.
func (c *Client) SetStatus(ctx context.Context, status string) error {
	return c.post(ctx, c.phoneNumberID+"/whatsapp_business_profile", map[string]any{
		"messaging_product": "whatsapp",
		"about":             status,
	}, nil)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

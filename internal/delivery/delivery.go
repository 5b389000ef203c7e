// Package delivery validates, normalizes and transmits outbound requests on
// behalf of the HTTP API.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wagate/internal/domain"
	"wagate/internal/httpclient"
	"wagate/internal/metrics"
	"wagate/internal/notice"
	"wagate/internal/phone"
)

// DefaultMaxMediaBytes caps fetched and uploaded attachments.
const DefaultMaxMediaBytes = 16 << 20

// Config configures a Service.
type Config struct {
	Client     domain.ChatClient
	Logger     *slog.Logger
	Notices    *notice.Catalog
	Normalizer phone.Normalizer
	// HTTPClient fetches media URLs. Defaults to a pooled client.
	HTTPClient *http.Client
	// MaxMediaBytes bounds a single attachment.
	MaxMediaBytes int64
	// DefaultFilename names fetched media whose URL has no usable basename.
	DefaultFilename string
}

// Service performs deliveries. Requests are independent; nothing is queued.
type Service struct {
	client          domain.ChatClient
	logger          *slog.Logger
	notices         *notice.Catalog
	normalizer      phone.Normalizer
	http            *http.Client
	maxMediaBytes   int64
	defaultFilename string
}

// New creates a delivery service.
func New(cfg Config) *Service {
	s := &Service{
		client:          cfg.Client,
		logger:          cfg.Logger,
		notices:         cfg.Notices,
		normalizer:      cfg.Normalizer,
		http:            cfg.HTTPClient,
		maxMediaBytes:   cfg.MaxMediaBytes,
		defaultFilename: cfg.DefaultFilename,
	}
	if s.notices == nil {
		s.notices = notice.Default()
	}
	if s.normalizer.CountryCode == "" {
		s.normalizer = phone.New(phone.DefaultCountryCode)
	}
	if s.http == nil {
		s.http = httpclient.New(0)
	}
	if s.maxMediaBytes <= 0 {
		s.maxMediaBytes = DefaultMaxMediaBytes
	}
	if s.defaultFilename == "" {
		s.defaultFilename = "Media"
	}
	return s
}

// SendText sends message to recipient.
func (s *Service) SendText(ctx context.Context, recipient, message string) Result {
	fields := map[string]string{}
	s.require(fields, "number", recipient)
	s.require(fields, "message", message)
	if len(fields) > 0 {
		return s.record(invalid(fields))
	}

	to, res, ok := s.resolve(ctx, recipient)
	if !ok {
		return s.record(res)
	}
	return s.record(s.transmit(ctx, to, domain.Text(message), nil))
}

// MediaSource names where an attachment comes from. Exactly one field must be
// set.
type MediaSource struct {
	URL    string
	Upload *Upload
}

// Upload is an attachment received with the request.
type Upload struct {
	Filename string
	MimeType string
	Data     []byte
}

// SendMedia sends an attachment with an optional caption.
func (s *Service) SendMedia(ctx context.Context, recipient string, src MediaSource, caption string) Result {
	fields := map[string]string{}
	s.require(fields, "number", recipient)
	hasURL := strings.TrimSpace(src.URL) != ""
	switch {
	case hasURL && src.Upload != nil:
		fields["file"] = s.notices.Get(notice.APIFileExclusive)
	case !hasURL && src.Upload == nil:
		fields["file"] = s.notices.Get(notice.APIInvalidValue)
	}
	if len(fields) > 0 {
		return s.record(invalid(fields))
	}

	to, res, ok := s.resolve(ctx, recipient)
	if !ok {
		return s.record(res)
	}

	var ref *domain.MediaRef
	var err error
	if hasURL {
		ref, err = s.fetch(ctx, strings.TrimSpace(src.URL))
	} else {
		ref, err = s.fromUpload(src.Upload)
	}
	if err != nil {
		return s.record(failed(err))
	}

	var opts *domain.SendOptions
	if caption != "" {
		opts = &domain.SendOptions{Caption: caption}
	}
	return s.record(s.transmit(ctx, to, ref, opts))
}

// ClearChatHistory clears the conversation with recipient. The payload is the
// client's acknowledgement.
func (s *Service) ClearChatHistory(ctx context.Context, recipient string) Result {
	fields := map[string]string{}
	s.require(fields, "number", recipient)
	if len(fields) > 0 {
		return s.record(invalid(fields))
	}

	to, res, ok := s.resolve(ctx, recipient)
	if !ok {
		return s.record(res)
	}
	chat, err := s.client.GetChatByID(ctx, to)
	if err != nil {
		return s.record(failed(fmt.Errorf("get chat %s: %w", to, err)))
	}
	cleared, err := chat.ClearMessages(ctx)
	if err != nil {
		return s.record(failed(err))
	}
	return s.record(succeeded(cleared))
}

func (s *Service) require(fields map[string]string, name, value string) {
	if strings.TrimSpace(value) == "" {
		fields[name] = s.notices.Get(notice.APIInvalidValue)
	}
}

// resolve normalizes recipient and checks it is registered. When ok is false
// res holds the terminal result.
func (s *Service) resolve(ctx context.Context, recipient string) (to string, res Result, ok bool) {
	to = s.normalizer.Normalize(recipient)
	if to == "" {
		return "", invalid(map[string]string{"number": s.notices.Get(notice.APIInvalidValue)}), false
	}
	registered, err := s.client.IsRegisteredUser(ctx, to)
	if err != nil {
		return "", failed(fmt.Errorf("check registration of %s: %w", to, err)), false
	}
	if !registered {
		s.logger.Info("recipient not registered", "to", to)
		return "", unregistered(), false
	}
	return to, Result{}, true
}

func (s *Service) transmit(ctx context.Context, to string, content domain.Content, opts *domain.SendOptions) Result {
	start := time.Now()
	sent, err := s.client.SendMessage(ctx, to, content, opts)
	metrics.SendLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("send failed", "to", to, "kind", content.Kind(), "err", err)
		return failed(err)
	}
	s.logger.Debug("message sent", "to", to, "kind", content.Kind(), "id", sent.ID)
	return succeeded(sent)
}

func (s *Service) record(res Result) Result {
	metrics.Delivery(res.Kind.String()).Inc()
	return res
}

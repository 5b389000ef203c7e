// Package command routes inbound chat messages through an ordered table of
// "!" commands.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wagate/internal/domain"
	"wagate/internal/metrics"
	"wagate/internal/notice"
	"wagate/internal/phone"
)

// Predicate decides whether a command applies to msg. The returned payload is
// the text after a matched prefix, or "" for other predicate kinds.
type Predicate func(msg *domain.InboundMessage) (payload string, ok bool)

// Handler executes a matched command.
type Handler func(ctx context.Context, msg *domain.InboundMessage, payload string) error

// Command is one row of the dispatch table.
type Command struct {
	Name   string
	Match  Predicate
	Handle Handler
}

// Exact matches a body equal to text.
func Exact(text string) Predicate {
	return func(msg *domain.InboundMessage) (string, bool) {
		return "", msg.Body == text
	}
}

// Prefix matches a body starting with prefix and yields the remainder.
func Prefix(prefix string) Predicate {
	return func(msg *domain.InboundMessage) (string, bool) {
		rest, ok := strings.CutPrefix(msg.Body, prefix)
		return rest, ok
	}
}

// HasMedia matches messages with an attachment.
func HasMedia() Predicate {
	return func(msg *domain.InboundMessage) (string, bool) { return "", msg.HasMedia }
}

// HasQuoted matches replies to another message.
func HasQuoted() Predicate {
	return func(msg *domain.InboundMessage) (string, bool) { return "", msg.HasQuotedMessage }
}

// HasLocation matches messages carrying a location.
func HasLocation() Predicate {
	return func(msg *domain.InboundMessage) (string, bool) { return "", msg.Location != nil }
}

// And matches when every predicate matches. The payload is the first
// non-empty one.
func And(preds ...Predicate) Predicate {
	return func(msg *domain.InboundMessage) (string, bool) {
		var payload string
		for _, p := range preds {
			v, ok := p(msg)
			if !ok {
				return "", false
			}
			if payload == "" {
				payload = v
			}
		}
		return payload, true
	}
}

// Or matches when any predicate matches, returning its payload.
func Or(preds ...Predicate) Predicate {
	return func(msg *domain.InboundMessage) (string, bool) {
		for _, p := range preds {
			if v, ok := p(msg); ok {
				return v, true
			}
		}
		return "", false
	}
}

// Config configures a Dispatcher.
type Config struct {
	Client     domain.ChatClient
	Logger     *slog.Logger
	Notices    *notice.Catalog
	Normalizer phone.Normalizer
	// RejectCalls rejects incoming calls before describing them to the caller.
	RejectCalls bool
	// Commands replaces the built-in table when non-nil.
	Commands []Command
	// Now is the clock used for mute deadlines. Defaults to time.Now.
	Now func() time.Time
}

// Dispatcher evaluates the table in order; the first match wins.
type Dispatcher struct {
	client      domain.ChatClient
	logger      *slog.Logger
	notices     *notice.Catalog
	normalizer  phone.Normalizer
	rejectCalls bool
	now         func() time.Time
	commands    []Command
}

// New creates a dispatcher with the built-in table unless cfg.Commands is set.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		client:      cfg.Client,
		logger:      cfg.Logger,
		notices:     cfg.Notices,
		normalizer:  cfg.Normalizer,
		rejectCalls: cfg.RejectCalls,
		now:         cfg.Now,
	}
	if d.notices == nil {
		d.notices = notice.Default()
	}
	if d.normalizer.CountryCode == "" {
		d.normalizer = phone.New(phone.DefaultCountryCode)
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.commands = cfg.Commands
	if d.commands == nil {
		d.commands = d.builtins()
	}
	return d
}

// Commands returns the dispatch table in priority order.
func (d *Dispatcher) Commands() []Command {
	return d.commands
}

// Dispatch runs the first command matching msg and returns its name. Handler
// failures are logged and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.InboundMessage) (string, bool) {
	for _, cmd := range d.commands {
		payload, ok := cmd.Match(&msg)
		if !ok {
			continue
		}
		metrics.CommandsDispatched.Inc()
		d.logger.Debug("command matched", "command", cmd.Name, "from", msg.From, "id", msg.ID)
		if err := cmd.Handle(ctx, &msg, payload); err != nil {
			metrics.CommandFailures.Inc()
			d.logger.Error("command failed", "command", cmd.Name, "from", msg.From, "err", err)
			if errors.Is(err, domain.ErrUnsupported) {
				d.reply(ctx, &msg, d.notices.Get(notice.Unsupported))
			}
		}
		return cmd.Name, true
	}
	return "", false
}

// HandleMessage adapts Dispatch to the session message callback.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	d.Dispatch(ctx, msg)
}

// reply answers msg, logging rather than returning a failed reply.
func (d *Dispatcher) reply(ctx context.Context, msg *domain.InboundMessage, text string) {
	if _, err := msg.Handle.Reply(ctx, domain.Text(text), nil); err != nil {
		d.logger.Warn("reply failed", "to", msg.From, "err", err)
	}
}

// --- Guards ---

// groupOnly runs fn with the group chat, or replies with the group-only
// notice outside groups.
func (d *Dispatcher) groupOnly(fn func(ctx context.Context, msg *domain.InboundMessage, chat domain.Chat, payload string) error) Handler {
	return func(ctx context.Context, msg *domain.InboundMessage, payload string) error {
		chat, err := msg.Handle.Chat(ctx)
		if err != nil {
			return fmt.Errorf("get chat: %w", err)
		}
		if !chat.IsGroup() {
			d.reply(ctx, msg, d.notices.Get(notice.GroupOnly))
			return nil
		}
		return fn(ctx, msg, chat, payload)
	}
}

// withQuoted runs fn with the quoted message; without one it does nothing.
func withQuoted(fn func(ctx context.Context, msg, quoted *domain.InboundMessage, payload string) error) Handler {
	return func(ctx context.Context, msg *domain.InboundMessage, payload string) error {
		if !msg.HasQuotedMessage {
			return nil
		}
		quoted, err := msg.Handle.QuotedMessage(ctx)
		if err != nil {
			return fmt.Errorf("get quoted message: %w", err)
		}
		if quoted == nil {
			return nil
		}
		return fn(ctx, msg, quoted, payload)
	}
}

// ownQuoted is withQuoted restricted to messages the session sent. Others are
// answered with the rejection notice and left untouched.
func (d *Dispatcher) ownQuoted(rejection string, fn func(ctx context.Context, msg, quoted *domain.InboundMessage, payload string) error) Handler {
	return withQuoted(func(ctx context.Context, msg, quoted *domain.InboundMessage, payload string) error {
		if !quoted.FromMe {
			d.reply(ctx, msg, d.notices.Get(rejection))
			return nil
		}
		return fn(ctx, msg, quoted, payload)
	})
}

// withChat runs fn with the chat the message arrived in.
func withChat(fn func(ctx context.Context, chat domain.Chat) error) Handler {
	return func(ctx context.Context, msg *domain.InboundMessage, _ string) error {
		chat, err := msg.Handle.Chat(ctx)
		if err != nil {
			return fmt.Errorf("get chat: %w", err)
		}
		return fn(ctx, chat)
	}
}

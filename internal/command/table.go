package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wagate/internal/domain"
	"wagate/internal/notice"
)

const muteDuration = 20 * time.Second

// demoLocation is the pin sent by !location.
var demoLocation = domain.Location{
	Latitude:    37.422,
	Longitude:   -122.084,
	Description: "Googleplex\nGoogle Headquarters",
}

// builtins is the default table. Order is priority.
func (d *Dispatcher) builtins() []Command {
	return []Command{
		{Name: "ping reply", Match: Exact("!ping reply"), Handle: d.pingReply},
		{Name: "ping", Match: Exact("!ping"), Handle: d.ping},
		{Name: "sendto", Match: Prefix("!sendto "), Handle: d.sendTo},
		{Name: "subject", Match: Prefix("!subject "), Handle: d.groupOnly(setSubject)},
		{Name: "echo", Match: Prefix("!echo "), Handle: d.echo},
		{Name: "desc", Match: Prefix("!desc "), Handle: d.groupOnly(setDescription)},
		{Name: "leave", Match: Exact("!leave"), Handle: d.groupOnly(leave)},
		{Name: "join", Match: Prefix("!join "), Handle: d.join},
		{Name: "groupinfo", Match: Exact("!groupinfo"), Handle: d.groupOnly(d.groupInfo)},
		{Name: "chats", Match: Exact("!chats"), Handle: d.chats},
		{Name: "info", Match: Exact("!info"), Handle: d.info},
		{Name: "mediainfo", Match: And(Exact("!mediainfo"), HasMedia()), Handle: d.mediaInfo},
		{Name: "quoteinfo", Match: And(Exact("!quoteinfo"), HasQuoted()), Handle: withQuoted(quoteInfo)},
		{Name: "resendmedia", Match: And(Exact("!resendmedia"), HasQuoted()), Handle: withQuoted(d.resendMedia)},
		{Name: "location", Match: Exact("!location"), Handle: sendLocation},
		{Name: "location echo", Match: HasLocation(), Handle: echoLocation},
		{Name: "status", Match: Prefix("!status "), Handle: d.setStatus},
		{Name: "mention", Match: Exact("!mention"), Handle: mention(d.notices)},
		{Name: "delete", Match: Exact("!delete"), Handle: d.ownQuoted(notice.DeleteOwnOnly, deleteQuoted)},
		{Name: "pin", Match: Exact("!pin"), Handle: withChat(func(ctx context.Context, c domain.Chat) error { return c.Pin(ctx) })},
		{Name: "archive", Match: Exact("!archive"), Handle: withChat(func(ctx context.Context, c domain.Chat) error { return c.Archive(ctx) })},
		{Name: "mute", Match: Exact("!mute"), Handle: withChat(d.mute)},
		{Name: "typing", Match: Exact("!typing"), Handle: withChat(func(ctx context.Context, c domain.Chat) error { return c.SendStateTyping(ctx) })},
		{Name: "recording", Match: Exact("!recording"), Handle: withChat(func(ctx context.Context, c domain.Chat) error { return c.SendStateRecording(ctx) })},
		{Name: "clearstate", Match: Exact("!clearstate"), Handle: withChat(func(ctx context.Context, c domain.Chat) error { return c.ClearState(ctx) })},
		{Name: "buttons", Match: Exact("!buttons"), Handle: d.buttons},
		{Name: "list", Match: Exact("!list"), Handle: d.list},
		{Name: "reaction", Match: Exact("!reaction"), Handle: react},
		{Name: "edit", Match: Or(Exact("!edit"), Prefix("!edit ")), Handle: d.ownQuoted(notice.EditOwnOnly, editQuoted)},
		{Name: "updatelabels", Match: Exact("!updatelabels"), Handle: withChat(updateLabels)},
		{Name: "addlabels", Match: Exact("!addlabels"), Handle: withChat(addLabels)},
		{Name: "removelabels", Match: Exact("!removelabels"), Handle: withChat(removeLabels)},
	}
}

func (d *Dispatcher) pingReply(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	_, err := msg.Handle.Reply(ctx, domain.Text(d.notices.Get(notice.Pong)), nil)
	return err
}

func (d *Dispatcher) ping(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	_, err := d.client.SendMessage(ctx, msg.From, domain.Text(d.notices.Get(notice.Pong)), nil)
	return err
}

// sendTo handles "!sendto <number> <text>".
func (d *Dispatcher) sendTo(ctx context.Context, msg *domain.InboundMessage, payload string) error {
	payload = strings.TrimLeft(payload, " ")
	number, text, _ := strings.Cut(payload, " ")
	to := d.normalizer.Normalize(number)
	if to == "" {
		return fmt.Errorf("sendto: no number in %q", payload)
	}
	chat, err := msg.Handle.Chat(ctx)
	if err != nil {
		return fmt.Errorf("get chat: %w", err)
	}
	if err := chat.SendSeen(ctx); err != nil {
		d.logger.Warn("send seen failed", "chat", chat.ID(), "err", err)
	}
	_, err = d.client.SendMessage(ctx, to, domain.Text(strings.TrimSpace(text)), nil)
	return err
}

func setSubject(ctx context.Context, _ *domain.InboundMessage, chat domain.Chat, payload string) error {
	return chat.SetSubject(ctx, payload)
}

func setDescription(ctx context.Context, _ *domain.InboundMessage, chat domain.Chat, payload string) error {
	return chat.SetDescription(ctx, payload)
}

func leave(ctx context.Context, _ *domain.InboundMessage, chat domain.Chat, _ string) error {
	return chat.Leave(ctx)
}

func (d *Dispatcher) echo(ctx context.Context, msg *domain.InboundMessage, payload string) error {
	_, err := msg.Handle.Reply(ctx, domain.Text(payload), nil)
	return err
}

// join handles "!join <code>". Any accept failure is reported as an invalid
// invite.
func (d *Dispatcher) join(ctx context.Context, msg *domain.InboundMessage, payload string) error {
	code, _, _ := strings.Cut(strings.TrimLeft(payload, " "), " ")
	if _, err := d.client.AcceptInvite(ctx, code); err != nil {
		d.logger.Info("invite rejected", "code", code, "err", err)
		d.reply(ctx, msg, d.notices.Get(notice.InvalidInvite))
		return nil
	}
	d.reply(ctx, msg, d.notices.Get(notice.JoinedGroup))
	return nil
}

func (d *Dispatcher) groupInfo(ctx context.Context, msg *domain.InboundMessage, chat domain.Chat, _ string) error {
	g := chat.Group()
	var sb strings.Builder
	sb.WriteString("*Group details*\n")
	fmt.Fprintf(&sb, "Name: %s\n", chat.Name())
	fmt.Fprintf(&sb, "Description: %s\n", g.Description)
	fmt.Fprintf(&sb, "Created At: %s\n", g.CreatedAt.Format(time.RFC1123))
	fmt.Fprintf(&sb, "Created By: %s\n", domain.UserPart(g.Owner))
	fmt.Fprintf(&sb, "Participant count: %d", len(g.Participants))
	_, err := msg.Handle.Reply(ctx, domain.Text(sb.String()), nil)
	return err
}

func (d *Dispatcher) chats(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	chats, err := d.client.GetChats(ctx)
	if err != nil {
		return fmt.Errorf("get chats: %w", err)
	}
	_, err = d.client.SendMessage(ctx, msg.From, domain.Text(d.notices.Format(notice.ChatsCount, len(chats))), nil)
	return err
}

func (d *Dispatcher) info(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	info := d.client.Info()
	if info == nil {
		return domain.ErrNotReady
	}
	text := fmt.Sprintf("*Connection info*\nUser name: %s\nMy number: %s\nPlatform: %s",
		info.DisplayName, info.User(), info.Platform)
	_, err := d.client.SendMessage(ctx, msg.From, domain.Text(text), nil)
	return err
}

func (d *Dispatcher) mediaInfo(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	media, err := msg.Handle.DownloadMedia(ctx)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}
	text := fmt.Sprintf("*Media info*\nMimeType: %s\nFilename: %s\nData (length): %d",
		media.MimeType, media.Filename, len(media.Data))
	_, err = msg.Handle.Reply(ctx, domain.Text(text), nil)
	return err
}

// quoteInfo answers as a reply to the quoted message.
func quoteInfo(ctx context.Context, _, quoted *domain.InboundMessage, _ string) error {
	author := quoted.Author
	if author == "" {
		author = quoted.From
	}
	text := fmt.Sprintf("ID: %s\nType: %s\nAuthor: %s\nTimestamp: %d\nHas Media? %t",
		quoted.ID, quoted.Type, author, quoted.Timestamp.Unix(), quoted.HasMedia)
	_, err := quoted.Handle.Reply(ctx, domain.Text(text), nil)
	return err
}

func (d *Dispatcher) resendMedia(ctx context.Context, msg, quoted *domain.InboundMessage, _ string) error {
	if !quoted.HasMedia {
		return nil
	}
	media, err := quoted.Handle.DownloadMedia(ctx)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}
	_, err = d.client.SendMessage(ctx, msg.From, media, &domain.SendOptions{Caption: d.notices.Get(notice.ResendCaption)})
	return err
}

func sendLocation(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	_, err := msg.Handle.Reply(ctx, demoLocation, nil)
	return err
}

func echoLocation(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	_, err := msg.Handle.Reply(ctx, *msg.Location, nil)
	return err
}

func (d *Dispatcher) setStatus(ctx context.Context, msg *domain.InboundMessage, payload string) error {
	status := strings.TrimSpace(payload)
	if err := d.client.SetStatus(ctx, status); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	d.reply(ctx, msg, d.notices.Format(notice.StatusUpdated, status))
	return nil
}

func mention(notices *notice.Catalog) Handler {
	return func(ctx context.Context, msg *domain.InboundMessage, _ string) error {
		contact, err := msg.Handle.Contact(ctx)
		if err != nil {
			return fmt.Errorf("get contact: %w", err)
		}
		chat, err := msg.Handle.Chat(ctx)
		if err != nil {
			return fmt.Errorf("get chat: %w", err)
		}
		_, err = chat.SendMessage(ctx, domain.Text(notices.Format(notice.Mention, contact.Number)),
			&domain.SendOptions{Mentions: []string{contact.ID}})
		return err
	}
}

func deleteQuoted(ctx context.Context, _, quoted *domain.InboundMessage, _ string) error {
	return quoted.Handle.Delete(ctx, true)
}

func editQuoted(ctx context.Context, _, quoted *domain.InboundMessage, payload string) error {
	return quoted.Handle.Edit(ctx, strings.TrimSpace(payload))
}

func (d *Dispatcher) mute(ctx context.Context, chat domain.Chat) error {
	return chat.Mute(ctx, d.now().Add(muteDuration))
}

func (d *Dispatcher) buttons(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	content := domain.Buttons{
		Body:    "Button body",
		Buttons: []domain.Button{{Body: "bt1"}, {Body: "bt2"}, {Body: "bt3"}},
		Title:   "title",
		Footer:  "footer",
	}
	_, err := d.client.SendMessage(ctx, msg.From, content, nil)
	return err
}

func (d *Dispatcher) list(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	content := domain.List{
		Body:       "List body",
		ButtonText: "btnText",
		Sections: []domain.ListSection{{
			Title: "sectionTitle",
			Rows:  []domain.ListRow{{Title: "ListItem1", Description: "desc"}, {Title: "ListItem2"}},
		}},
		Title:  "Title",
		Footer: "footer",
	}
	_, err := d.client.SendMessage(ctx, msg.From, content, nil)
	return err
}

func react(ctx context.Context, msg *domain.InboundMessage, _ string) error {
	return msg.Handle.React(ctx, "👍")
}

func updateLabels(ctx context.Context, chat domain.Chat) error {
	return chat.ChangeLabels(ctx, []string{"0", "1"})
}

func addLabels(ctx context.Context, chat domain.Chat) error {
	labels, err := chat.Labels(ctx)
	if err != nil {
		return fmt.Errorf("get labels: %w", err)
	}
	return chat.ChangeLabels(ctx, append(labels, "0", "1"))
}

func removeLabels(ctx context.Context, chat domain.Chat) error {
	return chat.ChangeLabels(ctx, []string{})
}

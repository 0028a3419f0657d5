// Package discord is the Discord bot channel. Replies stream into a
// placeholder message edited in place as tokens arrive.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/marlowe-agent/marlowe/internal/agent"
)

const (
	// editInterval paces message edits so we stay inside Discord's
	// rate limits while still looking live.
	editInterval = time.Second

	// messageLimit leaves headroom below Discord's 2000-char cap; a
	// longer reply continues in a fresh message.
	messageLimit = 1900

	placeholder = "…"
)

// Channel connects a Discord bot account to the agent. The bot
// answers direct messages and guild messages that mention it.
type Channel struct {
	logger  *slog.Logger
	gateway *agent.Gateway
	session *discordgo.Session

	// lastChannelID is where announcements go: the channel of the most
	// recent conversation.
	lastChannelID atomic.Value
}

func New(logger *slog.Logger, token string, gateway *agent.Gateway) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c := &Channel{
		logger:  logger.With("component", "discord"),
		gateway: gateway,
		session: session,
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	session.AddHandler(c.onMessage)
	return c, nil
}

// Name implements channel.Channel.
func (c *Channel) Name() string { return "discord" }

// Run opens the gateway connection and blocks until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	c.logger.Info("connected", "user", c.session.State.User.Username)

	<-ctx.Done()
	if err := c.session.Close(); err != nil {
		c.logger.Warn("close session", "error", err)
	}
	return ctx.Err()
}

// Announce implements channel.Channel. It posts to the most recently
// active conversation channel.
func (c *Channel) Announce(ctx context.Context, text string) error {
	channelID, _ := c.lastChannelID.Load().(string)
	if channelID == "" {
		return fmt.Errorf("no active discord channel")
	}
	for _, part := range split(text) {
		if _, err := c.session.ChannelMessageSend(channelID, part); err != nil {
			return fmt.Errorf("send announcement: %w", err)
		}
	}
	return nil
}

func (c *Channel) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	direct := m.GuildID == ""
	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			mentioned = true
			break
		}
	}
	if !direct && !mentioned {
		return
	}

	prompt := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if prompt == "" {
		return
	}

	c.lastChannelID.Store(m.ChannelID)
	go c.respond(context.Background(), m.ChannelID, prompt)
}

// respond streams the reply into a placeholder message, editing it on
// a fixed cadence and rolling over to a new message at the length cap.
func (c *Channel) respond(ctx context.Context, channelID, prompt string) {
	ts, err := c.gateway.SendStream(ctx, agent.SendRequest{
		Content:    prompt,
		Channel:    c.Name(),
		UseContext: true,
		UseTools:   true,
		AddTurn:    true,
	})
	if err != nil {
		c.logger.Error("prompt failed", "error", err)
		c.session.ChannelMessageSend(channelID, "error: "+err.Error())
		return
	}

	msg, err := c.session.ChannelMessageSend(channelID, placeholder)
	if err != nil {
		c.logger.Error("send placeholder", "error", err)
		ts.Close()
		return
	}

	var pending strings.Builder
	lastEdit := time.Now()

	flush := func(force bool) {
		if pending.Len() == 0 {
			return
		}
		if !force && time.Since(lastEdit) < editInterval {
			return
		}
		text := pending.String()
		if len(text) > messageLimit {
			// Finish this message at the cap and continue in a new one.
			n := cut(text, messageLimit)
			c.edit(msg, text[:n])
			rest := text[n:]
			pending.Reset()
			pending.WriteString(rest)
			next, err := c.session.ChannelMessageSend(channelID, placeholder)
			if err != nil {
				c.logger.Error("continue message", "error", err)
				return
			}
			msg = next
			text = rest
		}
		c.edit(msg, text)
		lastEdit = time.Now()
	}

	for ts.Next() {
		pending.WriteString(ts.Token())
		flush(false)
	}
	flush(true)

	if err := ts.Err(); err != nil {
		c.logger.Error("stream failed", "error", err)
		c.edit(msg, pending.String()+"\nerror: "+err.Error())
	}
	if pending.Len() == 0 {
		c.edit(msg, "(no reply)")
	}
}

func (c *Channel) edit(msg *discordgo.Message, text string) {
	if _, err := c.session.ChannelMessageEdit(msg.ChannelID, msg.ID, text); err != nil {
		c.logger.Warn("edit failed", "error", err)
	}
}

// stripMention removes the bot's own mention from the prompt text.
func stripMention(content, userID string) string {
	for _, form := range []string{"<@" + userID + ">", "<@!" + userID + ">"} {
		content = strings.ReplaceAll(content, form, "")
	}
	return content
}

// split chops text into message-sized parts.
func split(text string) []string {
	var parts []string
	for len(text) > messageLimit {
		n := cut(text, messageLimit)
		parts = append(parts, text[:n])
		text = text[n:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// cut returns the largest boundary at or below max that does not split
// a rune.
func cut(s string, max int) int {
	if len(s) <= max {
		return len(s)
	}
	for i := max; i > 0; i-- {
		if utf8.RuneStart(s[i]) {
			return i
		}
	}
	return 0
}

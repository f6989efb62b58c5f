// ChefMate - AI recipe recommendation agent
// License: MIT
//
// Copyright (c) 2026 ChefMate contributors

package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/linqiu/chefmate/pkg/bus"
)

const discordChannelName = "discord"

// Discord bridges Discord DMs and mentions to the recommendation
// engine through the bus. Each Discord author maps to the engine user
// id "discord:<authorID>", so preferences and fridges follow the
// person across servers.
type Discord struct {
	token     string
	allowFrom map[string]struct{}
	b         *bus.Bus
	log       zerolog.Logger
	session   *discordgo.Session
}

func NewDiscord(token string, allowFrom []string, b *bus.Bus, log zerolog.Logger) (*Discord, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	allowed := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = struct{}{}
		}
	}
	return &Discord{
		token:     token,
		allowFrom: allowed,
		b:         b,
		log:       log.With().Str("component", "discord").Logger(),
	}, nil
}

// Run opens the Discord session and pumps outbound replies until ctx
// is cancelled.
func (d *Discord) Run(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	session.AddHandler(d.onMessage)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	d.session = session
	d.log.Info().Msg("discord channel connected")

	for {
		select {
		case <-ctx.Done():
			return session.Close()
		case out := <-d.b.Outbound():
			if out.Channel != discordChannelName {
				continue
			}
			if _, err := session.ChannelMessageSend(out.ReplyTo, out.Text); err != nil {
				d.log.Warn().Err(err).Str("channel", out.ReplyTo).Msg("send reply failed")
			}
		}
	}
}

func (d *Discord) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if !d.allowed(m.Author.ID) {
		return
	}
	text := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if text == "" {
		return
	}

	err := d.b.PublishInbound(bus.Inbound{
		Channel: discordChannelName,
		UserID:  "discord:" + m.Author.ID,
		Text:    text,
		ReplyTo: m.ChannelID,
	})
	if err != nil {
		d.log.Warn().Err(err).Str("author", m.Author.ID).Msg("inbound message dropped")
	}
}

// allowed applies the author allowlist; an empty list admits everyone.
func (d *Discord) allowed(authorID string) bool {
	if len(d.allowFrom) == 0 {
		return true
	}
	_, ok := d.allowFrom[authorID]
	return ok
}

// stripMention removes a leading bot mention so "@小厨神 今晚吃什么"
// reads as the bare question.
func stripMention(content, botID string) string {
	for _, prefix := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if strings.HasPrefix(content, prefix) {
			return strings.TrimPrefix(content, prefix)
		}
	}
	return content
}

// Package discord posts session requests into a Discord channel.
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/KDHBuddhika/suwatha/internal/notify"
)

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Subscriber struct {
	sender    messageSender
	channelID string
}

func New(token, channelID string) (*Subscriber, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("discord channel id is required")
	}
	session, err := discordgo.New(normalizeBotToken(token))
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return newWithSender(session, channelID), nil
}

func newWithSender(sender messageSender, channelID string) *Subscriber {
	return &Subscriber{sender: sender, channelID: strings.TrimSpace(channelID)}
}

func (s *Subscriber) Name() string {
	return "discord"
}

func (s *Subscriber) Handle(ctx context.Context, event notify.Event) error {
	if event.Kind != notify.KindSessionRequested {
		return nil
	}
	content := strings.TrimSpace(event.Message)
	if content == "" {
		return nil
	}
	if event.LinkURL != "" {
		content += "\n" + event.LinkURL
	}
	if _, err := s.sender.ChannelMessageSend(s.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

func normalizeBotToken(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bot ") {
		return token
	}
	return "Bot " + token
}

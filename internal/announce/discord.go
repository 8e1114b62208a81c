package announce

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Discord posts through a channel webhook; no bot login is needed.
type Discord struct {
	session *discordgo.Session
	id      string
	token   string
}

// NewDiscord accepts the webhook URL as copied from the Discord channel
// settings: https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(webhookURL string) (*Discord, error) {
	id, token, err := parseWebhookURL(webhookURL)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{session: s, id: id, token: token}, nil
}

func parseWebhookURL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("discord webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", fmt.Errorf("discord webhook url: expected .../webhooks/<id>/<token>, got %q", u.Path)
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, title, message string) error {
	params := &discordgo.WebhookParams{
		Username: "Promotion Market",
		Embeds: []*discordgo.MessageEmbed{{
			Title:       title,
			Description: message,
		}},
	}
	if _, err := d.session.WebhookExecute(d.id, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	return nil
}

// FromWebhook returns a Notifier posting to webhookURL, or one with no
// senders when webhookURL is empty.
func FromWebhook(logger *slog.Logger, webhookURL string) (*Notifier, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return NewNotifier(logger), nil
	}
	d, err := NewDiscord(webhookURL)
	if err != nil {
		return nil, err
	}
	return NewNotifier(logger, d), nil
}

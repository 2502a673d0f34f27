package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

type webhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordPublisher posts a summary of each notification to an admin webhook.
type DiscordPublisher struct {
	session   webhookExecutor
	webhookID string
	token     string
}

// NewDiscordPublisher creates a publisher for the given webhook.
func NewDiscordPublisher(webhookID, token string) (*DiscordPublisher, error) {
	// Webhook execution is authorized by the webhook token, not a bot token.
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	return &DiscordPublisher{session: session, webhookID: webhookID, token: token}, nil
}

// PublishBadgeChanged executes the webhook with an embed describing n.
func (p *DiscordPublisher) PublishBadgeChanged(ctx context.Context, n BadgeChanged) error {
	_, err := p.session.WebhookExecute(p.webhookID, p.token, false, badgeChangedParams(n), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("executing discord webhook: %w", err)
	}
	return nil
}

// Close is a no-op; webhook calls hold no connection.
func (p *DiscordPublisher) Close() error { return nil }

func badgeChangedParams(n BadgeChanged) *discordgo.WebhookParams {
	from := string(n.From)
	if from == "" {
		from = "none"
	}
	market := "unknown"
	if n.MarketPrice != nil {
		market = "$" + n.MarketPrice.StringFixed(2)
	}

	return &discordgo.WebhookParams{
		Content: fmt.Sprintf("Badge changed for listing %s: %s to %s", n.ListingID, from, n.To),
		Embeds: []*discordgo.MessageEmbed{
			{
				Title:       fmt.Sprintf("%s size %s", n.ProductID, n.Size),
				Description: n.Description,
				Fields: []*discordgo.MessageEmbedField{
					{Name: "Seller", Value: n.UserID, Inline: true},
					{Name: "Price", Value: "$" + n.Price.StringFixed(2), Inline: true},
					{Name: "Market", Value: market, Inline: true},
				},
				Timestamp: n.OccurredAt.Format(time.RFC3339),
			},
		},
	}
}

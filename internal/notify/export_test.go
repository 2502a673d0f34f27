package notify

import (
	"context"

	"github.com/bwmarrin/discordgo"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel mirrors the channel methods the publisher uses.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// WebhookExecutor mirrors the session method the Discord publisher uses.
type WebhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func NewAMQPPublisherWithChannel(ch AMQPChannel, queue string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, queue: queue}
}

func NewDiscordPublisherWithSession(s WebhookExecutor, webhookID, token string) *DiscordPublisher {
	return &DiscordPublisher{session: s, webhookID: webhookID, token: token}
}

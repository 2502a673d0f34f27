package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/consignment-pricing/internal/notify"
	"github.com/jensholdgaard/consignment-pricing/internal/pricing"
)

func sampleChange() notify.BadgeChanged {
	market := decimal.RequireFromString("7.00")
	return notify.BadgeChanged{
		ListingID:   "l1",
		UserID:      "u1",
		ProductID:   "p1",
		Size:        "10",
		From:        pricing.KindLowest,
		To:          pricing.KindTied,
		Price:       decimal.RequireFromString("7.00"),
		MarketPrice: &market,
		Description: "Tied for lowest at $7.00",
		OccurredAt:  time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	if exchange != "" {
		return errors.New("unexpected exchange " + exchange)
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_PublishBadgeChanged(t *testing.T) {
	ch := &fakeChannel{}
	p := notify.NewAMQPPublisherWithChannel(ch, "listing.badge_changed")

	if err := p.PublishBadgeChanged(context.Background(), sampleChange()); err != nil {
		t.Fatalf("PublishBadgeChanged() error = %v", err)
	}
	if len(ch.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(ch.published))
	}

	msg := ch.published[0]
	if ch.keys[0] != "listing.badge_changed" {
		t.Errorf("routing key = %q, want %q", ch.keys[0], "listing.badge_changed")
	}
	if msg.DeliveryMode != amqp.Persistent {
		t.Errorf("DeliveryMode = %d, want persistent", msg.DeliveryMode)
	}
	if msg.ContentType != "application/json" {
		t.Errorf("ContentType = %q", msg.ContentType)
	}

	var got notify.BadgeChanged
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if got.ListingID != "l1" || got.From != pricing.KindLowest || got.To != pricing.KindTied {
		t.Errorf("body = %+v", got)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !ch.closed {
		t.Error("channel not closed")
	}
}

func TestAMQPPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{err: amqp.ErrClosed}
	p := notify.NewAMQPPublisherWithChannel(ch, "q")

	err := p.PublishBadgeChanged(context.Background(), sampleChange())
	if !errors.Is(err, amqp.ErrClosed) {
		t.Fatalf("PublishBadgeChanged() error = %v, want ErrClosed", err)
	}
}

type fakeWebhook struct {
	id, token string
	params    *discordgo.WebhookParams
	err       error
}

func (f *fakeWebhook) WebhookExecute(webhookID, token string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.id, f.token, f.params = webhookID, token, data
	return nil, nil
}

func TestDiscordPublisher_PublishBadgeChanged(t *testing.T) {
	wh := &fakeWebhook{}
	p := notify.NewDiscordPublisherWithSession(wh, "123", "tok")

	if err := p.PublishBadgeChanged(context.Background(), sampleChange()); err != nil {
		t.Fatalf("PublishBadgeChanged() error = %v", err)
	}
	if wh.id != "123" || wh.token != "tok" {
		t.Errorf("webhook = %s/%s, want 123/tok", wh.id, wh.token)
	}
	if wh.params == nil {
		t.Fatal("webhook not executed")
	}
	if want := "Badge changed for listing l1: lowest to tied"; wh.params.Content != want {
		t.Errorf("Content = %q, want %q", wh.params.Content, want)
	}
	if len(wh.params.Embeds) != 1 || !strings.Contains(wh.params.Embeds[0].Title, "p1") {
		t.Errorf("Embeds = %+v", wh.params.Embeds)
	}
}

func TestDiscordPublisher_FirstBadge(t *testing.T) {
	wh := &fakeWebhook{}
	p := notify.NewDiscordPublisherWithSession(wh, "123", "tok")

	n := sampleChange()
	n.From = ""
	n.MarketPrice = nil
	if err := p.PublishBadgeChanged(context.Background(), n); err != nil {
		t.Fatalf("PublishBadgeChanged() error = %v", err)
	}
	if !strings.Contains(wh.params.Content, "none to tied") {
		t.Errorf("Content = %q", wh.params.Content)
	}
}

type recordingPublisher struct {
	got    []notify.BadgeChanged
	err    error
	closed bool
}

func (r *recordingPublisher) PublishBadgeChanged(_ context.Context, n notify.BadgeChanged) error {
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	errA := errors.New("a down")
	a := &recordingPublisher{err: errA}
	b := &recordingPublisher{}
	m := notify.Multi{a, b, notify.Nop{}}

	err := m.PublishBadgeChanged(context.Background(), sampleChange())
	if !errors.Is(err, errA) {
		t.Fatalf("PublishBadgeChanged() error = %v, want %v", err, errA)
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", len(a.got), len(b.got))
	}

	if err := m.Close(); !errors.Is(err, errA) {
		t.Errorf("Close() error = %v, want %v", err, errA)
	}
	if !a.closed || !b.closed {
		t.Error("not every publisher was closed")
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (notify.Multi{}).PublishBadgeChanged(context.Background(), sampleChange()); err != nil {
		t.Errorf("PublishBadgeChanged() error = %v, want nil", err)
	}
}

package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"creator_sync/internal/domain"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger.With("component", "publisher"),
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// CreatorEvent is published after a creator is added or refreshed. Posts are
// left out to keep messages small; consumers read them from the table.
type CreatorEvent struct {
	Action         string          `json:"action"`
	ID             int64           `json:"id"`
	Platform       domain.Platform `json:"platform"`
	Handle         string          `json:"handle"`
	DisplayName    string          `json:"display_name"`
	PrimaryNiche   string          `json:"primary_niche"`
	SecondaryNiche string          `json:"secondary_niche"`
	Location       string          `json:"location"`
	Followers      int64           `json:"followers"`
	EngagementRate float64         `json:"engagement_rate"`
	BuzzScore      int             `json:"buzz_score"`
	AvatarURL      string          `json:"avatar_url"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewCreatorEvent(rec *domain.CreatorRecord, isNew bool, now time.Time) CreatorEvent {
	action := ActionUpdate
	if isNew {
		action = ActionCreate
	}

	return CreatorEvent{
		Action:         action,
		ID:             rec.ID,
		Platform:       rec.Platform,
		Handle:         rec.Handle,
		DisplayName:    rec.DisplayName,
		PrimaryNiche:   rec.PrimaryNiche,
		SecondaryNiche: rec.SecondaryNiche,
		Location:       rec.Location,
		Followers:      rec.Followers,
		EngagementRate: rec.EngagementRate,
		BuzzScore:      rec.BuzzScore,
		AvatarURL:      rec.AvatarURL,
		UpdatedAt:      rec.UpdatedAt,
		Timestamp:      now.UTC(),
	}
}

func (r *RabbitMQ) Publish(ctx context.Context, rec *domain.CreatorRecord, isNew bool) error {
	msg := NewCreatorEvent(rec, isNew, time.Now())

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    msg.Timestamp,
			Type:         "creator." + msg.Action,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published creator",
		"handle", rec.Handle,
		"platform", rec.Platform,
		"action", msg.Action,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// Noop stands in when publishing is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, *domain.CreatorRecord, bool) error { return nil }

func (Noop) Close() error { return nil }

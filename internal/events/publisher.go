// Package events publishes committed notifications to Kafka for delivery services.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sharesphere/spherecore/internal/models"
	"github.com/sharesphere/spherecore/pkg/config"
	"github.com/sharesphere/spherecore/pkg/logging"
)

// Publisher delivers notifications that are already committed
type Publisher interface {
	Publish(ctx context.Context, notifications []*models.Notification) error
	Close() error
}

// NotificationEvent is the wire form of a notification
type NotificationEvent struct {
	NotificationID int64                   `json:"notification_id"`
	Type           models.NotificationType `json:"type"`
	RecipientID    int64                   `json:"recipient_id"`
	TriggerUserID  int64                   `json:"trigger_user_id"`
	SphereID       int64                   `json:"sphere_id"`
	SatelliteID    *int64                  `json:"satellite_id,omitempty"`
	PostID         int64                   `json:"post_id"`
	CommentID      *int64                  `json:"comment_id,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
}

// NewNotificationEvent converts a stored notification
func NewNotificationEvent(n *models.Notification) NotificationEvent {
	ev := NotificationEvent{
		NotificationID: n.ID,
		Type:           n.Type,
		RecipientID:    n.UserID,
		TriggerUserID:  n.TriggerUserID,
		SphereID:       n.SphereID,
		PostID:         n.PostID,
		CreatedAt:      n.CreatedAt,
	}
	if n.SatelliteID.Valid {
		ev.SatelliteID = &n.SatelliteID.Int64
	}
	if n.CommentID.Valid {
		ev.CommentID = &n.CommentID.Int64
	}
	return ev
}

// messageWriter is the part of kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per notification, keyed by recipient so
// a recipient's notifications stay ordered within a partition
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher creates a synchronous producer for the configured topic
func NewKafkaPublisher(cfg *config.EventsConfig) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return newKafkaPublisher(w)
}

func newKafkaPublisher(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logging.WithComponent("events")}
}

// Publish implements Publisher
func (p *KafkaPublisher) Publish(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(notifications))
	for _, n := range notifications {
		value, err := json.Marshal(NewNotificationEvent(n))
		if err != nil {
			return fmt.Errorf("failed to encode notification %d: %w", n.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(n.UserID, 10)),
			Value: value,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d notifications: %w", len(msgs), err)
	}
	p.logger.Debug("Published notifications", zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// NopPublisher drops every notification
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []*models.Notification) error { return nil }
func (NopPublisher) Close() error                                          { return nil }

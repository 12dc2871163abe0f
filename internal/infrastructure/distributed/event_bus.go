package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"streamhub/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventStreamLive   EventType = "stream.live"
	EventStreamEnded  EventType = "stream.ended"
	EventNotification EventType = "notification"
)

var ErrAlreadySubscribed = errors.New("already subscribed")

// Event is what travels on the notification channel. The media side
// publishes stream lifecycle events; instances publish operator
// notifications so every instance delivers them to its own connections.
type Event struct {
	Type       EventType       `json:"type"`
	InstanceID string          `json:"instance_id"`
	Timestamp  time.Time       `json:"timestamp"`
	StreamID   domain.StreamID `json:"stream_id,omitempty"`
	Title      string          `json:"title,omitempty"`
	Message    string          `json:"message,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	Role       domain.Role     `json:"role,omitempty"`
}

// Notifier delivers a notification to local connections.
type Notifier interface {
	Notify(role *domain.Role, message, kind string) domain.DeliveryReport
}

// EventBus provides event publishing and subscription for coordination
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewEventBus(client *redis.Client, channel, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
	}
}

// Publish stamps event with this instance and the current time and sends it.
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event", "type", event.Type, "stream_id", event.StreamID)
	return nil
}

// PublishNotification fans an operator notification out to the other
// instances. A nil role means everyone.
func (eb *EventBus) PublishNotification(ctx context.Context, role *domain.Role, message, kind string) error {
	event := &Event{Type: EventNotification, Message: message, Kind: kind}
	if role != nil {
		event.Role = *role
	}
	return eb.Publish(ctx, event)
}

// Subscribe blocks, calling handler for every event published by other
// instances, until ctx is done or the subscription is closed.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return ErrAlreadySubscribed
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channel)
	defer eb.pubsub.Close()

	if _, err := eb.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eb.channel, err)
	}
	eb.logger.Infow("subscribed to notification channel", "channel", eb.channel)

	ch := eb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			eb.dispatch(msg.Payload, handler)
		}
	}
}

func (eb *EventBus) dispatch(payload string, handler func(*Event) error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", payload)
		return
	}
	if event.InstanceID != "" && event.InstanceID == eb.instanceID {
		return
	}
	if err := handler(&event); err != nil {
		eb.logger.Warnw("error handling event", "type", event.Type, "error", err)
	}
}

func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}

// NotificationFromEvent turns a bus event into the arguments of a
// notification. ok is false for events that carry nothing to show.
func NotificationFromEvent(event *Event) (role *domain.Role, message, kind string, ok bool) {
	switch event.Type {
	case EventStreamLive:
		if event.StreamID == "" {
			return nil, "", "", false
		}
		return nil, streamMessage(event, "is live"), "stream_live", true
	case EventStreamEnded:
		if event.StreamID == "" {
			return nil, "", "", false
		}
		return nil, streamMessage(event, "has ended"), "stream_ended", true
	case EventNotification:
		if event.Message == "" {
			return nil, "", "", false
		}
		if event.Role != "" {
			if !event.Role.Valid() {
				return nil, "", "", false
			}
			r := event.Role
			role = &r
		}
		return role, event.Message, event.Kind, true
	}
	return nil, "", "", false
}

func streamMessage(event *Event, what string) string {
	if event.Title != "" {
		return fmt.Sprintf("%s %s", event.Title, what)
	}
	return fmt.Sprintf("Stream %s %s", event.StreamID, what)
}

// Relay returns a Subscribe handler that delivers notifications locally.
func Relay(notifier Notifier, logger *zap.SugaredLogger) func(*Event) error {
	return func(event *Event) error {
		role, message, kind, ok := NotificationFromEvent(event)
		if !ok {
			logger.Debugw("ignoring event", "type", event.Type)
			return nil
		}
		report := notifier.Notify(role, message, kind)
		logger.Debugw("relayed notification",
			"type", event.Type,
			"delivered", report.Delivered,
			"dropped", report.Dropped,
		)
		return nil
	}
}

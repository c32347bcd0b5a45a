package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ehs-handlers/internal/logger"
	"github.com/pesio-ai/be-ehs-handlers/internal/metrics"
)

// Event types published by the handler service.
const (
	EventHandlerAssigned          = "handler_assigned"
	EventManualAssignmentRequired = "manual_assignment_required"
)

// NotificationPublisher publishes handler events to NATS for consumption by
// the notifications service.
//
// Subject convention: <prefix>.<event_type>, prefix defaulting to
// notifications.ehs.
//
// Publish failures are logged and counted but never returned, so notification
// outages never interrupt an assignment.
type NotificationPublisher struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	EntityID     string         `json:"entity_id"`
	ActorID      string         `json:"actor_id,omitempty"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// ConnectNATS dials the server with reconnects enabled.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NewNotificationPublisher creates a publisher. A nil connection yields a
// publisher that drops every event.
func NewNotificationPublisher(nc *nats.Conn, prefix string, log zerolog.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = "notifications.ehs"
	}
	return &NotificationPublisher{nc: nc, prefix: prefix, log: log}
}

// Subject returns the subject an event type is published on.
func (p *NotificationPublisher) Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", p.prefix, eventType)
}

// PublishRecordEvent publishes an event about a hazard or permit record. The
// actor is taken from ctx.
func (p *NotificationPublisher) PublishRecordEvent(ctx context.Context, eventType, recordType, recordID, entityID string, recipients []string, payload map[string]any) {
	if p == nil || p.nc == nil || len(recipients) == 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		EntityID:     entityID,
		ActorID:      logger.ActorIDFromContext(ctx),
		Recipients:   recipients,
		ResourceType: recordType,
		ResourceID:   recordID,
		IsActionable: true,
		Severity:     severityOf(eventType),
		Category:     "ehs_workflow",
		Payload:      payload,
		OccurredAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.Subject(eventType)
	err = p.nc.Publish(subject, data)
	metrics.NotificationPublished(eventType, err)
	if err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("record_id", recordID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("record_id", recordID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}

func severityOf(eventType string) string {
	if eventType == EventManualAssignmentRequired {
		return "warning"
	}
	return "info"
}

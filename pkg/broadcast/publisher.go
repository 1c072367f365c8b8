// Package broadcast publishes safety event notifications to NATS for
// downstream subscribers (WebSocket hub, recorders, external consumers).
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/skysentry/skysentry/pkg/monitor"
	"github.com/skysentry/skysentry/pkg/natsutil"
)

// Notification is the wire envelope for one lifecycle transition.
type Notification struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Publisher implements monitor.Broadcaster on top of JetStream.
type Publisher struct {
	js     jetstream.JetStream
	logger zerolog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(js jetstream.JetStream, logger zerolog.Logger) *Publisher {
	return &Publisher{
		js:     js,
		logger: logger.With().Str("component", "broadcast").Logger(),
	}
}

// Publish sends one notification on safety.event.<transition>.<severity>.
// The event payload is flattened into data alongside an ISO-8601 timestamp.
func (p *Publisher) Publish(ctx context.Context, notifyType string, ev *monitor.SafetyEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal safety event: %w", err)
	}

	data := make(map[string]any)
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to flatten safety event: %w", err)
	}
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(Notification{Type: notifyType, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := subjectFor(notifyType, ev.Severity)
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug().
		Str("subject", subject).
		Str("event_id", ev.ID).
		Msg("Published safety notification")
	return nil
}

func subjectFor(notifyType string, severity monitor.Severity) string {
	var transition string
	switch notifyType {
	case monitor.NotifyEventCreated:
		transition = "created"
	case monitor.NotifyEventUpdated:
		transition = "updated"
	case monitor.NotifyEventResolved:
		transition = "resolved"
	default:
		transition = "unknown"
	}
	return natsutil.SubjectSafetyPrefix + transition + "." + string(severity)
}

// Package natsutil provides NATS JetStream configuration and helpers.
package natsutil

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Subjects used across the platform.
const (
	SubjectTelemetryBatch = "telemetry.adsb.batch"
	SubjectSafetyPrefix   = "safety.event."
	SubjectSafetyWildcard = "safety.event.>"
)

// StreamConfigs defines all streams used by the platform.
var StreamConfigs = map[string]jetstream.StreamConfig{
	"TELEMETRY": {
		Name:        "TELEMETRY",
		Description: "ADS-B telemetry batches from ingest feeds",
		Subjects:    []string{"telemetry.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    1 * 1024 * 1024 * 1024, // 1GB
		MaxAge:      1 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
	"SAFETY": {
		Name:        "SAFETY",
		Description: "Safety event lifecycle notifications",
		Subjects:    []string{"safety.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxBytes:    512 * 1024 * 1024, // 512MB
		MaxAge:      72 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Discard:     jetstream.DiscardOld,
	},
}

// ConsumerConfigs defines durable consumers by name.
var ConsumerConfigs = map[string]jetstream.ConsumerConfig{
	"safety-monitor": {
		Durable:       "safety-monitor",
		Description:   "Safety monitor consumer for telemetry batches",
		FilterSubject: "telemetry.adsb.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 100,
	},
}

// SetupStreams creates all required streams.
func SetupStreams(ctx context.Context, js jetstream.JetStream) error {
	for name, cfg := range StreamConfigs {
		_, err := js.Stream(ctx, name)
		if err == nil {
			continue // Stream exists
		}

		_, err = js.CreateStream(ctx, cfg)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetupConsumer creates a durable consumer on a stream.
func SetupConsumer(ctx context.Context, js jetstream.JetStream, streamName, consumerName string) (jetstream.Consumer, error) {
	cfg, ok := ConsumerConfigs[consumerName]
	if !ok {
		cfg = jetstream.ConsumerConfig{
			Durable:       consumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    3,
			MaxAckPending: 100,
		}
	}

	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.Consumer(ctx, cfg.Durable)
	if err == nil {
		return consumer, nil
	}

	return stream.CreateConsumer(ctx, cfg)
}

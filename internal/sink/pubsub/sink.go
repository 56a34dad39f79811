// Package pubsub publishes each record as a Google Cloud Pub/Sub message.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/metrics"
	"github.com/JakeFAU/profile-contact-crawler/internal/sink"
)

// Sink publishes records to a topic and waits for the server ack.
type Sink struct {
	client    *pubsub.Client
	topic     *pubsub.Topic
	ownClient bool
	logger    *zap.Logger
}

// New connects to projectID and verifies topicID exists. It uses Application
// Default Credentials.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Sink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	s, err := NewWithClient(ctx, client, topicID, logger)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil && logger != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, err
	}
	s.ownClient = true
	return s, nil
}

// NewWithClient uses an existing client. The caller keeps ownership of it.
func NewWithClient(ctx context.Context, client *pubsub.Client, topicID string, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Sink{client: client, topic: topic, logger: logger}, nil
}

// Emit publishes record and blocks until the message is acknowledged.
func (s *Sink) Emit(ctx context.Context, record crawler.ProfileRecord) error {
	data, err := sink.Encode(record)
	if err != nil {
		return err
	}
	status := "success"
	if record.Failed() {
		status = "failed"
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id": record.RunID,
			"status": status,
			"site":   metrics.SanitizeSite(record.SourceURL()),
		},
	}
	id, err := s.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	s.logger.Debug("record published", zap.String("url", record.SourceURL()), zap.String("message_id", id))
	return nil
}

// Close flushes pending messages and closes the client if this sink created it.
func (s *Sink) Close() error {
	s.topic.Stop()
	if !s.ownClient {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

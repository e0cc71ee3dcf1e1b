package domain

import (
	"context"
)

// EventBus carries pipeline events between the extraction stage, the
// assessment worker and downstream consumers.
// Go channels for the community tier, NATS for pro.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the bus envelope.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	ChannelBufferSize int

	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Pipeline topics.
const (
	// TopicRecordExtracted carries a RecordMessage from the extraction stage.
	TopicRecordExtracted = "leasecheck.record.extracted"

	// TopicAssessmentCompleted carries every stored Assessment.
	TopicAssessmentCompleted = "leasecheck.assessment.completed"

	// TopicAssessmentReview carries assessments with status REVIEW.
	TopicAssessmentReview = "leasecheck.assessment.review"
)

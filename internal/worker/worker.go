// Package worker scores lease records arriving on the event bus.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/leasecheck/internal/assessment"
	"github.com/opensource-finance/leasecheck/internal/domain"
)

// ErrEmptyRecord is returned for a RecordMessage without a record.
var ErrEmptyRecord = errors.New("record message has no record")

// RecordMessage is the payload the extraction stage publishes on
// TopicRecordExtracted, one per lease PDF.
type RecordMessage struct {
	DocumentID string          `json:"documentId"`
	TenantID   string          `json:"tenantId"`
	TraceID    string          `json:"traceId"`
	Source     string          `json:"source,omitempty"`
	Record     json.RawMessage `json:"record"`
}

// Worker consumes extracted records, stores them with their assessment
// and publishes the outcome.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	processor *assessment.Processor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed sync.Map // tenantID -> *counter
}

type counter struct {
	mu       sync.Mutex
	fair     int64
	review   int64
	failures int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs lists the tenants to consume for. Empty subscribes to the
	// "_global" tenant, for development.
	TenantIDs []string
}

// GlobalTenant is the bus tenant used when no tenants are configured.
const GlobalTenant = "_global"

// NewWorker creates a worker. repo may be nil, in which case nothing is stored.
func NewWorker(bus domain.EventBus, repo domain.Repository, processor *assessment.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to TopicRecordExtracted for every configured tenant.
// A tenant whose subscription fails is logged and skipped.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenant}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no worker subscriptions started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"topic", domain.TopicRecordExtracted,
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRecordExtracted, func(ctx context.Context, msg *domain.Message) error {
		_, err := w.Handle(ctx, tenantID, msg)
		return err
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

// Handle processes one bus message. The payload's tenantId, when set,
// overrides the subscription tenant.
func (w *Worker) Handle(ctx context.Context, tenantID string, msg *domain.Message) (*domain.Assessment, error) {
	start := time.Now()

	var rm RecordMessage
	if err := json.Unmarshal(msg.Payload, &rm); err != nil {
		w.count(tenantID, "")
		slog.Error("failed to parse record message",
			"message_id", msg.ID,
			"error", err,
		)
		return nil, fmt.Errorf("parse record message: %w", err)
	}
	if rm.TenantID != "" {
		tenantID = rm.TenantID
	}
	if len(bytes.TrimSpace(rm.Record)) == 0 || bytes.Equal(rm.Record, []byte("null")) {
		w.count(tenantID, "")
		return nil, ErrEmptyRecord
	}

	rec, err := domain.DecodeLeaseRecord(rm.Record)
	if err != nil {
		w.count(tenantID, "")
		slog.Error("failed to decode lease record",
			"document_id", rm.DocumentID,
			"message_id", msg.ID,
			"error", err,
		)
		return nil, err
	}

	if rm.DocumentID == "" {
		rm.DocumentID = uuid.New().String()
	}
	if rm.TraceID == "" {
		rm.TraceID = msg.ID
	}

	if w.repo != nil {
		doc := &domain.LeaseDocument{
			ID:        rm.DocumentID,
			TenantID:  tenantID,
			Source:    rm.Source,
			Record:    rm.Record,
			CreatedAt: time.Now().UTC(),
		}
		if err := w.repo.SaveDocument(ctx, tenantID, doc); err != nil {
			slog.Error("failed to save document",
				"document_id", rm.DocumentID,
				"error", err,
			)
		}
	}

	a := w.processor.Process(ctx, &assessment.Input{
		TenantID:   tenantID,
		DocumentID: rm.DocumentID,
		TraceID:    rm.TraceID,
		Record:     rec,
		StartTime:  start,
	})

	if w.repo != nil {
		if err := w.repo.SaveAssessment(ctx, tenantID, a); err != nil {
			slog.Error("failed to save assessment",
				"document_id", rm.DocumentID,
				"assessment_id", a.ID,
				"error", err,
			)
		}
	}

	w.publish(ctx, tenantID, a)
	w.count(tenantID, a.Status)

	slog.Info("lease record assessed",
		"document_id", rm.DocumentID,
		"tenant_id", tenantID,
		"status", a.Status,
		"score", a.Result.ContractFairnessScore,
		"flags", len(a.Result.RedFlagClauses),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return a, nil
}

func (w *Worker) publish(ctx context.Context, tenantID string, a *domain.Assessment) {
	payload, err := json.Marshal(a.ToResponse())
	if err != nil {
		slog.Error("failed to marshal assessment", "assessment_id", a.ID, "error", err)
		return
	}

	if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, payload); err != nil {
		slog.Error("failed to publish assessment",
			"assessment_id", a.ID,
			"error", err,
		)
	}

	if assessment.NeedsReview(a) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentReview, payload); err != nil {
			slog.Error("failed to publish review",
				"assessment_id", a.ID,
				"error", err,
			)
		}
	}
}

func (w *Worker) count(tenantID, status string) {
	v, _ := w.processed.LoadOrStore(tenantID, &counter{})
	c := v.(*counter)
	c.mu.Lock()
	defer c.mu.Unlock()
	switch status {
	case domain.StatusFair:
		c.fair++
	case domain.StatusReview:
		c.review++
	default:
		c.failures++
	}
}

// Stop cancels and removes every subscription.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// TenantStats counts handled messages for one tenant.
type TenantStats struct {
	Fair     int64 `json:"fair"`
	Review   int64 `json:"review"`
	Failures int64 `json:"failures"`
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int                    `json:"subscriptionCount"`
	Topics            []string               `json:"topics"`
	Tenants           map[string]TenantStats `json:"tenants"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	tenants := make(map[string]TenantStats)
	w.processed.Range(func(k, v any) bool {
		c := v.(*counter)
		c.mu.Lock()
		tenants[k.(string)] = TenantStats{Fair: c.fair, Review: c.review, Failures: c.failures}
		c.mu.Unlock()
		return true
	})

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Tenants:           tenants,
	}
}

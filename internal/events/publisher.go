package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

const (
	TypePayoutRequested       = "payout.requested"
	TypePayoutFailed          = "payout.failed"
	TypePayoutCompleted       = "payout.completed"
	TypeCommissionCreated     = "commission.created"
	TypeCommissionApproved    = "commission.approved"
	TypeCommissionReversed    = "commission.reversed"
	TypeAffiliateStatusChange = "affiliate.status_changed"
	TypeFraudAlertResolved    = "fraud_alert.resolved"
)

// Event is a lifecycle notification emitted after a ledger change commits.
type Event struct {
	Type       string         `json:"type"`
	TenantID   snowflake.ID   `json:"tenant_id"`
	SubjectID  snowflake.ID   `json:"subject_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Key partitions events so every event of one subject lands in order.
func (e Event) Key() string {
	return e.SubjectID.String()
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.log.Info("event published",
		zap.String("type", event.Type),
		zap.String("subject_id", event.SubjectID.String()),
		zap.ByteString("payload", payload),
	)
	return nil
}

// PublishBestEffort publishes and logs failures. Ledger state never depends on delivery.
func PublishBestEffort(ctx context.Context, publisher Publisher, log *zap.Logger, event Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil && log != nil {
		log.Warn("failed to publish event",
			zap.String("type", event.Type),
			zap.String("tenant_id", event.TenantID.String()),
			zap.String("subject_id", event.SubjectID.String()),
			zap.Error(err),
		)
	}
}

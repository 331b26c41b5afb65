package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-settlement/internal/kafka"
	"ms-settlement/internal/logger"
	"ms-settlement/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NewMessage builds an outbox row for the given notification. The caller
// persists it inside the same transaction as the state change it announces.
func NewMessage(kind models.NotificationKind, recipient string, template map[string]interface{}) models.OutboxMessage {
	payload, _ := json.Marshal(models.Notification{
		Kind:      kind,
		Recipient: recipient,
		Template:  template,
		Timestamp: time.Now(),
	})
	return models.OutboxMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		Recipient: recipient,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Dispatcher drains unsent outbox rows to the notifications topic. Delivery
// is fire-and-forget from the engine's point of view: a publish failure
// leaves the row unsent for the next pass and never touches the state the
// row was committed with.
type Dispatcher struct {
	Bun      *bun.DB
	Producer kafka.Publisher
	Topic    string
	Log      *logger.Logger
}

// DispatchPending publishes every unsent row and marks it sent. Returns the
// number delivered.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	var pending []models.OutboxMessage
	err := d.Bun.NewSelect().
		Model(&pending).
		Where("sent IS NOT TRUE").
		Order("created_at ASC").
		Limit(100).
		Scan(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox query failed: %w", err)
	}

	delivered := 0
	for _, msg := range pending {
		if err := d.Producer.Publish(d.Topic, msg.Recipient, msg.Payload); err != nil {
			d.Log.Error("OUTBOX", fmt.Sprintf("publish failed for %s (%s): %v", msg.ID, msg.Kind, err))
			continue
		}

		_, err := d.Bun.NewUpdate().
			Model((*models.OutboxMessage)(nil)).
			Set("sent = ?", true).
			Set("sent_at = ?", time.Now()).
			Where("id = ?", msg.ID).
			Exec(ctx)
		if err != nil {
			// Worst case the row is re-published; consumers treat
			// notifications as at-least-once.
			d.Log.Error("OUTBOX", fmt.Sprintf("failed to mark %s sent: %v", msg.ID, err))
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Run drains the outbox on an interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := d.DispatchPending(ctx)
			if err != nil {
				d.Log.Error("OUTBOX", fmt.Sprintf("dispatch pass failed: %v", err))
				continue
			}
			if n > 0 {
				d.Log.Info("OUTBOX", fmt.Sprintf("dispatched %d notifications", n))
			}
		}
	}
}

package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/registria/registria/internal/jobs"
	"github.com/registria/registria/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeReceiptDispatch hands a committed ledger receipt to downstream
	// consumers.
	TaskTypeReceiptDispatch = "receipt:dispatch"
	// TaskTypeIdempotencyCleanup prunes expired idempotency keys.
	TaskTypeIdempotencyCleanup = "idempotency:cleanup"
)

// ReceiptDispatchPayload carries the receipt fields downstream consumers need.
type ReceiptDispatchPayload struct {
	ReceiptID string `json:"receipt_id"`
	Ledger    string `json:"ledger"`
	RequestID int64  `json:"request_id"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Status    string `json:"status"`
}

// NewReceiptDispatchTask constructs an Asynq task from a receipt.
func NewReceiptDispatchTask(receipt shared.Receipt) (*asynq.Task, error) {
	payload := ReceiptDispatchPayload{
		ReceiptID: receipt.ID.String(),
		Ledger:    receipt.Ledger,
		RequestID: receipt.RequestID,
		Actor:     receipt.Actor,
		Action:    string(receipt.Action),
		Status:    receipt.Status,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReceiptDispatch, data), nil
}

// NewReceiptDispatchHandler processes receipt:dispatch tasks. The handler logs
// the receipt and counts it; downstream delivery integrations hang off here.
func NewReceiptDispatchHandler(logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("receipt_dispatch")
		var payload ReceiptDispatchPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		logger.Info("receipt dispatched",
			slog.String("receipt_id", payload.ReceiptID),
			slog.String("ledger", payload.Ledger),
			slog.Int64("request_id", payload.RequestID),
			slog.String("action", payload.Action),
			slog.String("status", payload.Status))
		metrics.AddDispatched(payload.Ledger, payload.Action)
		return tracker.End(nil)
	}
}

// IdempotencyCleanupPayload sets the retention window for key pruning.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs the periodic cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyCleanup, data), nil
}

// NewIdempotencyCleanupHandler prunes idempotency keys past the retention
// window.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("idempotency_cleanup")
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		if payload.OlderThan <= 0 {
			payload.OlderThan = 24 * time.Hour
		}
		if err := store.Cleanup(ctx, payload.OlderThan); err != nil {
			logger.Warn("idempotency cleanup", slog.Any("error", err))
			return tracker.End(err)
		}
		return tracker.End(nil)
	}
}

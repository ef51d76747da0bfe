package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReceiptAction enumerates ledger actions surfaced as submission receipts.
type ReceiptAction string

const (
	// ReceiptSubmit marks a submit action.
	ReceiptSubmit ReceiptAction = "SUBMIT"
	// ReceiptApprove marks an approve action.
	ReceiptApprove ReceiptAction = "APPROVE"
	// ReceiptReject marks a reject action.
	ReceiptReject ReceiptAction = "REJECT"
)

// Ledger names for receipt records.
const (
	LedgerRoleRequests  = "role_requests"
	LedgerRegistrations = "vehicle_registrations"
)

// Receipt is the durable record a committed mutation hands back to the
// submission environment.
type Receipt struct {
	ID        uuid.UUID
	Ledger    string
	RequestID int64
	Actor     string
	Action    ReceiptAction
	Status    string
	At        time.Time
}

// ReceiptRecorder persists submission receipts.
type ReceiptRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReceiptRecorder constructs ReceiptRecorder.
func NewReceiptRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ReceiptRecorder {
	return &ReceiptRecorder{pool: pool, logger: logger}
}

// Record writes a receipt row. The receipt id is assigned here when unset.
func (r *ReceiptRecorder) Record(ctx context.Context, receipt Receipt) (Receipt, error) {
	if r == nil {
		return Receipt{}, errors.New("receipt recorder not initialised")
	}
	if receipt.Ledger == "" {
		return Receipt{}, errors.New("receipt ledger required")
	}
	if receipt.Actor == "" {
		return Receipt{}, errors.New("receipt actor required")
	}
	if receipt.Action == "" {
		return Receipt{}, errors.New("receipt action required")
	}
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	// pgx encodes a zero time.Time as year one, not NULL, so the timestamp
	// must be assigned here rather than defaulted in SQL.
	if receipt.At.IsZero() {
		receipt.At = time.Now()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO receipts (id, ledger, request_id, actor, action, status, at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, receipt.ID, receipt.Ledger, receipt.RequestID, receipt.Actor, string(receipt.Action), receipt.Status, receipt.At)
	if err != nil {
		r.logger.Error("record receipt", slog.Any("error", err))
		return Receipt{}, err
	}
	return receipt, nil
}

// List returns receipts for a ledger entry in commit order.
func (r *ReceiptRecorder) List(ctx context.Context, ledger string, requestID int64) ([]Receipt, error) {
	if r == nil {
		return nil, errors.New("receipt recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, ledger, request_id, actor, action, status, at
FROM receipts WHERE ledger=$1 AND request_id=$2 ORDER BY at ASC`, ledger, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var receipts []Receipt
	for rows.Next() {
		var rec Receipt
		var action string
		if err := rows.Scan(&rec.ID, &rec.Ledger, &rec.RequestID, &rec.Actor, &action, &rec.Status, &rec.At); err != nil {
			return nil, err
		}
		rec.Action = ReceiptAction(action)
		receipts = append(receipts, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return receipts, nil
}

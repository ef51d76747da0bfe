package vehicles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/platform/db"
	"github.com/registria/registria/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the registration ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, submitter, owner, document_ref, certificate_ref, status, submitted_at, decided_by, decided_at`

// Get retrieves a ledger entry by id.
func (r *Repository) Get(ctx context.Context, id int64) (Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM vehicle_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// Create allocates the next sequential id and appends a pending request under
// the ledger's advisory lock.
func (r *Repository) Create(ctx context.Context, submitter, owner identity.Account, documentRef string) (Request, error) {
	var req Request
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shared.LockRegistrations); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `WITH next AS (
	UPDATE ledger_counters SET next_id = next_id + 1 WHERE ledger = $1 RETURNING next_id - 1 AS id
)
INSERT INTO vehicle_requests (id, submitter, owner, document_ref, status, submitted_at)
SELECT next.id, $2, $3, $4, $5, NOW() FROM next
RETURNING `+requestColumns, shared.LedgerRegistrations, submitter.String(), owner.String(), documentRef, string(StatusPending))
		var err error
		req, err = scanRequest(row)
		return err
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// WithTx wraps settlement operations in one transaction holding the ledger's
// advisory lock.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shared.LockRegistrations); err != nil {
			return err
		}
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Request, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM vehicle_requests WHERE id = $1 FOR UPDATE`, id)
	return scanRequest(row)
}

func (t *txRepo) Settle(ctx context.Context, id int64, status Status, certificateRef string, decidedBy identity.Account) error {
	var cert *string
	if certificateRef != "" {
		cert = &certificateRef
	}
	tag, err := t.tx.Exec(ctx, `UPDATE vehicle_requests SET status = $2, certificate_ref = $3, decided_by = $4, decided_at = NOW() WHERE id = $1`,
		id, string(status), cert, decidedBy.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req       Request
		submitter string
		owner     string
		cert      *string
		status    string
		decidedBy *string
		decidedAt *time.Time
	)
	err := row.Scan(&req.ID, &submitter, &owner, &req.DocumentRef, &cert, &status, &req.SubmittedAt, &decidedBy, &decidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, fmt.Errorf("registration: %w", shared.ErrNotFound)
		}
		return Request{}, err
	}
	if req.Submitter, err = identity.ParseAccount(submitter); err != nil {
		return Request{}, err
	}
	if req.Owner, err = identity.ParseAccount(owner); err != nil {
		return Request{}, err
	}
	if cert != nil {
		req.CertificateRef = *cert
	}
	req.Status = Status(status)
	if decidedBy != nil {
		if req.DecidedBy, err = identity.ParseAccount(*decidedBy); err != nil {
			return Request{}, err
		}
	}
	if decidedAt != nil {
		req.DecidedAt = *decidedAt
	}
	return req, nil
}

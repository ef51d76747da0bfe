package rolereq

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

// Repository provides PostgreSQL backed persistence for the role-request ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, requester, role_id, status, submitted_at, decided_by, decided_at`

// Get retrieves a ledger entry by id.
func (r *Repository) Get(ctx context.Context, id int64) (Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM role_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// Create allocates the next sequential id and appends a pending request. The
// id counter and the insert share one transaction under the ledger's advisory
// lock, so ids stay dense even with concurrent submitters.
func (r *Repository) Create(ctx context.Context, requester identity.Account, role identity.RoleID) (Request, error) {
	var req Request
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shared.LockRoleRequests); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `WITH next AS (
	UPDATE ledger_counters SET next_id = next_id + 1 WHERE ledger = $1 RETURNING next_id - 1 AS id
)
INSERT INTO role_requests (id, requester, role_id, status, submitted_at)
SELECT next.id, $2, $3, $4, NOW() FROM next
RETURNING `+requestColumns, shared.LedgerRoleRequests, requester.String(), role.String(), string(StatusPending))
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
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, shared.LockRoleRequests); err != nil {
			return err
		}
		return fn(ctx, &txRepo{tx: tx})
	})
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Request, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+requestColumns+` FROM role_requests WHERE id = $1 FOR UPDATE`, id)
	return scanRequest(row)
}

func (t *txRepo) SetStatus(ctx context.Context, id int64, status Status, decidedBy identity.Account) error {
	tag, err := t.tx.Exec(ctx, `UPDATE role_requests SET status = $2, decided_by = $3, decided_at = NOW() WHERE id = $1`,
		id, string(status), decidedBy.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req       Request
		requester string
		roleID    string
		status    string
		decidedBy *string
		decidedAt *time.Time
	)
	err := row.Scan(&req.ID, &requester, &roleID, &status, &req.SubmittedAt, &decidedBy, &decidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, fmt.Errorf("role request: %w", shared.ErrNotFound)
		}
		return Request{}, err
	}
	if req.Requester, err = identity.ParseAccount(requester); err != nil {
		return Request{}, err
	}
	if req.Role, err = identity.ParseRoleID(roleID); err != nil {
		return Request{}, err
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

package rolereq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/registry"
	"github.com/registria/registria/internal/shared"
)

// RepositoryPort describes ledger storage used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Request, error)
	Create(ctx context.Context, requester identity.Account, role identity.RoleID) (Request, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes settlement operations inside one ledger transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Request, error)
	SetStatus(ctx context.Context, id int64, status Status, decidedBy identity.Account) error
}

// RegistryPort is the slice of the access-control registry the workflow needs.
type RegistryPort interface {
	GetRole(ctx context.Context, id identity.RoleID) (registry.Role, error)
	HasRole(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error)
	GrantRole(ctx context.Context, role identity.RoleID, account, caller identity.Account) error
}

// ReceiptPort persists submission receipts.
type ReceiptPort interface {
	Record(ctx context.Context, receipt shared.Receipt) (shared.Receipt, error)
}

// DispatchPort hands committed receipts to the background dispatcher.
type DispatchPort interface {
	Dispatch(ctx context.Context, receipt shared.Receipt) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts ledger activity.
type MetricsPort interface {
	RecordSubmission(ledger string)
	RecordSettlement(ledger, status string)
}

// Service orchestrates role-request submission and settlement. It is a
// privileged but constrained caller of the registry: grants go through the
// operator identity, which only administers the requestable roles.
type Service struct {
	repo         RepositoryPort
	registry     RegistryPort
	operator     identity.Account
	approverRole identity.RoleID
	receipts     ReceiptPort
	dispatcher   DispatchPort
	audit        AuditPort
	metrics      MetricsPort
	logger       *slog.Logger
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Receipts   ReceiptPort
	Dispatcher DispatchPort
	Audit      AuditPort
	Metrics    MetricsPort
	Logger     *slog.Logger
}

// NewService constructs the workflow service. operator is the account the
// workflow uses when granting approved roles; approvals require the
// ROLE_MANAGER_ROLE authority.
func NewService(repo RepositoryPort, reg RegistryPort, operator identity.Account, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		registry:     reg,
		operator:     operator,
		approverRole: identity.NamedRole(identity.RoleNameRoleManager),
		receipts:     cfg.Receipts,
		dispatcher:   cfg.Dispatcher,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Submit appends a pending request for role. The role must be on the
// requestable whitelist; the check happens before any write so a refused
// submission consumes no id.
func (s *Service) Submit(ctx context.Context, role identity.RoleID, requester identity.Account) (Request, error) {
	if requester.IsZero() {
		return Request{}, shared.ErrUnauthorized
	}
	def, err := s.registry.GetRole(ctx, role)
	if err != nil {
		// A role outside the catalogue is outside the whitelist.
		return Request{}, fmt.Errorf("role %s: %w", role, shared.ErrRoleNotRequestable)
	}
	if !def.Requestable {
		return Request{}, fmt.Errorf("role %s: %w", def.Name, shared.ErrRoleNotRequestable)
	}
	req, err := s.repo.Create(ctx, requester, role)
	if err != nil {
		return Request{}, err
	}
	s.settleRecord(ctx, req, requester, shared.ReceiptSubmit)
	return req, nil
}

// Approve settles a pending request and grants the requested role through the
// registry. A failed grant rolls the status transition back.
func (s *Service) Approve(ctx context.Context, id int64, caller identity.Account) (Request, error) {
	if err := s.requireApprover(ctx, caller); err != nil {
		return Request{}, err
	}
	var settled Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return fmt.Errorf("request %d is %s: %w", id, req.Status, shared.ErrAlreadyProcessed)
		}
		if err := tx.SetStatus(ctx, id, StatusApproved, caller); err != nil {
			return err
		}
		// The operator holds the admin role for every requestable role by
		// construction of the bootstrap wiring; anything else fails here and
		// rolls the settlement back. The grant itself commits on the registry
		// connection, so a ledger commit failure after a successful grant
		// leaves the role held with the request still pending. Retrying the
		// approval converges because grants are idempotent.
		if err := s.registry.GrantRole(ctx, req.Role, req.Requester, s.operator); err != nil {
			return err
		}
		settled = req
		settled.Status = StatusApproved
		settled.DecidedBy = caller
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.settleRecord(ctx, settled, caller, shared.ReceiptApprove)
	return settled, nil
}

// Reject settles a pending request with no registry call.
func (s *Service) Reject(ctx context.Context, id int64, caller identity.Account) (Request, error) {
	if err := s.requireApprover(ctx, caller); err != nil {
		return Request{}, err
	}
	var settled Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return fmt.Errorf("request %d is %s: %w", id, req.Status, shared.ErrAlreadyProcessed)
		}
		if err := tx.SetStatus(ctx, id, StatusRejected, caller); err != nil {
			return err
		}
		settled = req
		settled.Status = StatusRejected
		settled.DecidedBy = caller
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.settleRecord(ctx, settled, caller, shared.ReceiptReject)
	return settled, nil
}

// Get returns a ledger entry by id.
func (s *Service) Get(ctx context.Context, id int64) (Request, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) requireApprover(ctx context.Context, caller identity.Account) error {
	if caller.IsZero() {
		return shared.ErrUnauthorized
	}
	holds, err := s.registry.HasRole(ctx, s.approverRole, caller)
	if err != nil {
		return err
	}
	if !holds {
		return fmt.Errorf("caller %s: %w", caller, shared.ErrUnauthorized)
	}
	return nil
}

func (s *Service) settleRecord(ctx context.Context, req Request, actor identity.Account, action shared.ReceiptAction) {
	if s.metrics != nil {
		if action == shared.ReceiptSubmit {
			s.metrics.RecordSubmission(shared.LedgerRoleRequests)
		} else {
			s.metrics.RecordSettlement(shared.LedgerRoleRequests, string(req.Status))
		}
	}
	receipt := shared.Receipt{
		Ledger:    shared.LedgerRoleRequests,
		RequestID: req.ID,
		Actor:     actor.String(),
		Action:    action,
		Status:    string(req.Status),
		At:        time.Now(),
	}
	if s.receipts != nil {
		recorded, err := s.receipts.Record(ctx, receipt)
		if err != nil {
			s.logger.Warn("record receipt", slog.Int64("request_id", req.ID), slog.Any("error", err))
		} else {
			receipt = recorded
		}
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, receipt); err != nil {
			s.logger.Warn("dispatch receipt", slog.Int64("request_id", req.ID), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		log := shared.AuditLog{
			Actor:    actor.String(),
			Action:   "ROLE_REQUEST_" + string(action),
			Entity:   shared.LedgerRoleRequests,
			EntityID: fmt.Sprintf("%d", req.ID),
			Meta:     map[string]any{"role": req.Role.String(), "requester": req.Requester.String(), "status": string(req.Status)},
			At:       time.Now(),
		}
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("record audit", slog.Int64("request_id", req.ID), slog.Any("error", err))
		}
	}
}

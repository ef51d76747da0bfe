package vehicles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/shared"
)

// RepositoryPort describes ledger storage used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Request, error)
	Create(ctx context.Context, submitter, owner identity.Account, documentRef string) (Request, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes settlement operations inside one ledger transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Request, error)
	Settle(ctx context.Context, id int64, status Status, certificateRef string, decidedBy identity.Account) error
}

// AuthorizerPort is the slice of the access-control registry the ledger needs.
type AuthorizerPort interface {
	HasRole(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error)
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

// Service orchestrates the registration ledger. Submission is gated on the
// dealer role and settlement on the auditor role; beyond those checks the
// registry is not involved.
type Service struct {
	repo         RepositoryPort
	authorizer   AuthorizerPort
	submitRole   identity.RoleID
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

// NewService constructs the registration ledger service.
func NewService(repo RepositoryPort, authorizer AuthorizerPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		authorizer:   authorizer,
		submitRole:   identity.NamedRole(identity.RoleNameDealer),
		approverRole: identity.NamedRole(identity.RoleNameAuditor),
		receipts:     cfg.Receipts,
		dispatcher:   cfg.Dispatcher,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Submit appends a pending registration request. The submitter must hold the
// dealer role; all checks run before any write.
func (s *Service) Submit(ctx context.Context, documentRef string, owner, submitter identity.Account) (Request, error) {
	if err := s.requireRole(ctx, s.submitRole, submitter); err != nil {
		return Request{}, err
	}
	documentRef = strings.TrimSpace(documentRef)
	if documentRef == "" {
		return Request{}, fmt.Errorf("vehicles: document reference required")
	}
	if owner.IsZero() {
		return Request{}, fmt.Errorf("vehicles: owner account required")
	}
	req, err := s.repo.Create(ctx, submitter, owner, documentRef)
	if err != nil {
		return Request{}, err
	}
	s.settleRecord(ctx, req, submitter, shared.ReceiptSubmit)
	return req, nil
}

// Approve settles a pending request and attaches the certificate reference.
func (s *Service) Approve(ctx context.Context, id int64, certificateRef string, caller identity.Account) (Request, error) {
	if err := s.requireRole(ctx, s.approverRole, caller); err != nil {
		return Request{}, err
	}
	certificateRef = strings.TrimSpace(certificateRef)
	if certificateRef == "" {
		return Request{}, fmt.Errorf("vehicles: certificate reference required")
	}
	return s.settle(ctx, id, StatusApproved, certificateRef, caller, shared.ReceiptApprove)
}

// Reject settles a pending request without a certificate.
func (s *Service) Reject(ctx context.Context, id int64, caller identity.Account) (Request, error) {
	if err := s.requireRole(ctx, s.approverRole, caller); err != nil {
		return Request{}, err
	}
	return s.settle(ctx, id, StatusRejected, "", caller, shared.ReceiptReject)
}

// Get returns a ledger entry by id.
func (s *Service) Get(ctx context.Context, id int64) (Request, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) settle(ctx context.Context, id int64, status Status, certificateRef string, caller identity.Account, action shared.ReceiptAction) (Request, error) {
	var settled Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return fmt.Errorf("registration %d is %s: %w", id, req.Status, shared.ErrAlreadyProcessed)
		}
		if err := tx.Settle(ctx, id, status, certificateRef, caller); err != nil {
			return err
		}
		settled = req
		settled.Status = status
		settled.CertificateRef = certificateRef
		settled.DecidedBy = caller
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.settleRecord(ctx, settled, caller, action)
	return settled, nil
}

func (s *Service) requireRole(ctx context.Context, role identity.RoleID, caller identity.Account) error {
	if caller.IsZero() {
		return shared.ErrUnauthorized
	}
	holds, err := s.authorizer.HasRole(ctx, role, caller)
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
			s.metrics.RecordSubmission(shared.LedgerRegistrations)
		} else {
			s.metrics.RecordSettlement(shared.LedgerRegistrations, string(req.Status))
		}
	}
	receipt := shared.Receipt{
		Ledger:    shared.LedgerRegistrations,
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
		meta := map[string]any{
			"owner":        req.Owner.String(),
			"document_ref": req.DocumentRef,
			"status":       string(req.Status),
		}
		if req.CertificateRef != "" {
			meta["certificate_ref"] = req.CertificateRef
		}
		log := shared.AuditLog{
			Actor:    actor.String(),
			Action:   "REGISTRATION_" + string(action),
			Entity:   shared.LedgerRegistrations,
			EntityID: fmt.Sprintf("%d", req.ID),
			Meta:     meta,
			At:       time.Now(),
		}
		if err := s.audit.Record(ctx, log); err != nil {
			s.logger.Warn("record audit", slog.Int64("request_id", req.ID), slog.Any("error", err))
		}
	}
}

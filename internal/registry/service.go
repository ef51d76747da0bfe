package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/shared"
)

// RepositoryPort describes storage operations used by Service.
type RepositoryPort interface {
	GetRole(ctx context.Context, id identity.RoleID) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpsertRole(ctx context.Context, role Role) error
	SetRoleAdmin(ctx context.Context, id, admin identity.RoleID) error
	HasMember(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error)
	AddMember(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error)
	RemoveMember(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error)
}

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements grant/revoke/has-role gated by each role's admin role.
type Service struct {
	repo   RepositoryPort
	cache  *MembershipCache
	audit  AuditPort
	logger *slog.Logger
}

// NewService constructs the registry service. cache and audit may be nil.
func NewService(repo RepositoryPort, cache *MembershipCache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// HasRole reports membership. Pure lookup, served from the membership cache
// when one is configured.
func (s *Service) HasRole(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error) {
	if s.cache != nil {
		return s.cache.Lookup(ctx, role, account, func(ctx context.Context) (bool, error) {
			return s.repo.HasMember(ctx, role, account)
		})
	}
	return s.repo.HasMember(ctx, role, account)
}

// GetRole fetches a role definition.
func (s *Service) GetRole(ctx context.Context, id identity.RoleID) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns the role catalogue.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GrantRole adds account to role. The caller must hold the role's admin role.
// Granting an already-held role is a no-op, not an error.
func (s *Service) GrantRole(ctx context.Context, role identity.RoleID, account identity.Account, caller identity.Account) error {
	def, err := s.repo.GetRole(ctx, role)
	if err != nil {
		return err
	}
	if err := s.requireRole(ctx, def.AdminRole, caller); err != nil {
		return err
	}
	added, err := s.repo.AddMember(ctx, role, account)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	s.invalidate(ctx, role, account)
	s.recordAudit(ctx, caller, "ROLE_GRANT", role, account)
	return nil
}

// RevokeRole removes account from role. Same authorization constraint as
// GrantRole; removing an absent membership is a no-op.
func (s *Service) RevokeRole(ctx context.Context, role identity.RoleID, account identity.Account, caller identity.Account) error {
	def, err := s.repo.GetRole(ctx, role)
	if err != nil {
		return err
	}
	if err := s.requireRole(ctx, def.AdminRole, caller); err != nil {
		return err
	}
	removed, err := s.repo.RemoveMember(ctx, role, account)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	s.invalidate(ctx, role, account)
	s.recordAudit(ctx, caller, "ROLE_REVOKE", role, account)
	return nil
}

// SetRoleAdmin rewires which role administers id. Restricted to holders of the
// default-admin role. The rewired chain must still resolve to the default-admin
// role so some account can always administer it.
func (s *Service) SetRoleAdmin(ctx context.Context, id, admin identity.RoleID, caller identity.Account) error {
	if err := s.requireRole(ctx, identity.DefaultAdminRole, caller); err != nil {
		return err
	}
	def, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if !admin.IsDefaultAdmin() {
		if _, err := s.repo.GetRole(ctx, admin); err != nil {
			return fmt.Errorf("admin role %s: %w", admin, shared.ErrInvalidAdminChain)
		}
	}
	if err := s.checkChain(ctx, def.ID, admin); err != nil {
		return err
	}
	if err := s.repo.SetRoleAdmin(ctx, id, admin); err != nil {
		return err
	}
	s.recordAudit(ctx, caller, "ROLE_SET_ADMIN", id, identity.Account{})
	return nil
}

// EnsureRole upserts a role definition. Deployment-time operation; it bypasses
// the caller check and validates the resulting admin chain instead.
func (s *Service) EnsureRole(ctx context.Context, role Role) error {
	if !role.AdminRole.IsDefaultAdmin() {
		if _, err := s.repo.GetRole(ctx, role.AdminRole); err != nil {
			return fmt.Errorf("admin role %s: %w", role.AdminRole, shared.ErrInvalidAdminChain)
		}
	}
	if err := s.checkChain(ctx, role.ID, role.AdminRole); err != nil {
		return err
	}
	return s.repo.UpsertRole(ctx, role)
}

// ValidateAdminChains confirms every role's admin chain terminates at the
// default-admin role.
func (s *Service) ValidateAdminChains(ctx context.Context) error {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return err
	}
	for _, role := range roles {
		if err := s.checkChain(ctx, role.ID, role.AdminRole); err != nil {
			return fmt.Errorf("role %s: %w", role.Name, err)
		}
	}
	return nil
}

// checkChain walks admin links starting from admin, treating role's admin as
// already rewired. A cycle or a dangling link classifies as ErrInvalidAdminChain.
func (s *Service) checkChain(ctx context.Context, role, admin identity.RoleID) error {
	visited := map[identity.RoleID]bool{role: true}
	cur := admin
	for !cur.IsDefaultAdmin() {
		if visited[cur] {
			return shared.ErrInvalidAdminChain
		}
		visited[cur] = true
		def, err := s.repo.GetRole(ctx, cur)
		if err != nil {
			return shared.ErrInvalidAdminChain
		}
		cur = def.AdminRole
	}
	return nil
}

// requireRole checks authorization against the repository directly so mutation
// gating never observes a stale cache entry.
func (s *Service) requireRole(ctx context.Context, role identity.RoleID, caller identity.Account) error {
	if caller.IsZero() {
		return shared.ErrUnauthorized
	}
	holds, err := s.repo.HasMember(ctx, role, caller)
	if err != nil {
		return err
	}
	if !holds {
		return fmt.Errorf("caller %s: %w", caller, shared.ErrUnauthorized)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, role identity.RoleID, account identity.Account) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, role, account); err != nil {
		s.logger.Warn("invalidate membership cache", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor identity.Account, action string, role identity.RoleID, subject identity.Account) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{"role": role.String()}
	if !subject.IsZero() {
		meta["account"] = subject.String()
	}
	log := shared.AuditLog{Actor: actor.String(), Action: action, Entity: "roles", EntityID: role.String(), Meta: meta, At: time.Now()}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

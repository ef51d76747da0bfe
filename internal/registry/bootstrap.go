package registry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/registria/registria/internal/identity"
)

// BootstrapConfig names the deployment identities.
type BootstrapConfig struct {
	// Admin receives the default-admin role.
	Admin identity.Account
	// Operator is the role-request workflow's operating identity. It receives
	// ROLE_MANAGER_ROLE, which administers every requestable role, instead of
	// root authority.
	Operator identity.Account
}

// Bootstrap installs the built-in role catalogue and the deployment grants.
// Every step is grant-if-missing, so reruns are harmless.
func (s *Service) Bootstrap(ctx context.Context, cfg BootstrapConfig) error {
	if cfg.Admin.IsZero() {
		return errors.New("registry: bootstrap admin account required")
	}
	if cfg.Operator.IsZero() {
		return errors.New("registry: workflow operator account required")
	}
	for _, role := range BuiltinRoles() {
		if err := s.EnsureRole(ctx, role); err != nil {
			return err
		}
	}
	grants := []Membership{
		{Role: identity.DefaultAdminRole, Account: cfg.Admin},
		{Role: identity.NamedRole(identity.RoleNameRoleManager), Account: cfg.Operator},
	}
	for _, g := range grants {
		added, err := s.repo.AddMember(ctx, g.Role, g.Account)
		if err != nil {
			return err
		}
		if added {
			s.invalidate(ctx, g.Role, g.Account)
			s.logger.Info("bootstrap grant",
				slog.String("role", g.Role.String()),
				slog.String("account", g.Account.String()))
		}
	}
	return s.ValidateAdminChains(ctx)
}

package shared

import "errors"

// Classified failure kinds for the mutation surface. Callers observe a
// definitive success or one of these; retry policy lives outside the core.
var (
	// ErrUnauthorized indicates the caller lacks the role required for the mutation.
	ErrUnauthorized = errors.New("caller lacks required role")
	// ErrRoleNotRequestable indicates a submission named a role outside the whitelist.
	ErrRoleNotRequestable = errors.New("role is not requestable")
	// ErrNotFound indicates the referenced record was never assigned.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyProcessed indicates an approve/reject targeted a non-pending request.
	ErrAlreadyProcessed = errors.New("request already processed")
	// ErrInvalidAdminChain indicates an admin rewiring would leave a role unadministrable.
	ErrInvalidAdminChain = errors.New("admin chain does not resolve to the default admin role")
)

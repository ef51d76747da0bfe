// Package rolereq implements the role-request workflow: an append-only ledger
// of requests for whitelisted roles, settled by an authorized approver.
package rolereq

import (
	"time"

	"github.com/registria/registria/internal/identity"
)

// Status enumerates the request lifecycle. Requests are mutated exactly once,
// Pending to Approved or Pending to Rejected, and never deleted.
type Status string

const (
	// StatusPending marks a submitted, unsettled request.
	StatusPending Status = "PENDING"
	// StatusApproved marks a settled request whose role grant was applied.
	StatusApproved Status = "APPROVED"
	// StatusRejected marks a settled request with no grant.
	StatusRejected Status = "REJECTED"
)

// Request is one entry in the role-request ledger. IDs are dense, zero-based
// and assigned at submission regardless of the eventual outcome.
type Request struct {
	ID          int64
	Requester   identity.Account
	Role        identity.RoleID
	Status      Status
	SubmittedAt time.Time
	DecidedBy   identity.Account
	DecidedAt   time.Time
}

// Package vehicles implements the vehicle-registration ledger: dealers submit
// registration requests carrying an off-chain document reference, auditors
// settle them and attach the issued certificate.
package vehicles

import (
	"time"

	"github.com/registria/registria/internal/identity"
)

// Status enumerates the registration request lifecycle.
type Status string

const (
	// StatusPending marks a submitted, unsettled registration request.
	StatusPending Status = "PENDING"
	// StatusApproved marks a settled request with an attached certificate.
	StatusApproved Status = "APPROVED"
	// StatusRejected marks a settled request with no certificate.
	StatusRejected Status = "REJECTED"
)

// Request is one entry in the registration ledger. DocumentRef and
// CertificateRef are opaque content-addressed references; the ledger stores
// and returns them without interpretation.
type Request struct {
	ID             int64
	Submitter      identity.Account
	Owner          identity.Account
	DocumentRef    string
	CertificateRef string
	Status         Status
	SubmittedAt    time.Time
	DecidedBy      identity.Account
	DecidedAt      time.Time
}

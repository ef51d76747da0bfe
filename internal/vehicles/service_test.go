package vehicles

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/shared"
)

type memoryLedger struct {
	reqs   map[int64]Request
	nextID int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{reqs: make(map[int64]Request)}
}

func (l *memoryLedger) Get(ctx context.Context, id int64) (Request, error) {
	req, ok := l.reqs[id]
	if !ok {
		return Request{}, fmt.Errorf("registration: %w", shared.ErrNotFound)
	}
	return req, nil
}

func (l *memoryLedger) Create(ctx context.Context, submitter, owner identity.Account, documentRef string) (Request, error) {
	req := Request{
		ID:          l.nextID,
		Submitter:   submitter,
		Owner:       owner,
		DocumentRef: documentRef,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}
	l.reqs[req.ID] = req
	l.nextID++
	return req, nil
}

func (l *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Request, len(l.reqs))
	for id, req := range l.reqs {
		snapshot[id] = req
	}
	if err := fn(ctx, &memoryLedgerTx{ledger: l}); err != nil {
		l.reqs = snapshot
		return err
	}
	return nil
}

type memoryLedgerTx struct {
	ledger *memoryLedger
}

func (t *memoryLedgerTx) GetForUpdate(ctx context.Context, id int64) (Request, error) {
	return t.ledger.Get(ctx, id)
}

func (t *memoryLedgerTx) Settle(ctx context.Context, id int64, status Status, certificateRef string, decidedBy identity.Account) error {
	req, ok := t.ledger.reqs[id]
	if !ok {
		return fmt.Errorf("registration: %w", shared.ErrNotFound)
	}
	req.Status = status
	req.CertificateRef = certificateRef
	req.DecidedBy = decidedBy
	req.DecidedAt = time.Now()
	t.ledger.reqs[id] = req
	return nil
}

type stubAuthorizer struct {
	members map[string]bool
}

func newStubAuthorizer() *stubAuthorizer {
	return &stubAuthorizer{members: make(map[string]bool)}
}

func (s *stubAuthorizer) grant(role identity.RoleID, account identity.Account) {
	s.members[role.String()+"/"+account.String()] = true
}

func (s *stubAuthorizer) HasRole(ctx context.Context, role identity.RoleID, account identity.Account) (bool, error) {
	return s.members[role.String()+"/"+account.String()], nil
}

type memoryReceipts struct {
	receipts []shared.Receipt
}

func (m *memoryReceipts) Record(ctx context.Context, receipt shared.Receipt) (shared.Receipt, error) {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	m.receipts = append(m.receipts, receipt)
	return receipt, nil
}

func (m *memoryReceipts) List(ctx context.Context, ledger string, requestID int64) ([]shared.Receipt, error) {
	var out []shared.Receipt
	for _, rec := range m.receipts {
		if rec.Ledger == ledger && rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

var (
	dealerAcct   = identity.MustAccount("0x4444444444444444444444444444444444444444")
	auditorAcct  = identity.MustAccount("0x5555555555555555555555555555555555555555")
	ownerAcct    = identity.MustAccount("0x6666666666666666666666666666666666666666")
	strangerAcct = identity.MustAccount("0x7777777777777777777777777777777777777777")
)

func newLedgerService(t *testing.T) (*Service, *memoryLedger) {
	t.Helper()
	auth := newStubAuthorizer()
	auth.grant(identity.NamedRole(identity.RoleNameDealer), dealerAcct)
	auth.grant(identity.NamedRole(identity.RoleNameAuditor), auditorAcct)
	ledger := newMemoryLedger()
	return NewService(ledger, auth, ServiceConfig{}), ledger
}

func TestSubmitRequiresDealerRole(t *testing.T) {
	svc, ledger := newLedgerService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "QmDoc1", ownerAcct, strangerAcct)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	require.Empty(t, ledger.reqs)

	req, err := svc.Submit(ctx, "QmDoc1", ownerAcct, dealerAcct)
	require.NoError(t, err)
	require.Equal(t, int64(0), req.ID)
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, ownerAcct, req.Owner)
}

func TestSubmitAssignsSequentialIDs(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()
	for want := int64(0); want < 3; want++ {
		req, err := svc.Submit(ctx, fmt.Sprintf("QmDoc%d", want), ownerAcct, dealerAcct)
		require.NoError(t, err)
		require.Equal(t, want, req.ID)
	}
}

func TestApproveAttachesCertificate(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, "QmDoc1", ownerAcct, dealerAcct)
	require.NoError(t, err)

	settled, err := svc.Approve(ctx, req.ID, "QmCert1", auditorAcct)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, settled.Status)
	require.Equal(t, "QmCert1", settled.CertificateRef)

	got, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, "QmCert1", got.CertificateRef)
}

func TestApproveRequiresAuditorRole(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()
	req, err := svc.Submit(ctx, "QmDoc1", ownerAcct, dealerAcct)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.ID, "QmCert1", dealerAcct)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	got, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

func TestApproveSettledRequestFails(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()
	req, err := svc.Submit(ctx, "QmDoc1", ownerAcct, dealerAcct)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, "QmCert1", auditorAcct)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, req.ID, "QmCert2", auditorAcct)
	require.ErrorIs(t, err, shared.ErrAlreadyProcessed)

	// The first certificate stays attached.
	got, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "QmCert1", got.CertificateRef)
}

func TestRejectStoresNoCertificate(t *testing.T) {
	svc, _ := newLedgerService(t)
	ctx := context.Background()
	req, err := svc.Submit(ctx, "QmDoc1", ownerAcct, dealerAcct)
	require.NoError(t, err)

	settled, err := svc.Reject(ctx, req.ID, auditorAcct)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, settled.Status)
	require.Empty(t, settled.CertificateRef)

	// Rejected requests keep their id; the next submission advances.
	next, err := svc.Submit(ctx, "QmDoc2", ownerAcct, dealerAcct)
	require.NoError(t, err)
	require.Equal(t, req.ID+1, next.ID)
}

func TestApproveUnknownRequestFails(t *testing.T) {
	svc, _ := newLedgerService(t)
	_, err := svc.Approve(context.Background(), 9, "QmCert1", auditorAcct)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func newRecordedLedgerService(t *testing.T) (*Service, *memoryReceipts, *memoryAudit) {
	t.Helper()
	auth := newStubAuthorizer()
	auth.grant(identity.NamedRole(identity.RoleNameDealer), dealerAcct)
	auth.grant(identity.NamedRole(identity.RoleNameAuditor), auditorAcct)
	receipts := &memoryReceipts{}
	audit := &memoryAudit{}
	svc := NewService(newMemoryLedger(), auth, ServiceConfig{Receipts: receipts, Audit: audit})
	return svc, receipts, audit
}

func TestSubmitRecordsReceipt(t *testing.T) {
	svc, receipts, audit := newRecordedLedgerService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, "QmDoc1", ownerAcct, dealerAcct)
	require.NoError(t, err)

	require.Len(t, receipts.receipts, 1)
	rec := receipts.receipts[0]
	require.Equal(t, shared.LedgerRegistrations, rec.Ledger)
	require.Equal(t, req.ID, rec.RequestID)
	require.Equal(t, shared.ReceiptSubmit, rec.Action)
	require.Equal(t, string(StatusPending), rec.Status)
	require.Equal(t, dealerAcct.String(), rec.Actor)
	require.False(t, rec.At.IsZero(), "receipt must carry the commit timestamp")

	require.Len(t, audit.logs, 1)
	require.Equal(t, "REGISTRATION_SUBMIT", audit.logs[0].Action)
	require.False(t, audit.logs[0].At.IsZero(), "audit entry must carry the commit timestamp")
}

func TestSettlementRecordsOneReceiptPerDecision(t *testing.T) {
	svc, receipts, _ := newRecordedLedgerService(t)
	ctx := context.Background()

	req, err := svc.Submit(ctx, "QmDoc1", ownerAcct, dealerAcct)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, req.ID, auditorAcct)
	require.NoError(t, err)

	require.Len(t, receipts.receipts, 2)
	reject := receipts.receipts[1]
	require.Equal(t, shared.ReceiptReject, reject.Action)
	require.Equal(t, string(StatusRejected), reject.Status)
	require.Equal(t, auditorAcct.String(), reject.Actor)
	require.False(t, reject.At.IsZero())
}

func TestFailedMutationRecordsNoReceipt(t *testing.T) {
	svc, receipts, audit := newRecordedLedgerService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "QmDoc1", ownerAcct, strangerAcct)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	req, err := svc.Submit(ctx, "QmDoc1", ownerAcct, dealerAcct)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, req.ID, "QmCert1", dealerAcct)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	require.Len(t, receipts.receipts, 1, "only the committed submit leaves a receipt")
	require.Len(t, audit.logs, 1)
}

func TestSubmitValidatesInput(t *testing.T) {
	svc, ledger := newLedgerService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "   ", ownerAcct, dealerAcct)
	require.Error(t, err)
	_, err = svc.Submit(ctx, "QmDoc1", identity.Account{}, dealerAcct)
	require.Error(t, err)
	require.Empty(t, ledger.reqs)
}

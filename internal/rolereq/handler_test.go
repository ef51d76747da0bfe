package rolereq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/shared"
)

type stubIdempotency struct {
	keys map[string]bool
}

func newStubIdempotency() *stubIdempotency {
	return &stubIdempotency{keys: make(map[string]bool)}
}

func (s *stubIdempotency) CheckAndInsert(ctx context.Context, key, ledger string) error {
	if s.keys[key] {
		return fmt.Errorf("idempotency key %s: %w", key, shared.ErrIdempotencyConflict)
	}
	s.keys[key] = true
	return nil
}

func (s *stubIdempotency) Delete(ctx context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

func newRequestRouter(t *testing.T) (chi.Router, *stubRegistry) {
	t.Helper()
	svc, _, reg := newWorkflow(t)
	handler := NewHandler(nil, svc, nil, nil)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, reg
}

func perform(t *testing.T, router http.Handler, method, target, body string, actor identity.Account) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if !actor.IsZero() {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSubmitEndpointCreatesPendingRequest(t *testing.T) {
	router, _ := newRequestRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)

	rr := perform(t, router, http.MethodPost, "/", `{"role":"`+dealer.String()+`"}`, requester)
	require.Equal(t, http.StatusCreated, rr.Code)

	var view requestView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.Equal(t, int64(0), view.ID)
	require.Equal(t, string(StatusPending), view.Status)
	require.Equal(t, requester.String(), view.Requester)
}

func TestSubmitEndpointRequiresActor(t *testing.T) {
	router, _ := newRequestRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)
	rr := perform(t, router, http.MethodPost, "/", `{"role":"`+dealer.String()+`"}`, identity.Account{})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSubmitEndpointRejectsNonRequestableRole(t *testing.T) {
	router, _ := newRequestRouter(t)
	manager := identity.NamedRole(identity.RoleNameRoleManager)
	rr := perform(t, router, http.MethodPost, "/", `{"role":"`+manager.String()+`"}`, requester)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestApproveEndpointFlow(t *testing.T) {
	router, reg := newRequestRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)

	rr := perform(t, router, http.MethodPost, "/", `{"role":"`+dealer.String()+`"}`, requester)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = perform(t, router, http.MethodPost, "/0/approve", "", managerAcct)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"APPROVED"`)
	require.Equal(t, 1, reg.grantCalls)

	// Settled requests cannot be re-approved.
	rr = perform(t, router, http.MethodPost, "/0/approve", "", managerAcct)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestApproveEndpointUnknownID(t *testing.T) {
	router, _ := newRequestRouter(t)
	rr := perform(t, router, http.MethodPost, "/7/approve", "", managerAcct)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func performKeyed(t *testing.T, router http.Handler, body, key string, actor identity.Account) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSubmitEndpointDuplicateIdempotencyKey(t *testing.T) {
	svc, _, _ := newWorkflow(t)
	handler := NewHandler(nil, svc, newStubIdempotency(), nil)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	dealer := identity.NamedRole(identity.RoleNameDealer)
	body := `{"role":"` + dealer.String() + `"}`

	rr := performKeyed(t, router, body, "submit-1", requester)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = performKeyed(t, router, body, "submit-1", requester)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = performKeyed(t, router, body, "submit-2", requester)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestSubmitEndpointReleasesKeyOnFailure(t *testing.T) {
	svc, _, _ := newWorkflow(t)
	idem := newStubIdempotency()
	handler := NewHandler(nil, svc, idem, nil)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	manager := identity.NamedRole(identity.RoleNameRoleManager)
	dealer := identity.NamedRole(identity.RoleNameDealer)

	rr := performKeyed(t, router, `{"role":"`+manager.String()+`"}`, "retry-1", requester)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Empty(t, idem.keys, "rejected submission must not hold the key")

	// The same key retries cleanly once the role is requestable.
	rr = performKeyed(t, router, `{"role":"`+dealer.String()+`"}`, "retry-1", requester)
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestReceiptsEndpoint(t *testing.T) {
	svc, _, receipts, _ := newRecordedWorkflow(t)
	handler := NewHandler(nil, svc, nil, receipts)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	dealer := identity.NamedRole(identity.RoleNameDealer)

	rr := perform(t, router, http.MethodPost, "/", `{"role":"`+dealer.String()+`"}`, requester)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = perform(t, router, http.MethodPost, "/0/approve", "", managerAcct)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = perform(t, router, http.MethodGet, "/0/receipts", "", identity.Account{})
	require.Equal(t, http.StatusOK, rr.Code)
	var views []receiptView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 2)
	require.Equal(t, string(shared.ReceiptSubmit), views[0].Action)
	require.Equal(t, string(shared.ReceiptApprove), views[1].Action)
	require.NotEmpty(t, views[1].At)

	rr = perform(t, router, http.MethodGet, "/99/receipts", "", identity.Account{})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetEndpoint(t *testing.T) {
	router, _ := newRequestRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)
	perform(t, router, http.MethodPost, "/", `{"role":"`+dealer.String()+`"}`, requester)

	rr := perform(t, router, http.MethodGet, "/0", "", identity.Account{})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), dealer.String())

	rr = perform(t, router, http.MethodGet, "/99", "", identity.Account{})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

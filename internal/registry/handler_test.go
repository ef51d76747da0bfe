package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/shared"
)

func newRegistryRouter(t *testing.T) (chi.Router, *Service) {
	t.Helper()
	svc, _ := newBootstrappedService(t)
	handler := NewHandler(nil, svc)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, svc
}

func doJSON(t *testing.T, router http.Handler, method, target, body string, actor identity.Account) *httptest.ResponseRecorder {
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

func TestHasRoleEndpoint(t *testing.T) {
	router, svc := newRegistryRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)
	require.NoError(t, svc.GrantRole(context.Background(), dealer, userAcct, operatorAcct))

	rr := doJSON(t, router, http.MethodGet, "/roles/"+dealer.String()+"/members/"+userAcct.String(), "", identity.Account{})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"member":true`)

	rr = doJSON(t, router, http.MethodGet, "/roles/"+dealer.String()+"/members/"+adminAcct.String(), "", identity.Account{})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"member":false`)
}

func TestGrantEndpointRequiresActor(t *testing.T) {
	router, _ := newRegistryRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)
	rr := doJSON(t, router, http.MethodPost, "/roles/"+dealer.String()+"/grant", `{"account":"`+userAcct.String()+`"}`, identity.Account{})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGrantEndpointAuthorization(t *testing.T) {
	router, svc := newRegistryRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)
	body := `{"account":"` + userAcct.String() + `"}`

	rr := doJSON(t, router, http.MethodPost, "/roles/"+dealer.String()+"/grant", body, userAcct)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/roles/"+dealer.String()+"/grant", body, operatorAcct)
	require.Equal(t, http.StatusOK, rr.Code)

	holds, err := svc.HasRole(context.Background(), dealer, userAcct)
	require.NoError(t, err)
	require.True(t, holds)
}

func TestGrantEndpointRejectsMalformedAccount(t *testing.T) {
	router, _ := newRegistryRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)
	rr := doJSON(t, router, http.MethodPost, "/roles/"+dealer.String()+"/grant", `{"account":"not-an-account"}`, operatorAcct)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetAdminEndpointReportsInvalidChain(t *testing.T) {
	router, _ := newRegistryRouter(t)
	dealer := identity.NamedRole(identity.RoleNameDealer)
	rr := doJSON(t, router, http.MethodPut, "/roles/"+dealer.String()+"/admin", `{"admin_role":"`+dealer.String()+`"}`, adminAcct)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestGetRoleEndpointNotFound(t *testing.T) {
	router, _ := newRegistryRouter(t)
	ghost := identity.NamedRole("GHOST_ROLE")
	rr := doJSON(t, router, http.MethodGet, "/roles/"+ghost.String(), "", identity.Account{})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

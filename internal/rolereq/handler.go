package rolereq

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/registria/registria/internal/identity"
	"github.com/registria/registria/internal/platform/httpx"
	"github.com/registria/registria/internal/shared"
)

// IdempotencyPort guards duplicate submissions keyed by the Idempotency-Key
// header. Satisfied by shared.IdempotencyStore.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, ledger string) error
	Delete(ctx context.Context, key string) error
}

// ReceiptListerPort reads back the receipts recorded for one request.
type ReceiptListerPort interface {
	List(ctx context.Context, ledger string, requestID int64) ([]shared.Receipt, error)
}

// Handler wires HTTP endpoints for the role-request ledger.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency IdempotencyPort
	receipts    ReceiptListerPort
	validate    *validator.Validate
}

// NewHandler constructs a Handler instance. idempotency and receipts may be nil.
func NewHandler(logger *slog.Logger, service *Service, idempotency IdempotencyPort, receipts ReceiptListerPort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idempotency: idempotency, receipts: receipts, validate: validator.New()}
}

// MountRoutes registers role-request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleSubmit)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/receipts", h.handleReceipts)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/reject", h.handleReject)
}

type submitForm struct {
	Role string `json:"role" validate:"required,len=66,startswith=0x"`
}

type requestView struct {
	ID        int64  `json:"id"`
	Requester string `json:"requester"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	DecidedBy string `json:"decided_by,omitempty"`
}

type receiptView struct {
	ID     string `json:"id"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Status string `json:"status"`
	At     string `json:"at"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing Actor", "X-Actor-Account header required")
		return
	}
	var form submitForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := identity.ParseRoleID(form.Role)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed role id")
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, shared.LedgerRoleRequests); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	req, err := h.service.Submit(r.Context(), role, actor)
	if err != nil {
		// The request never made it into the ledger, so the key must not
		// block a retry.
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(r.Context(), key); derr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRequestView(req))
}

func (h *Handler) handleReceipts(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "receipts are not recorded")
		return
	}
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	receipts, err := h.receipts.List(r.Context(), shared.LedgerRoleRequests, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReceiptViews(receipts))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestView(req))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.Reject)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64, caller identity.Account) (Request, error)) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Missing Actor", "X-Actor-Account header required")
		return
	}
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	req, err := fn(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestView(req))
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request id")
		return 0, false
	}
	return id, true
}

func toRequestView(req Request) requestView {
	view := requestView{
		ID:        req.ID,
		Requester: req.Requester.String(),
		Role:      req.Role.String(),
		Status:    string(req.Status),
	}
	if !req.DecidedBy.IsZero() {
		view.DecidedBy = req.DecidedBy.String()
	}
	return view
}

func toReceiptViews(receipts []shared.Receipt) []receiptView {
	views := make([]receiptView, 0, len(receipts))
	for _, rec := range receipts {
		views = append(views, receiptView{
			ID:     rec.ID.String(),
			Actor:  rec.Actor,
			Action: string(rec.Action),
			Status: rec.Status,
			At:     rec.At.UTC().Format(time.RFC3339),
		})
	}
	return views
}

package refill

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/fulfillment"
	"github.com/rxcare/platform/internal/shared/auth"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the refill module
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new refill handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes registers the refill routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRoles(auth.RolePatient))
		r.Post("/", h.Request)
	})

	r.Get("/", h.List)
	r.Get("/{requestID}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRoles(auth.RolePharmacist, auth.RoleAdmin))
		r.Post("/{requestID}/approve", h.Approve)
		r.Post("/{requestID}/reject", h.Reject)
		r.Post("/{requestID}/fill", h.Fill)
		r.Post("/{requestID}/dispatch", h.Dispatch)
	})

	return r
}

type requestRefillRequest struct {
	PrescriptionID types.ID      `json:"prescription_id"`
	Delivery       types.Address `json:"delivery"`
}

// Request creates a refill request for the calling patient
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	var req requestRefillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if req.PrescriptionID.IsZero() {
		writeError(w, errors.BadRequest("prescription_id is required"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	created, err := h.service.Request(r.Context(), p.ID, req.PrescriptionID, req.Delivery)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List returns refill requests scoped to the caller: patients see their
// own, pharmacists the pending queue.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	var (
		requests []Request
		err      error
	)
	if p.Role == auth.RolePatient {
		requests, err = h.service.ListForPatient(r.Context(), p.ID)
	} else {
		requests, err = h.service.ListPending(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": requests, "total": len(requests)})
}

// Get returns one request with its fill records
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid refill request ID"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	var pharmacistID types.ID
	if p.Role != auth.RolePatient {
		pharmacistID = p.ID
	}

	detail, err := h.service.Get(r.Context(), id, pharmacistID)
	if err != nil {
		writeError(w, err)
		return
	}
	if p.Role == auth.RolePatient && detail.Request.PatientID != p.ID {
		writeError(w, errors.Forbidden("refill request belongs to another patient"))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Approve moves a pending request to approved
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid refill request ID"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	req, err := h.service.Approve(r.Context(), p.ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject moves a pending request to rejected
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid refill request ID"))
		return
	}

	var body rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	req, err := h.service.Reject(r.Context(), p.ID, id, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type fillRequest struct {
	Items []fulfillment.LineItem `json:"items"`
	// EnableReminders defaults to true when absent.
	EnableReminders *bool `json:"enable_reminders"`
}

// Fill fills an approved request from the calling pharmacist's stock
func (h *Handler) Fill(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid refill request ID"))
		return
	}

	var body fillRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if len(body.Items) == 0 {
		writeError(w, errors.BadRequest("at least one medicine line is required"))
		return
	}
	enableReminders := body.EnableReminders == nil || *body.EnableReminders

	p := auth.GetPrincipal(r.Context())
	record, err := h.service.Fill(r.Context(), p.ID, id, body.Items, enableReminders)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Dispatch marks an order as sent. The path segment may carry a refill
// request ID or a prescription ID.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	ref, err := types.ParseID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid ID"))
		return
	}

	req, err := h.service.Dispatch(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}

package prescription

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/shared/auth"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the prescription module
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new prescription handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes registers the prescription routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRoles(auth.RolePatient))
		r.Post("/", h.Upload)
	})

	r.Get("/", h.List)
	r.Get("/{prescriptionID}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRoles(auth.RolePharmacist, auth.RoleAdmin))
		r.Post("/{prescriptionID}/review", h.Review)
	})

	return r
}

type uploadRequest struct {
	ImageRef string `json:"image_ref"`
}

// Upload stores a new prescription for the calling patient
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	created, err := h.service.Upload(r.Context(), p.ID, req.ImageRef)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type reviewRequest struct {
	Status Status `json:"status"`
	Notes  string `json:"notes"`
}

// Review applies a pharmacist's verdict
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "prescriptionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid prescription ID"))
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	reviewed, err := h.service.Review(r.Context(), id, req.Status, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewed)
}

// Get retrieves one prescription
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "prescriptionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid prescription ID"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	rx, err := h.service.Get(r.Context(), p.ID, p.Role == auth.RolePatient, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rx)
}

// List returns prescriptions scoped to the caller: patients see their
// own, pharmacists the review queue.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())

	var (
		prescriptions []Prescription
		err           error
	)
	if p.Role == auth.RolePatient {
		prescriptions, err = h.service.ListForPatient(r.Context(), p.ID)
	} else {
		prescriptions, err = h.service.ListPending(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": prescriptions, "total": len(prescriptions)})
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

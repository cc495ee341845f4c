package fulfillment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/shared/auth"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for reading fill history. Fills are
// created through the refill workflow, never directly here.
type Handler struct {
	repo   Repository
	logger *zap.Logger
}

// NewHandler creates a new fulfillment handler
func NewHandler(repo Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Routes registers the fill history routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{historyID}", h.Get)
	return r
}

// Get retrieves one fill record. Patients may only read their own.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "historyID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid fill record ID"))
		return
	}

	record, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	p := auth.GetPrincipal(r.Context())
	if p.Role == auth.RolePatient && record.PatientID != p.ID {
		writeError(w, errors.Forbidden("fill record belongs to another patient"))
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// List returns fill records scoped to the caller: patients see their own
// fills, pharmacists the fills they performed. A prescription query
// filters either view to one prescription.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	ctx := r.Context()

	var (
		records []History
		err     error
	)
	if raw := r.URL.Query().Get("prescription"); raw != "" {
		prescriptionID, parseErr := types.ParseID(raw)
		if parseErr != nil {
			writeError(w, errors.BadRequest("invalid prescription ID"))
			return
		}
		records, err = h.repo.ListByPrescription(ctx, prescriptionID)
	} else if p.Role == auth.RolePatient {
		records, err = h.repo.ListByPatient(ctx, p.ID)
	} else {
		records, err = h.repo.ListByPharmacist(ctx, p.ID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if p.Role == auth.RolePatient {
		own := records[:0]
		for _, rec := range records {
			if rec.PatientID == p.ID {
				own = append(own, rec)
			}
		}
		records = own
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": records, "total": len(records)})
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

package inventory

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/shared/auth"
	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/metrics"
	"github.com/rxcare/platform/internal/shared/types"
)

// Handler provides HTTP handlers for the inventory module. All routes
// are pharmacist-scoped: a pharmacist only ever sees their own shelf.
type Handler struct {
	repo   Repository
	logger *zap.Logger
}

// NewHandler creates a new inventory handler
func NewHandler(repo Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Routes registers the inventory routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireRoles(auth.RolePharmacist, auth.RoleAdmin))
	r.Get("/", h.List)
	r.Post("/", h.Add)
	r.Get("/low-stock", h.ListLowStock)
	r.Get("/expiring", h.ListExpiring)
	r.Get("/{medicineID}", h.Get)
	r.Put("/{medicineID}", h.Update)
	r.Delete("/{medicineID}", h.Delete)
	return r
}

type inventoryRequest struct {
	MedicineName      string     `json:"medicine_name"`
	StockQuantity     int        `json:"stock_quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
}

func (req inventoryRequest) validate() map[string]string {
	problems := make(map[string]string)
	if req.MedicineName == "" {
		problems["medicine_name"] = "medicine name is required"
	}
	if req.StockQuantity < 0 {
		problems["stock_quantity"] = "stock quantity cannot be negative"
	}
	if req.LowStockThreshold < 0 {
		problems["low_stock_threshold"] = "low stock threshold cannot be negative"
	}
	return problems
}

// Add creates a new inventory row for the calling pharmacist
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	var req inventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if problems := req.validate(); len(problems) > 0 {
		writeError(w, errors.Validation("invalid inventory item", problems))
		return
	}

	p := auth.GetPrincipal(r.Context())
	now := time.Now()
	inv := &Inventory{
		MedicineID:        types.NewID(),
		PharmacistID:      p.ID,
		MedicineName:      req.MedicineName,
		StockQuantity:     req.StockQuantity,
		LowStockThreshold: req.LowStockThreshold,
		ExpiryDate:        req.ExpiryDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := h.repo.Add(r.Context(), inv); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("inventory item added",
		zap.String("medicine_id", inv.MedicineID.String()),
		zap.String("pharmacist_id", p.ID.String()),
		zap.Int("stock", inv.StockQuantity))

	writeJSON(w, http.StatusCreated, inv)
}

// Update overwrites an inventory row's mutable fields
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	medicineID, err := types.ParseID(chi.URLParam(r, "medicineID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid medicine ID"))
		return
	}

	var req inventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}
	if problems := req.validate(); len(problems) > 0 {
		writeError(w, errors.Validation("invalid inventory item", problems))
		return
	}

	p := auth.GetPrincipal(r.Context())
	inv, err := h.repo.Get(r.Context(), medicineID, p.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	inv.MedicineName = req.MedicineName
	inv.StockQuantity = req.StockQuantity
	inv.LowStockThreshold = req.LowStockThreshold
	inv.ExpiryDate = req.ExpiryDate
	inv.UpdatedAt = time.Now()

	if err := h.repo.Update(r.Context(), inv); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Get retrieves one inventory row
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	medicineID, err := types.ParseID(chi.URLParam(r, "medicineID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid medicine ID"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	inv, err := h.repo.Get(r.Context(), medicineID, p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Delete removes one inventory row
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	medicineID, err := types.ParseID(chi.URLParam(r, "medicineID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid medicine ID"))
		return
	}

	p := auth.GetPrincipal(r.Context())
	if err := h.repo.Delete(r.Context(), medicineID, p.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns the calling pharmacist's full inventory
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	items, err := h.repo.ListByPharmacist(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "total": len(items)})
}

// ListLowStock returns rows at or below their low-stock threshold
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	items, err := h.repo.ListLowStock(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RecordLowStockItems(len(items))
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "total": len(items)})
}

// ListExpiring returns rows expiring within 30 days
func (h *Handler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	p := auth.GetPrincipal(r.Context())
	items, err := h.repo.ListExpiringWithin(r.Context(), p.ID, 30*24*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "total": len(items)})
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

package tracking

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rxcare/platform/internal/shared/errors"
	"github.com/rxcare/platform/internal/shared/types"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The live feed is keyed by prescription id and carries no credentials;
	// the transport cannot send an Authorization header from a browser.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler provides HTTP handlers for the tracking module
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new tracking handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes registers the authenticated tracking routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{prescriptionID}", h.GetHistory)
	return r
}

// LiveRoutes registers the unauthenticated live feed route
func (h *Handler) LiveRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{prescriptionID}/live", h.Live)
	return r
}

// GetHistory returns a prescription's timeline, oldest first. Legacy
// prescriptions with an empty ledger get their baseline repaired first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "prescriptionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid prescription ID"))
		return
	}

	if err := h.service.EnsureBaseline(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	events, err := h.service.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  events,
		"total": len(events),
	})
}

// Live upgrades to a websocket and pushes subsequent tracking events for
// one prescription until the client disconnects. No replay: events
// published before the upgrade are not delivered.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "prescriptionID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid prescription ID"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.service.Subscribe(id)
	defer h.service.Unsubscribe(sub)
	defer conn.Close()

	// Reader goroutine: consume control frames and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
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

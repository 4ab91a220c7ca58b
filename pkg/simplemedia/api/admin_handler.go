package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// AdminHandler exposes the administrative reconciliation surface. Routes
// mounted from here must sit behind operator-only access control.
type AdminHandler struct {
	reconciler *simplemedia.Reconciler
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(reconciler *simplemedia.Reconciler) *AdminHandler {
	return &AdminHandler{reconciler: reconciler}
}

// Routes returns the administrative routes.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Delete("/media", h.BulkDelete)
	r.Post("/sweep", h.Sweep)
	r.Post("/purge", h.Purge)

	return r
}

// BulkDeleteRequest lists the items and albums to remove permanently.
type BulkDeleteRequest struct {
	Targets []simplemedia.DeleteTarget `json:"targets"`
}

// BulkDelete permanently removes the listed items and albums, bypassing the
// soft-delete window.
func (h *AdminHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var body BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(body.Targets) == 0 {
		http.Error(w, "no targets given", http.StatusBadRequest)
		return
	}

	result, err := h.reconciler.BulkDelete(r.Context(), body.Targets)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

// Sweep runs the stalled-item sweep on demand.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	requeued, err := h.reconciler.SweepStalled(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]int{"requeued": requeued})
}

// Purge runs the retention purge on demand.
func (h *AdminHandler) Purge(w http.ResponseWriter, r *http.Request) {
	result, err := h.reconciler.PurgeExpired(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

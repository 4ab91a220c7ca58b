package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// AlbumHandler handles HTTP requests for albums.
type AlbumHandler struct {
	service simplemedia.Service
}

// NewAlbumHandler creates a new album handler.
func NewAlbumHandler(service simplemedia.Service) *AlbumHandler {
	return &AlbumHandler{service: service}
}

// Routes returns the routes for albums.
func (h *AlbumHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireOwner)

	r.Get("/{id}", h.GetAlbum)

	return r
}

// GetAlbum returns an album with its active members and resolved thumbnail.
func (h *AlbumHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid album ID", http.StatusBadRequest)
		return
	}
	view, err := h.service.GetAlbum(r.Context(), OwnerID(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, view)
}

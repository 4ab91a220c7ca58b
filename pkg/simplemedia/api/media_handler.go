// Package api exposes the media pipeline over HTTP. Owner identity is
// supplied by the upstream auth layer through the X-Owner-ID header; this
// package performs no authentication of its own.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// maxUploadMemory bounds the in-memory portion of a multipart form parse;
// larger files spill to disk.
const maxUploadMemory = 32 << 20

// MediaHandler handles HTTP requests for media intake and retrieval.
type MediaHandler struct {
	service simplemedia.Service
}

// NewMediaHandler creates a new media handler.
func NewMediaHandler(service simplemedia.Service) *MediaHandler {
	return &MediaHandler{service: service}
}

// Routes returns the routes for media.
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireOwner)

	r.Post("/", h.CreateBatch)
	r.Post("/presign", h.PresignBatch)
	r.Post("/ready", h.MarkReady)
	r.Get("/", h.ListMedia)
	r.Get("/{id}", h.GetMedia)
	r.Get("/{id}/download", h.GetDownloadURL)
	r.Delete("/{id}", h.DeleteMedia)

	return r
}

// CreateBatch accepts a multipart form with the original bytes attached
// (server-received mode). Form fields: type, title, description, tags
// (comma-separated), is_album; files under "files".
func (h *MediaHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	scratch, err := os.MkdirTemp("", "intake-")
	if err != nil {
		http.Error(w, "scratch allocation failed", http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(scratch)

	var files []simplemedia.IntakeFile
	for _, fh := range r.MultipartForm.File["files"] {
		local, err := saveUpload(fh, scratch)
		if err != nil {
			http.Error(w, "failed to receive file "+fh.Filename, http.StatusBadRequest)
			return
		}
		files = append(files, simplemedia.IntakeFile{
			FileName:  fh.Filename,
			MimeType:  fh.Header.Get("Content-Type"),
			Size:      fh.Size,
			LocalPath: local,
		})
	}

	req := simplemedia.CreateBatchRequest{
		OwnerID:     OwnerID(r.Context()),
		Type:        simplemedia.MediaType(r.FormValue("type")),
		Files:       files,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Tags:        splitTags(r.FormValue("tags")),
		IsAlbum:     r.FormValue("is_album") == "true",
		Mode:        simplemedia.ModeServerReceived,
	}

	result, err := h.service.CreateBatch(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// PresignRequest is the request body for a client-direct batch.
type PresignRequest struct {
	Type        string             `json:"type"`
	Files       []PresignFileEntry `json:"files"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	IsAlbum     bool               `json:"is_album,omitempty"`
}

// PresignFileEntry declares one file of a client-direct batch.
type PresignFileEntry struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// PresignBatch creates a pending batch and returns presigned upload URLs
// (client-direct mode).
func (h *MediaHandler) PresignBatch(w http.ResponseWriter, r *http.Request) {
	var body PresignRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	files := make([]simplemedia.IntakeFile, 0, len(body.Files))
	for _, f := range body.Files {
		files = append(files, simplemedia.IntakeFile{
			FileName: f.FileName,
			MimeType: f.MimeType,
			Size:     f.Size,
		})
	}

	req := simplemedia.CreateBatchRequest{
		OwnerID:     OwnerID(r.Context()),
		Type:        simplemedia.MediaType(body.Type),
		Files:       files,
		Title:       body.Title,
		Description: body.Description,
		Tags:        body.Tags,
		IsAlbum:     body.IsAlbum,
		Mode:        simplemedia.ModeClientDirect,
	}

	result, err := h.service.CreateBatch(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// MarkReadyRequest is the request body reporting finished client uploads.
type MarkReadyRequest struct {
	MediaIDs []string `json:"media_ids"`
}

// MarkReady flips client-direct items to processing once their bytes are in
// place.
func (h *MediaHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	var body MarkReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids := make([]uuid.UUID, 0, len(body.MediaIDs))
	for _, raw := range body.MediaIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid media ID: "+raw, http.StatusBadRequest)
			return
		}
		ids = append(ids, id)
	}

	err := h.service.MarkReady(r.Context(), simplemedia.MarkReadyRequest{
		OwnerID:  OwnerID(r.Context()),
		MediaIDs: ids,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]int{"accepted": len(ids)})
}

// GetMedia returns one item to its owner regardless of status.
func (h *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid media ID", http.StatusBadRequest)
		return
	}
	item, err := h.service.GetMedia(r.Context(), OwnerID(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, item)
}

// ListMedia returns the owner's active items.
func (h *MediaHandler) ListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListMedia(r.Context(), OwnerID(r.Context()))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"items": items})
}

// GetDownloadURL issues a time-limited URL for an active item's primary
// derivative.
func (h *MediaHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid media ID", http.StatusBadRequest)
		return
	}
	url, err := h.service.IssueDownloadURL(r.Context(), OwnerID(r.Context()), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"url": url})
}

// DeleteMedia soft-deletes an owner's item.
func (h *MediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid media ID", http.StatusBadRequest)
		return
	}
	if err := h.service.Delete(r.Context(), OwnerID(r.Context()), id); err != nil {
		renderError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func saveUpload(fh *multipart.FileHeader, dir string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	local := filepath.Join(dir, filepath.Base(fh.Filename))
	dst, err := os.Create(local)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return local, nil
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// renderError maps domain errors onto HTTP status codes.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	var validationErr *simplemedia.ValidationError
	switch {
	case errors.Is(err, simplemedia.ErrMediaNotFound),
		errors.Is(err, simplemedia.ErrAlbumNotFound):
		status = http.StatusNotFound
	case errors.Is(err, simplemedia.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, simplemedia.ErrInvalidMediaStatus):
		status = http.StatusConflict
	case errors.As(err, &validationErr),
		errors.Is(err, simplemedia.ErrBatchTooLarge),
		errors.Is(err, simplemedia.ErrFileTooLarge),
		errors.Is(err, simplemedia.ErrUnsupportedFormat),
		errors.Is(err, simplemedia.ErrTypeMismatch),
		errors.Is(err, simplemedia.ErrDurationExceeded):
		status = http.StatusBadRequest
	}

	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}

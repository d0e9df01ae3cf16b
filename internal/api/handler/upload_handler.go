package handler

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"stepleague/internal/api/middleware"
	"stepleague/internal/app/service"
	"stepleague/internal/common"
	"stepleague/internal/platform/storage"
)

type UploadHandler struct {
	uploadService *service.UploadService
	local         *storage.LocalStore // nil when proofs live in Cloudinary
}

func NewUploadHandler(us *service.UploadService, local *storage.LocalStore) *UploadHandler {
	return &UploadHandler{uploadService: us, local: local}
}

type uploadedObject struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.Authenticator).Post("/sign", h.sign)
	// authorized by the signed token in the query string
	r.Put("/object", h.putObject)
	if h.local != nil {
		r.Get("/object/*", h.getObject)
	}
}

func (h *UploadHandler) sign(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.SignUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.uploadService.SignUpload(r.Context(), userID, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *UploadHandler) putObject(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		common.RespondWithError(w, http.StatusUnauthorized, "Upload token required")
		return
	}
	defer r.Body.Close()

	path, err := h.uploadService.StoreObject(r.Context(), token, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, uploadedObject{Path: path, URL: h.uploadService.URL(path)})
}

func (h *UploadHandler) getObject(w http.ResponseWriter, r *http.Request) {
	clean, err := storage.CleanPath(chi.URLParam(r, "*"))
	if err != nil {
		common.RespondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	file := h.local.FilePath(clean)
	if info, err := os.Stat(file); err != nil || info.IsDir() {
		common.RespondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeFile(w, r, file)
}

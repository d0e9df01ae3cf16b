package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stepleague/internal/api/middleware"
	"stepleague/internal/app/service"
	"stepleague/internal/common"
)

type AdminHandler struct {
	jobService *service.VerificationJobService
}

func NewAdminHandler(js *service.VerificationJobService) *AdminHandler {
	return &AdminHandler{jobService: js}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Use(middleware.AdminOnly)
	r.Post("/submissions/{submissionID}/reverify", h.reverify)
}

func (h *AdminHandler) reverify(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobService.EnqueueReverification(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, job) // Accepted (202) as it's async
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stepleague/internal/api/middleware"
	"stepleague/internal/app/service"
	"stepleague/internal/common"
)

type SubmissionHandler struct {
	submissionService   *service.SubmissionService
	verificationService *service.VerificationService
}

func NewSubmissionHandler(ss *service.SubmissionService, vs *service.VerificationService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: ss, verificationService: vs}
}

func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator) // All submission routes require auth
	r.Post("/", h.createSubmission)
	r.Get("/", h.listOwn)
	r.Get("/{submissionID}", h.getSubmission)
	r.Post("/{submissionID}/verify", h.verify)
	r.Post("/{submissionID}/flag", h.flag)
}

func (h *SubmissionHandler) createSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.CreateSubmissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	submission, err := h.submissionService.CreateSubmission(r.Context(), userID, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, submission)
}

func (h *SubmissionHandler) listOwn(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	subs, err := h.submissionService.ListOwn(r.Context(), userID, r.URL.Query().Get("league_id"), from, to)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, subs)
}

func (h *SubmissionHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sub, err := h.submissionService.GetSubmission(r.Context(), userID, chi.URLParam(r, "submissionID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}

// verify answers 429 with Retry-After when the verifier is saturated; the
// client owns the retry loop.
func (h *SubmissionHandler) verify(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	sub, err := h.verificationService.VerifySubmission(r.Context(), userID, chi.URLParam(r, "submissionID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}

func (h *SubmissionHandler) flag(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.FlagSubmissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sub, err := h.submissionService.Flag(r.Context(), userID, chi.URLParam(r, "submissionID"), req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, sub)
}

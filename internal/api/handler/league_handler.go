package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stepleague/internal/api/middleware"
	"stepleague/internal/app/scoring"
	"stepleague/internal/app/service"
	"stepleague/internal/common"
	"stepleague/internal/domain/model"
)

type LeagueHandler struct {
	leagueService      *service.LeagueService
	leaderboardService *service.LeaderboardService
}

func NewLeagueHandler(ls *service.LeagueService, lbs *service.LeaderboardService) *LeagueHandler {
	return &LeagueHandler{leagueService: ls, leaderboardService: lbs}
}

func (h *LeagueHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.With(middleware.AdminOnly).Post("/", h.createLeague)
	r.Route("/{leagueID}", func(r chi.Router) {
		r.Get("/", h.getLeague)
		r.Post("/join", h.join)
		r.Get("/members", h.members)
		r.Get("/leaderboard", h.leaderboard)
		r.Get("/breakdown", h.breakdown)
	})
}

func (h *LeagueHandler) createLeague(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req service.CreateLeagueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	league, err := h.leagueService.CreateLeague(r.Context(), userID, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, league)
}

// getLeague accepts either the slug or the ID.
func (h *LeagueHandler) getLeague(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "leagueID")
	league, err := h.leagueService.GetLeagueBySlug(r.Context(), ref)
	if errors.Is(err, common.ErrNotFound) {
		league, err = h.leagueService.GetLeague(r.Context(), ref)
	}
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, league)
}

func (h *LeagueHandler) join(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	league, err := h.leagueService.Join(r.Context(), chi.URLParam(r, "leagueID"), userID)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, league)
}

func (h *LeagueHandler) members(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	members, err := h.leagueService.ListMembers(r.Context(), chi.URLParam(r, "leagueID"), userID)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, members)
}

func (h *LeagueHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	q, err := leaderboardQuery(r)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	resp, err := h.leaderboardService.GetLeaderboard(r.Context(), userID, chi.URLParam(r, "leagueID"), q)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *LeagueHandler) breakdown(w http.ResponseWriter, r *http.Request) {
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
	resp, err := h.leaderboardService.GetBreakdown(r.Context(), userID, chi.URLParam(r, "leagueID"), from, to, r.URL.Query().Get("group"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func leaderboardQuery(r *http.Request) (service.LeaderboardQuery, error) {
	var (
		q   service.LeaderboardQuery
		err error
	)
	fields := []struct {
		name string
		dst  *model.Date
	}{
		{"from", &q.From},
		{"to", &q.To},
		{"compare_from", &q.CompareFrom},
		{"compare_to", &q.CompareTo},
	}
	for _, f := range fields {
		if *f.dst, err = queryDate(r, f.name); err != nil {
			return q, err
		}
	}
	q.SortBy = scoring.SortKey(r.URL.Query().Get("sort"))
	return q, nil
}

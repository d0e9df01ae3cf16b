package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"stepleague/internal/api/middleware"
	"stepleague/internal/common"
	"stepleague/internal/domain/model"
)

const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok || userID == "" {
		common.RespondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return "", false
	}
	return userID, true
}

// queryDate parses an optional YYYY-MM-DD query parameter; absent means the zero Date.
func queryDate(r *http.Request, name string) (model.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return model.Date{}, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return model.Date{}, fmt.Errorf("%s: %v: %w", name, err, common.ErrValidation)
	}
	return d, nil
}

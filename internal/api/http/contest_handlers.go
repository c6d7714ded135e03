package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blindgrade/blindgrade/internal/submission"
)

// POST /contests  (admin; criteria grid validated at save time)
func UpsertContestHandler(store submission.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c submission.Contest
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if err := c.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.PutContest(r.Context(), c); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"id": c.ID})
	}
}

// GET /contests
func ListContestsHandler(store submission.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListContests(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, out)
	}
}

// GET /contests/{contestID}
func GetContestHandler(store submission.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := store.GetContest(r.Context(), chi.URLParam(r, "contestID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, c)
	}
}

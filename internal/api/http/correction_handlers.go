package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/blindgrade/blindgrade/internal/auth/middleware"
	"github.com/blindgrade/blindgrade/internal/submission"
)

// POST /submissions/{submissionID}/attribution  { "grader_id": "..." }
func AttributeHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GraderID string `json:"grader_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GraderID == "" {
			http.Error(w, "grader_id required", http.StatusBadRequest)
			return
		}
		admin := authmw.SubjectFromContext(r.Context())
		if err := svc.Attribute(r.Context(), chi.URLParam(r, "submissionID"), req.GraderID, admin); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// DELETE /submissions/{submissionID}/attribution
func RemoveAttributionHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin := authmw.SubjectFromContext(r.Context())
		if err := svc.RemoveAttribution(r.Context(), chi.URLParam(r, "submissionID"), admin); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// DELETE /graders/{graderID}/attributions  (bulk, before account removal)
func DetachGraderHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin := authmw.SubjectFromContext(r.Context())
		affected, err := svc.DetachGrader(r.Context(), chi.URLParam(r, "graderID"), admin)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"reset_submissions": affected})
	}
}

type correctionReq struct {
	Entries map[string]submission.CriterionScore `json:"entries"`
	Comment string                               `json:"comment,omitempty"`
}

// POST /submissions/{submissionID}/correction
func SubmitCorrectionHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req correctionReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		grader := authmw.SubjectFromContext(r.Context())
		score, err := svc.SubmitCorrection(r.Context(), chi.URLParam(r, "submissionID"), grader, req.Entries, req.Comment)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]float64{"normalized_score": score})
	}
}

// POST /corrections/{correctionID}/validate  { "comment": "..."? }
func ValidateCorrectionHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Comment string `json:"comment,omitempty"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		admin := authmw.SubjectFromContext(r.Context())
		if err := svc.Validate(r.Context(), chi.URLParam(r, "correctionID"), admin, req.Comment); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// POST /corrections/{correctionID}/reject  { "comment": "..." }
func RejectCorrectionHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Comment string `json:"comment"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		admin := authmw.SubjectFromContext(r.Context())
		if err := svc.Reject(r.Context(), chi.URLParam(r, "correctionID"), admin, req.Comment); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

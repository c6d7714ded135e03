package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/blindgrade/blindgrade/internal/auth/middleware"
	"github.com/blindgrade/blindgrade/internal/submission"
)

// POST /contests/{contestID}/submissions  (multipart: artifact=)
func IntakeHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contestID := chi.URLParam(r, "contestID")
		submitter := authmw.SubjectFromContext(r.Context())
		f, hdr, err := r.FormFile("artifact")
		if err != nil {
			http.Error(w, "artifact required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		sub, err := svc.Intake(r.Context(), contestID, submitter, f, hdr.Filename)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{
			"submission_id": sub.ID,
			"anonymous_id":  sub.AnonymousID,
		})
	}
}

// GET /submissions/{submissionID}/phase
func GetPhaseHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.GetPhase(r.Context(), chi.URLParam(r, "submissionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"phase":                   st.Phase,
			"can_modify":              st.CanModify,
			"modifications_remaining": st.ModificationsRemaining,
			"deadline":                st.Deadline,
		})
	}
}

// PUT /submissions/{submissionID}/artifact  (multipart: artifact=, reason=)
func ReplaceHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionID := chi.URLParam(r, "submissionID")
		actor := authmw.SubjectFromContext(r.Context())
		f, hdr, err := r.FormFile("artifact")
		if err != nil {
			http.Error(w, "artifact required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		reason := strings.TrimSpace(r.FormValue("reason"))
		if err := svc.Replace(r.Context(), submissionID, actor, f, hdr.Filename, reason); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// GET /submissions/{submissionID}/artifact
// Graders download by submission id; the response never carries the
// submitter's identity, only the anonymous one.
func DownloadArtifactHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, err := svc.OpenArtifact(r.Context(), chi.URLParam(r, "submissionID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	}
}

// GET /contests/{contestID}/submissions  (admin/grader listing)
func ListSubmissionsHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := svc.Store().ListSubmissions(r.Context(), chi.URLParam(r, "contestID"))
		if err != nil {
			writeErr(w, err)
			return
		}
		// graders and admins see the anonymous view
		type row struct {
			ID          string            `json:"id"`
			AnonymousID string            `json:"anonymous_id"`
			DepositedAt int64             `json:"deposited_at"`
			Status      submission.Status `json:"status"`
		}
		out := make([]row, 0, len(subs))
		for _, s := range subs {
			out = append(out, row{ID: s.ID, AnonymousID: s.AnonymousID, DepositedAt: s.DepositedAt.Unix(), Status: s.Status})
		}
		writeJSON(w, out)
	}
}

// DELETE /submissions/{submissionID}  (admin purge)
func PurgeHandler(svc *submission.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin := authmw.SubjectFromContext(r.Context())
		if err := svc.Purge(r.Context(), chi.URLParam(r, "submissionID"), admin); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

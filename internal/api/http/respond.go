package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blindgrade/blindgrade/internal/submission"
)

type errBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// writeErr translates workflow errors into stable JSON payloads so the
// calling UI can render the kind and reason without parsing prose.
func writeErr(w http.ResponseWriter, err error) {
	var se *submission.Error
	if !errors.As(err, &se) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(se, submission.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(se, submission.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(se, submission.ErrContestClosed),
		errors.Is(se, submission.ErrModificationForbidden),
		errors.Is(se, submission.ErrAlreadyFinalized),
		errors.Is(se, submission.ErrNotAttributed):
		status = http.StatusConflict
	case errors.Is(se, submission.ErrInvalidArtifact),
		errors.Is(se, submission.ErrValidationFailed),
		errors.Is(se, submission.ErrCommentRequired),
		errors.Is(se, submission.ErrInvalidGraderRole):
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errBody{Error: se.Kind, Reason: se.Reason})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

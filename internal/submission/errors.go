package submission

// Error pairs a stable machine-readable kind with a human reason string so
// presentation layers can explain a rejection without re-deriving phase or
// state logic. errors.Is matches on kind alone.
type Error struct {
	Kind   string
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Reason
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound              = &Error{Kind: "not_found"}
	ErrContestClosed         = &Error{Kind: "contest_closed"}
	ErrInvalidArtifact       = &Error{Kind: "invalid_artifact"}
	ErrUnauthorized          = &Error{Kind: "unauthorized"}
	ErrModificationForbidden = &Error{Kind: "modification_forbidden"}
	ErrNotAttributed         = &Error{Kind: "not_attributed"}
	ErrInvalidGraderRole     = &Error{Kind: "invalid_grader_role"}
	ErrValidationFailed      = &Error{Kind: "validation_failed"}
	ErrAlreadyFinalized      = &Error{Kind: "already_finalized"}
	ErrCommentRequired       = &Error{Kind: "comment_required"}
	ErrDuplicateAnonymousID  = &Error{Kind: "duplicate_anonymous_id"}
	ErrStorage               = &Error{Kind: "storage_error"}
)

func forbidden(reason string) *Error {
	return &Error{Kind: ErrModificationForbidden.Kind, Reason: reason}
}

func validationFailed(criterionID, reason string) *Error {
	return &Error{Kind: ErrValidationFailed.Kind, Reason: "criterion " + criterionID + ": " + reason}
}

func storageErr(reason string) *Error {
	return &Error{Kind: ErrStorage.Kind, Reason: reason}
}

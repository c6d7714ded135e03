package submission

import (
	"context"
	"time"
)

// GraceQuota asks the store to enforce the grace-window replacement cap
// atomically with the write, under whatever serialization the backend
// provides. Nil means no cap (submission phase).
type GraceQuota struct {
	Start time.Time // contest close
	End   time.Time // contest close + grace period
	Max   int
}

// Store is the single source of truth for workflow state. Every method
// that touches more than one entity commits atomically or not at all.
type Store interface {
	PutContest(ctx context.Context, c Contest) error
	GetContest(ctx context.Context, id string) (Contest, error)
	ListContests(ctx context.Context) ([]Contest, error)

	// AnonymousIDExists backs the generator's pre-check; the unique index
	// behind InsertSubmission is the actual arbiter.
	AnonymousIDExists(ctx context.Context, contestID, anonID string) (bool, error)
	InsertSubmission(ctx context.Context, s Submission) error
	GetSubmission(ctx context.Context, id string) (Submission, error)
	ListSubmissions(ctx context.Context, contestID string) ([]Submission, error)
	// DeleteSubmission is the administrative purge; it removes dependent
	// attributions, corrections, audit and notification rows too.
	DeleteSubmission(ctx context.Context, id string) error

	// ReplaceArtifact updates the sealed reference and appends the
	// modification record in one transaction, serialized per submission so
	// concurrent replacements cannot both slip past the grace quota.
	ReplaceArtifact(ctx context.Context, rec ModificationRecord, quota *GraceQuota) error
	ListModifications(ctx context.Context, submissionID string) ([]ModificationRecord, error)

	// UpsertAttribution replaces any existing attribution, discards a stale
	// correction left by a previous grader, and moves a pending submission
	// to under_review.
	UpsertAttribution(ctx context.Context, a Attribution) error
	GetAttribution(ctx context.Context, submissionID string) (Attribution, error)
	// RemoveAttribution deletes the attribution and any correction and
	// resets the submission to pending.
	RemoveAttribution(ctx context.Context, submissionID string) error
	// DetachGrader bulk-removes a grader's attributions and corrections,
	// resetting the affected submissions to pending. Returns their ids.
	DetachGrader(ctx context.Context, graderID string) ([]string, error)

	// UpsertCorrection overwrites any prior correction for the same
	// (submission, grader) pair and moves the submission to
	// review_submitted.
	UpsertCorrection(ctx context.Context, c Correction) error
	GetCorrection(ctx context.Context, id string) (Correction, error)
	GetCorrectionFor(ctx context.Context, submissionID, graderID string) (Correction, error)
	// FinalizeCorrection stamps the validator, finalizes the submission and
	// enqueues the result notification, all in one transaction.
	FinalizeCorrection(ctx context.Context, c Correction, n Notification) error
	// RejectCorrection archives the correction into the rejection log,
	// deletes it, reverts the submission to under_review and enqueues the
	// grader notification, all in one transaction.
	RejectCorrection(ctx context.Context, rec RejectionRecord, n Notification) error
	ListRejections(ctx context.Context, submissionID string) ([]RejectionRecord, error)

	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error

	GetUserRole(ctx context.Context, userID string) (string, error)
}

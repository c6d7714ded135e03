package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/blindgrade/blindgrade/internal/anonid"
	"github.com/blindgrade/blindgrade/internal/audit"
	"github.com/blindgrade/blindgrade/internal/grading"
	"github.com/blindgrade/blindgrade/internal/phase"
	"github.com/blindgrade/blindgrade/internal/storage"
	"github.com/blindgrade/blindgrade/internal/vault"
)

// insertAttempts bounds the regenerate-and-retry loop around the store's
// unique index on anonymous identifiers.
const insertAttempts = 10

const RoleGrader = "grader"

// Service is the submission lifecycle: it orchestrates the vault, the
// identifier generator and the phase clock, owns the status state machine,
// and is the only component that opens store transactions.
type Service struct {
	store Store
	vault *vault.Vault
	ids   *anonid.Generator
	blobs storage.BlobStore
	trail audit.Recorder
	now   func() time.Time
}

func NewService(store Store, v *vault.Vault, blobs storage.BlobStore, trail audit.Recorder, anonPrefix string) *Service {
	return &Service{
		store: store,
		vault: v,
		ids:   anonid.New(anonPrefix, store.AnonymousIDExists),
		blobs: blobs,
		trail: trail,
		now:   time.Now,
	}
}

// Intake accepts a new artifact for a contest: stores the bytes, seals the
// storage key, mints an anonymous identifier and inserts the submission at
// pending. The store's unique index is the identifier arbiter; insertion
// retries with a fresh identifier on conflict.
func (s *Service) Intake(ctx context.Context, contestID, submitterID string, artifact io.Reader, filename string) (Submission, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return Submission{}, err
	}
	now := s.now()
	if !phase.Accepting(contest.Window(), now) {
		return Submission{}, ErrContestClosed
	}
	if artifact == nil {
		return Submission{}, ErrInvalidArtifact
	}
	key, err := s.storeArtifact(contestID, filename, artifact)
	if err != nil {
		return Submission{}, err
	}
	sealed, err := s.vault.Seal([]byte(key))
	if err != nil {
		return Submission{}, storageErr("seal: " + err.Error())
	}
	sub := Submission{
		ID:          uuid.NewString(),
		ContestID:   contestID,
		SubmitterID: submitterID,
		SealedRef:   sealed,
		DepositedAt: now,
		Status:      StatusPending,
	}
	for i := 0; i < insertAttempts; i++ {
		sub.AnonymousID, err = s.ids.Generate(ctx, contestID, contest.ClosesAt.Year())
		if err != nil {
			_ = s.blobs.Delete(key)
			return Submission{}, storageErr(err.Error())
		}
		err = s.store.InsertSubmission(ctx, sub)
		if err == nil {
			s.record(ctx, audit.TypeIntake, sub.ID, submitterID, map[string]string{"anonymous_id": sub.AnonymousID})
			return sub, nil
		}
		if !errors.Is(err, ErrDuplicateAnonymousID) {
			// the blob has no record pointing at it; remove it
			_ = s.blobs.Delete(key)
			return Submission{}, err
		}
	}
	_ = s.blobs.Delete(key)
	return Submission{}, storageErr("could not allocate a unique anonymous identifier")
}

// GetPhase answers "can this submission still change, and until when". The
// grace quota counts only replacements timestamped inside the grace window.
func (s *Service) GetPhase(ctx context.Context, submissionID string) (phase.Status, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return phase.Status{}, err
	}
	contest, err := s.store.GetContest(ctx, sub.ContestID)
	if err != nil {
		return phase.Status{}, err
	}
	used, err := s.graceModifications(ctx, contest, submissionID)
	if err != nil {
		return phase.Status{}, err
	}
	return phase.Compute(contest.Window(), s.now(), used), nil
}

// Replace swaps the submission's artifact for a new one. Only the owner
// may replace; phase and grace quota decide whether it is allowed. The old
// artifact is removed from blob storage only after the record commits.
func (s *Service) Replace(ctx context.Context, submissionID, actorID string, newArtifact io.Reader, filename, reason string) error {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.SubmitterID != actorID {
		return ErrUnauthorized
	}
	contest, err := s.store.GetContest(ctx, sub.ContestID)
	if err != nil {
		return err
	}
	used, err := s.graceModifications(ctx, contest, submissionID)
	if err != nil {
		return err
	}
	now := s.now()
	st := phase.Compute(contest.Window(), now, used)
	if !st.CanModify {
		switch st.Phase {
		case phase.PhaseGrace:
			return forbidden("grace period: modification quota exhausted")
		default:
			return forbidden("submissions are locked since " + st.Deadline.Format(time.RFC3339))
		}
	}
	if newArtifact == nil {
		return ErrInvalidArtifact
	}
	key, err := s.storeArtifact(sub.ContestID, filename, newArtifact)
	if err != nil {
		return err
	}
	sealed, err := s.vault.Seal([]byte(key))
	if err != nil {
		return storageErr("seal: " + err.Error())
	}
	rec := ModificationRecord{
		SubmissionID: submissionID,
		ActorID:      actorID,
		PriorRef:     sub.SealedRef,
		NewRef:       sealed,
		Reason:       reason,
		At:           now,
	}
	var quota *GraceQuota
	if st.Phase == phase.PhaseGrace {
		quota = &GraceQuota{
			Start: contest.ClosesAt,
			End:   contest.ClosesAt.Add(phase.GracePeriod),
			Max:   phase.MaxGraceModifications,
		}
	}
	if err := s.store.ReplaceArtifact(ctx, rec, quota); err != nil {
		// clean up the orphaned new blob; the old one stays authoritative
		_ = s.blobs.Delete(key)
		return err
	}
	if old, err := s.vault.Open(sub.SealedRef); err == nil {
		_ = s.blobs.Delete(string(old))
	}
	s.record(ctx, audit.TypeReplace, submissionID, actorID, map[string]string{"reason": reason})
	return nil
}

// Attribute assigns (or reassigns) a submission to a grader. Reassignment
// discards any correction left by the previous grader; that policy is
// deliberate, not emergent.
func (s *Service) Attribute(ctx context.Context, submissionID, graderID, adminID string) error {
	role, err := s.store.GetUserRole(ctx, graderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidGraderRole
		}
		return err
	}
	if role != RoleGrader {
		return ErrInvalidGraderRole
	}
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.Status == StatusFinalized {
		return ErrAlreadyFinalized
	}
	a := Attribution{SubmissionID: submissionID, GraderID: graderID, AssignedAt: s.now()}
	if err := s.store.UpsertAttribution(ctx, a); err != nil {
		return err
	}
	s.record(ctx, audit.TypeAttribute, submissionID, adminID, map[string]string{"grader_id": graderID})
	return nil
}

// SubmitCorrection records a grader's per-criterion scores, computes the
// normalized grade and moves the submission to review_submitted.
// Re-submission before validation overwrites the prior correction.
func (s *Service) SubmitCorrection(ctx context.Context, submissionID, graderID string, entries map[string]CriterionScore, comment string) (float64, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return 0, err
	}
	if sub.Status == StatusFinalized {
		return 0, ErrAlreadyFinalized
	}
	attr, err := s.store.GetAttribution(ctx, submissionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrNotAttributed
		}
		return 0, err
	}
	if attr.GraderID != graderID {
		return 0, ErrNotAttributed
	}
	contest, err := s.store.GetContest(ctx, sub.ContestID)
	if err != nil {
		return 0, err
	}
	graded, err := checkEntries(contest, entries)
	if err != nil {
		return 0, err
	}
	score := grading.Aggregate(graded)
	c := Correction{
		SubmissionID: submissionID,
		GraderID:     graderID,
		Entries:      entries,
		Comment:      comment,
		Score:        score,
		SubmittedAt:  s.now(),
	}
	if err := s.store.UpsertCorrection(ctx, c); err != nil {
		return 0, err
	}
	s.record(ctx, audit.TypeCorrectionSubmit, submissionID, graderID, map[string]string{"score": fmt.Sprintf("%.2f", score)})
	return score, nil
}

// Validate finalizes a correction. The score is recomputed from the stored
// entries as a defense against stale client data, the validator and
// timestamp are stamped, the submission becomes finalized, and the
// submitter is notified that a result is available.
func (s *Service) Validate(ctx context.Context, correctionID, adminID, comment string) error {
	c, err := s.store.GetCorrection(ctx, correctionID)
	if err != nil {
		return err
	}
	sub, err := s.store.GetSubmission(ctx, c.SubmissionID)
	if err != nil {
		return err
	}
	contest, err := s.store.GetContest(ctx, sub.ContestID)
	if err != nil {
		return err
	}
	graded, err := checkEntries(contest, c.Entries)
	if err != nil {
		return err
	}
	now := s.now()
	c.Score = grading.Aggregate(graded)
	c.ValidatedAt = &now
	c.ValidatorID = adminID
	c.AdminComment = comment
	n := Notification{
		UserID:       sub.SubmitterID,
		Kind:         NotifyResultAvailable,
		SubmissionID: sub.ID,
		Message:      fmt.Sprintf("result available for %s", sub.AnonymousID),
		CreatedAt:    now,
	}
	if err := s.store.FinalizeCorrection(ctx, c, n); err != nil {
		return err
	}
	s.record(ctx, audit.TypeCorrectionApprove, sub.ID, adminID, map[string]string{"score": fmt.Sprintf("%.2f", c.Score)})
	return nil
}

// Reject bounces a correction back to its grader. The comment is mandatory
// so the grader knows what to redo. The correction is archived into the
// rejection log with its score snapshot, then deleted; the submission
// reverts to under_review and the grader is notified. A validated
// correction is release-ready and can no longer be bounced.
func (s *Service) Reject(ctx context.Context, correctionID, adminID, comment string) error {
	if comment == "" {
		return ErrCommentRequired
	}
	c, err := s.store.GetCorrection(ctx, correctionID)
	if err != nil {
		return err
	}
	sub, err := s.store.GetSubmission(ctx, c.SubmissionID)
	if err != nil {
		return err
	}
	if c.ValidatedAt != nil || sub.Status == StatusFinalized {
		return ErrAlreadyFinalized
	}
	now := s.now()
	rec := RejectionRecord{
		SubmissionID: c.SubmissionID,
		GraderID:     c.GraderID,
		AdminID:      adminID,
		Comment:      comment,
		Entries:      c.Entries,
		Score:        c.Score,
		At:           now,
	}
	n := Notification{
		UserID:       c.GraderID,
		Kind:         NotifyCorrectionRejected,
		SubmissionID: sub.ID,
		Message:      fmt.Sprintf("correction for %s rejected: %s", sub.AnonymousID, comment),
		CreatedAt:    now,
	}
	if err := s.store.RejectCorrection(ctx, rec, n); err != nil {
		return err
	}
	s.record(ctx, audit.TypeCorrectionReject, sub.ID, adminID, map[string]string{"grader_id": c.GraderID})
	return nil
}

// Reassign hands a submission to a different grader, discarding the prior
// grader's correction.
func (s *Service) Reassign(ctx context.Context, submissionID, newGraderID, adminID string) error {
	return s.Attribute(ctx, submissionID, newGraderID, adminID)
}

// RemoveAttribution takes a submission away from its grader and resets it
// to pending.
func (s *Service) RemoveAttribution(ctx context.Context, submissionID, adminID string) error {
	if err := s.store.RemoveAttribution(ctx, submissionID); err != nil {
		return err
	}
	s.record(ctx, audit.TypeDetach, submissionID, adminID, nil)
	return nil
}

// DetachGrader strips every attribution and unvalidated correction from a
// grader, resetting the affected submissions to pending. Run before a
// grader account is removed.
func (s *Service) DetachGrader(ctx context.Context, graderID, adminID string) ([]string, error) {
	affected, err := s.store.DetachGrader(ctx, graderID)
	if err != nil {
		return nil, err
	}
	for _, id := range affected {
		s.record(ctx, audit.TypeDetach, id, adminID, map[string]string{"grader_id": graderID})
	}
	return affected, nil
}

// Purge is the explicit administrative delete: the submission and every
// dependent record go, along with the artifact bytes.
func (s *Service) Purge(ctx context.Context, submissionID, adminID string) error {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSubmission(ctx, submissionID); err != nil {
		return err
	}
	if key, err := s.vault.Open(sub.SealedRef); err == nil {
		_ = s.blobs.Delete(string(key))
	}
	s.record(ctx, audit.TypePurge, submissionID, adminID, nil)
	return nil
}

// OpenArtifact hands back the artifact bytes for a submission. The sealed
// reference never leaves the vault's custody; a decryption failure means
// data corruption and surfaces as a storage error.
func (s *Service) OpenArtifact(ctx context.Context, submissionID string) (io.ReadCloser, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	key, err := s.vault.Open(sub.SealedRef)
	if err != nil {
		return nil, storageErr("open sealed reference: " + err.Error())
	}
	rc, err := s.blobs.Get(string(key))
	if err != nil {
		return nil, storageErr("artifact missing: " + err.Error())
	}
	return rc, nil
}

// Store exposes read paths (contests, submissions, notifications) to the
// HTTP layer without widening the service surface.
func (s *Service) Store() Store { return s.store }

func (s *Service) graceModifications(ctx context.Context, contest Contest, submissionID string) (int, error) {
	mods, err := s.store.ListModifications(ctx, submissionID)
	if err != nil {
		return 0, err
	}
	times := make([]time.Time, len(mods))
	for i, m := range mods {
		times[i] = m.At
	}
	return phase.CountInGrace(contest.Window(), times), nil
}

func (s *Service) storeArtifact(contestID, filename string, r io.Reader) (string, error) {
	ext := path.Ext(filename)
	key := path.Join("artifacts", contestID, uuid.NewString()+ext)
	if _, err := s.blobs.Put(key, r); err != nil {
		return "", storageErr("store artifact: " + err.Error())
	}
	return key, nil
}

func (s *Service) record(ctx context.Context, typ, key, actorID string, data map[string]string) {
	if s.trail == nil {
		return
	}
	payload := ""
	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			payload = string(b)
		}
	}
	_ = s.trail.Append(ctx, audit.Event{Type: typ, Key: key, ActorID: actorID, DataJSON: payload})
}

// checkEntries validates a grader's raw entries against the contest grid
// and converts them into aggregation entries carrying the grid's weights.
func checkEntries(contest Contest, entries map[string]CriterionScore) ([]grading.Entry, error) {
	out := make([]grading.Entry, 0, len(entries))
	for id, e := range entries {
		crit, ok := contest.Criterion(id)
		if !ok {
			return nil, validationFailed(id, "not in the contest grid")
		}
		if crit.Kind != KindNumeric {
			continue // text/choice criteria carry comments, not points
		}
		if e.Max != crit.Max {
			return nil, validationFailed(id, fmt.Sprintf("max %.2f does not match the grid (%.2f)", e.Max, crit.Max))
		}
		if e.Score < 0 || e.Score > crit.Max {
			return nil, validationFailed(id, fmt.Sprintf("score %.2f outside [0, %.2f]", e.Score, crit.Max))
		}
		out = append(out, grading.Entry{Score: e.Score, Max: crit.Max, Weight: crit.Weight})
	}
	for _, crit := range contest.Criteria {
		if crit.Required {
			if _, ok := entries[crit.ID]; !ok {
				return nil, validationFailed(crit.ID, "required criterion missing")
			}
		}
	}
	if ok, _ := grading.Validate(out); !ok {
		return nil, &Error{Kind: ErrValidationFailed.Kind, Reason: "no scorable entries"}
	}
	return out, nil
}

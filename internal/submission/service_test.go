package submission

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blindgrade/blindgrade/internal/audit"
	"github.com/blindgrade/blindgrade/internal/phase"
	"github.com/blindgrade/blindgrade/internal/storage"
	"github.com/blindgrade/blindgrade/internal/vault"
)

var (
	t0      = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	closeT0 = t0.Add(time.Hour)
)

type fixture struct {
	svc   *Service
	store *MemoryStore
	trail *audit.Memory
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v, err := vault.New([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210"))
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	blobs, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	store := NewMemoryStore()
	trail := audit.NewMemory()
	f := &fixture{svc: NewService(store, v, blobs, trail, "COPY"), store: store, trail: trail, clock: t0}
	f.svc.now = func() time.Time { return f.clock }

	store.SetUserRole("alice", "submitter")
	store.SetUserRole("grader1", RoleGrader)
	store.SetUserRole("grader2", RoleGrader)
	store.SetUserRole("admin", "admin")

	c := Contest{
		ID:       "c1",
		Title:    "Spring Olympiad",
		OpensAt:  t0.Add(-time.Hour),
		ClosesAt: closeT0,
		Criteria: []Criterion{
			{ID: "style", Label: "Style", Kind: KindNumeric, Max: 10, Weight: 1, Required: true},
			{ID: "rigor", Label: "Rigor", Kind: KindNumeric, Max: 10, Weight: 1, Required: true},
			{ID: "notes", Label: "Notes", Kind: KindText},
		},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("contest: %v", err)
	}
	if err := store.PutContest(context.Background(), c); err != nil {
		t.Fatalf("put contest: %v", err)
	}
	return f
}

func (f *fixture) intake(t *testing.T, submitter string) Submission {
	t.Helper()
	sub, err := f.svc.Intake(context.Background(), "c1", submitter, strings.NewReader("solution v1"), "copy.pdf")
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	return sub
}

func entries1520() map[string]CriterionScore {
	// 7/10 + 8/10 -> 15/20
	return map[string]CriterionScore{
		"style": {Score: 7, Max: 10},
		"rigor": {Score: 8, Max: 10},
		"notes": {Comment: "solid work"},
	}
}

func TestIntakeAssignsAnonymousIdentity(t *testing.T) {
	f := newFixture(t)
	sub := f.intake(t, "alice")
	if sub.Status != StatusPending {
		t.Errorf("status = %q, want pending", sub.Status)
	}
	if !strings.HasPrefix(sub.AnonymousID, "COPY-2026-") {
		t.Errorf("anonymous id %q missing prefix/year", sub.AnonymousID)
	}
	if sub.SealedRef == "" || strings.Contains(sub.SealedRef, "artifacts/") {
		t.Errorf("sealed ref leaks the storage key: %q", sub.SealedRef)
	}
	rc, err := f.svc.OpenArtifact(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("OpenArtifact: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "solution v1" {
		t.Errorf("artifact = %q, want original bytes", got)
	}
}

func TestIntakeRejectedWhenLocked(t *testing.T) {
	f := newFixture(t)
	f.clock = closeT0.Add(phase.GracePeriod + time.Minute)
	_, err := f.svc.Intake(context.Background(), "c1", "alice", strings.NewReader("late"), "copy.pdf")
	if !errors.Is(err, ErrContestClosed) {
		t.Fatalf("Intake after lock = %v, want ErrContestClosed", err)
	}
}

func TestIntakeRejectsNilArtifact(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Intake(context.Background(), "c1", "alice", nil, ""); !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("Intake(nil) = %v, want ErrInvalidArtifact", err)
	}
}

func TestReplaceOwnershipCheckedFirst(t *testing.T) {
	f := newFixture(t)
	sub := f.intake(t, "alice")
	f.clock = closeT0.Add(phase.GracePeriod + time.Hour) // locked, but owner check wins
	err := f.svc.Replace(context.Background(), sub.ID, "mallory", strings.NewReader("x"), "copy.pdf", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Replace by non-owner = %v, want ErrUnauthorized", err)
	}
}

// Scenario C: replacement is unlimited while open, once during grace, never
// after lock.
func TestReplaceAcrossPhases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")

	f.clock = t0.Add(30 * time.Minute)
	if err := f.svc.Replace(ctx, sub.ID, "alice", strings.NewReader("v2"), "copy.pdf", "typo"); err != nil {
		t.Fatalf("replace during submission phase: %v", err)
	}

	f.clock = closeT0.Add(10 * time.Minute) // grace
	if err := f.svc.Replace(ctx, sub.ID, "alice", strings.NewReader("v3"), "copy.pdf", "last fix"); err != nil {
		t.Fatalf("first grace replace: %v", err)
	}
	err := f.svc.Replace(ctx, sub.ID, "alice", strings.NewReader("v4"), "copy.pdf", "")
	if !errors.Is(err, ErrModificationForbidden) {
		t.Fatalf("second grace replace = %v, want ErrModificationForbidden", err)
	}
	if !strings.Contains(err.Error(), "quota") {
		t.Errorf("error %q should explain the grace quota", err)
	}

	f.clock = closeT0.Add(phase.GracePeriod + time.Minute)
	err = f.svc.Replace(ctx, sub.ID, "alice", strings.NewReader("v5"), "copy.pdf", "")
	if !errors.Is(err, ErrModificationForbidden) {
		t.Fatalf("replace when locked = %v, want ErrModificationForbidden", err)
	}

	// the open-phase replacement must not have consumed grace quota:
	// history has 2 records but only 1 inside the grace window
	mods, _ := f.store.ListModifications(ctx, sub.ID)
	if len(mods) != 2 {
		t.Fatalf("modification log = %d records, want 2", len(mods))
	}

	rc, err := f.svc.OpenArtifact(ctx, sub.ID)
	if err != nil {
		t.Fatalf("OpenArtifact: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != "v3" {
		t.Errorf("artifact = %q, want latest accepted replacement v3", got)
	}
}

func TestGetPhaseReportsQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")

	st, err := f.svc.GetPhase(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetPhase: %v", err)
	}
	if st.Phase != phase.PhaseSubmission || !st.CanModify || st.ModificationsRemaining != -1 {
		t.Errorf("open phase status = %+v", st)
	}

	f.clock = closeT0.Add(time.Minute)
	st, _ = f.svc.GetPhase(ctx, sub.ID)
	if st.Phase != phase.PhaseGrace || !st.CanModify || st.ModificationsRemaining != 1 {
		t.Errorf("grace status = %+v, want 1 remaining", st)
	}

	if err := f.svc.Replace(ctx, sub.ID, "alice", strings.NewReader("v2"), "copy.pdf", ""); err != nil {
		t.Fatalf("grace replace: %v", err)
	}
	st, _ = f.svc.GetPhase(ctx, sub.ID)
	if st.CanModify || st.ModificationsRemaining != 0 {
		t.Errorf("post-replace grace status = %+v, want exhausted", st)
	}
}

func TestAttributeRequiresGraderRole(t *testing.T) {
	f := newFixture(t)
	sub := f.intake(t, "alice")
	ctx := context.Background()
	if err := f.svc.Attribute(ctx, sub.ID, "alice", "admin"); !errors.Is(err, ErrInvalidGraderRole) {
		t.Fatalf("Attribute(submitter) = %v, want ErrInvalidGraderRole", err)
	}
	if err := f.svc.Attribute(ctx, sub.ID, "nobody", "admin"); !errors.Is(err, ErrInvalidGraderRole) {
		t.Fatalf("Attribute(unknown) = %v, want ErrInvalidGraderRole", err)
	}
}

// Scenario A: intake -> attribute -> submitCorrection(15/20) -> validate.
func TestLifecycleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")

	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	got, _ := f.store.GetSubmission(ctx, sub.ID)
	if got.Status != StatusUnderReview {
		t.Fatalf("status after attribute = %q, want under_review", got.Status)
	}

	score, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), "good copy")
	if err != nil {
		t.Fatalf("SubmitCorrection: %v", err)
	}
	if score != 15 {
		t.Fatalf("score = %v, want 15", score)
	}
	got, _ = f.store.GetSubmission(ctx, sub.ID)
	if got.Status != StatusReviewSubmitted {
		t.Fatalf("status after correction = %q, want review_submitted", got.Status)
	}

	c, err := f.store.GetCorrectionFor(ctx, sub.ID, "grader1")
	if err != nil {
		t.Fatalf("GetCorrectionFor: %v", err)
	}
	if err := f.svc.Validate(ctx, c.ID, "admin", "checked"); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	got, _ = f.store.GetSubmission(ctx, sub.ID)
	if got.Status != StatusFinalized {
		t.Errorf("status after validate = %q, want finalized", got.Status)
	}
	c, _ = f.store.GetCorrection(ctx, c.ID)
	if c.ValidatedAt == nil || c.ValidatorID != "admin" {
		t.Errorf("correction not stamped: %+v", c)
	}
	if c.Score != 15 {
		t.Errorf("recomputed score = %v, want 15", c.Score)
	}

	notifs, _ := f.store.ListNotifications(ctx, "alice", true)
	if len(notifs) != 1 || notifs[0].Kind != NotifyResultAvailable {
		t.Errorf("submitter notifications = %+v, want one result_available", notifs)
	}
}

// Scenario B: rejection archives the score snapshot, deletes the
// correction and lets the grader resubmit.
func TestLifecycleRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), ""); err != nil {
		t.Fatalf("SubmitCorrection: %v", err)
	}
	c, _ := f.store.GetCorrectionFor(ctx, sub.ID, "grader1")

	if err := f.svc.Reject(ctx, c.ID, "admin", ""); !errors.Is(err, ErrCommentRequired) {
		t.Fatalf("Reject without comment = %v, want ErrCommentRequired", err)
	}
	if err := f.svc.Reject(ctx, c.ID, "admin", "redo criterion 2"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	got, _ := f.store.GetSubmission(ctx, sub.ID)
	if got.Status != StatusUnderReview {
		t.Errorf("status after reject = %q, want under_review", got.Status)
	}
	if _, err := f.store.GetCorrection(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Error("correction should be deleted on rejection")
	}
	rejs, _ := f.store.ListRejections(ctx, sub.ID)
	if len(rejs) != 1 || rejs[0].Score != 15 || rejs[0].Comment != "redo criterion 2" {
		t.Errorf("rejection log = %+v, want score snapshot 15", rejs)
	}
	notifs, _ := f.store.ListNotifications(ctx, "grader1", true)
	if len(notifs) != 1 || notifs[0].Kind != NotifyCorrectionRejected {
		t.Errorf("grader notifications = %+v, want one correction_rejected", notifs)
	}

	// grader can resubmit after the bounce
	score, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", map[string]CriterionScore{
		"style": {Score: 9, Max: 10},
		"rigor": {Score: 9, Max: 10},
	}, "second pass")
	if err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	if score != 18 {
		t.Errorf("resubmitted score = %v, want 18", score)
	}
}

func TestSubmitCorrectionGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")

	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), ""); !errors.Is(err, ErrNotAttributed) {
		t.Fatalf("correction without attribution = %v, want ErrNotAttributed", err)
	}
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader2", entries1520(), ""); !errors.Is(err, ErrNotAttributed) {
		t.Fatalf("correction by wrong grader = %v, want ErrNotAttributed", err)
	}

	bad := map[string]CriterionScore{
		"style": {Score: 12, Max: 10},
		"rigor": {Score: 8, Max: 10},
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", bad, ""); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("out-of-bound score = %v, want ErrValidationFailed", err)
	}
	missing := map[string]CriterionScore{"style": {Score: 8, Max: 10}}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", missing, ""); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("missing required criterion = %v, want ErrValidationFailed", err)
	}
	unknown := map[string]CriterionScore{
		"style": {Score: 8, Max: 10},
		"rigor": {Score: 8, Max: 10},
		"bogus": {Score: 1, Max: 1},
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", unknown, ""); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("unknown criterion = %v, want ErrValidationFailed", err)
	}

	// finalize, then corrections are closed
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), ""); err != nil {
		t.Fatal(err)
	}
	c, _ := f.store.GetCorrectionFor(ctx, sub.ID, "grader1")
	if err := f.svc.Validate(ctx, c.ID, "admin", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), ""); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("correction after finalize = %v, want ErrAlreadyFinalized", err)
	}
}

func TestResubmissionOverwritesBeforeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), "first"); err != nil {
		t.Fatal(err)
	}
	score, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", map[string]CriterionScore{
		"style": {Score: 10, Max: 10},
		"rigor": {Score: 10, Max: 10},
	}, "revised")
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if score != 20 {
		t.Errorf("score = %v, want 20", score)
	}
	c, _ := f.store.GetCorrectionFor(ctx, sub.ID, "grader1")
	if c.Comment != "revised" || c.Score != 20 {
		t.Errorf("correction not overwritten: %+v", c)
	}
}

func TestReassignDiscardsPriorCorrection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), ""); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Reassign(ctx, sub.ID, "grader2", "admin"); err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if _, err := f.store.GetCorrectionFor(ctx, sub.ID, "grader1"); !errors.Is(err, ErrNotFound) {
		t.Error("prior grader's correction should be discarded on reassignment")
	}
	a, _ := f.store.GetAttribution(ctx, sub.ID)
	if a.GraderID != "grader2" {
		t.Errorf("attribution grader = %q, want grader2", a.GraderID)
	}
	got, _ := f.store.GetSubmission(ctx, sub.ID)
	if got.Status != StatusUnderReview {
		t.Errorf("status after reassign = %q, want under_review", got.Status)
	}
}

func TestDetachGraderResetsSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s1 := f.intake(t, "alice")
	s2 := f.intake(t, "alice")
	for _, id := range []string{s1.ID, s2.ID} {
		if err := f.svc.Attribute(ctx, id, "grader1", "admin"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.svc.SubmitCorrection(ctx, s1.ID, "grader1", entries1520(), ""); err != nil {
		t.Fatal(err)
	}
	affected, err := f.svc.DetachGrader(ctx, "grader1", "admin")
	if err != nil {
		t.Fatalf("DetachGrader: %v", err)
	}
	if len(affected) != 2 {
		t.Fatalf("affected = %v, want both submissions", affected)
	}
	for _, id := range []string{s1.ID, s2.ID} {
		got, _ := f.store.GetSubmission(ctx, id)
		if got.Status != StatusPending {
			t.Errorf("submission %s status = %q, want pending", id, got.Status)
		}
		if _, err := f.store.GetAttribution(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("submission %s still attributed", id)
		}
	}
}

func TestPurgeRemovesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Purge(ctx, sub.ID, "admin"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := f.store.GetSubmission(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Error("submission should be gone after purge")
	}
	if _, err := f.svc.OpenArtifact(ctx, sub.ID); err == nil {
		t.Error("artifact should be unreachable after purge")
	}
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), ""); err != nil {
		t.Fatal(err)
	}
	events := f.trail.Events()
	want := []string{audit.TypeIntake, audit.TypeAttribute, audit.TypeCorrectionSubmit}
	if len(events) != len(want) {
		t.Fatalf("trail = %d events, want %d", len(events), len(want))
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Errorf("event %d type = %q, want %q", i, events[i].Type, typ)
		}
	}
}

func TestContestValidate(t *testing.T) {
	base := Contest{Title: "t", OpensAt: t0, ClosesAt: t0.Add(time.Hour)}

	c := base
	c.ClosesAt = t0.Add(-time.Hour)
	if err := c.Validate(); err == nil {
		t.Error("accepted close before open")
	}

	c = base
	c.Criteria = []Criterion{{ID: "a", Kind: KindNumeric, Max: 0}}
	if err := c.Validate(); err == nil {
		t.Error("accepted numeric criterion without max")
	}

	c = base
	c.Criteria = []Criterion{{ID: "a", Kind: KindChoice}}
	if err := c.Validate(); err == nil {
		t.Error("accepted choice criterion without options")
	}

	c = base
	c.Criteria = []Criterion{{ID: "a", Kind: KindText}, {ID: "a", Kind: KindText}}
	if err := c.Validate(); err == nil {
		t.Error("accepted duplicate criterion ids")
	}

	c = base
	c.Criteria = []Criterion{
		{ID: "a", Kind: KindNumeric, Max: 10, Weight: 2},
		{ID: "b", Kind: KindText},
		{ID: "c", Kind: KindChoice, Options: []string{"yes", "no"}},
	}
	if err := c.Validate(); err != nil {
		t.Errorf("rejected a valid grid: %v", err)
	}
}

// A validated correction is release-ready: rejecting it must fail and
// leave the finalized submission untouched.
func TestRejectRefusedAfterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), "good copy"); err != nil {
		t.Fatalf("SubmitCorrection: %v", err)
	}
	c, _ := f.store.GetCorrectionFor(ctx, sub.ID, "grader1")
	if err := f.svc.Validate(ctx, c.ID, "admin", "checked"); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if err := f.svc.Reject(ctx, c.ID, "admin", "changed my mind"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("Reject after validate = %v, want ErrAlreadyFinalized", err)
	}
	got, _ := f.store.GetSubmission(ctx, sub.ID)
	if got.Status != StatusFinalized {
		t.Errorf("status = %q, want finalized to survive the reject attempt", got.Status)
	}
	kept, err := f.store.GetCorrection(ctx, c.ID)
	if err != nil || kept.ValidatedAt == nil {
		t.Errorf("validated correction must survive: %+v, %v", kept, err)
	}
	if rejs, _ := f.store.ListRejections(ctx, sub.ID); len(rejs) != 0 {
		t.Errorf("rejection log = %+v, want empty", rejs)
	}

	// the store enforces the same invariant on its own
	err = f.store.RejectCorrection(ctx, RejectionRecord{
		SubmissionID: sub.ID, GraderID: "grader1", AdminID: "admin",
		Comment: "bypass", Entries: kept.Entries, Score: kept.Score, At: f.clock,
	}, Notification{UserID: "grader1", Kind: NotifyCorrectionRejected, SubmissionID: sub.ID})
	if !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("store RejectCorrection after validate = %v, want ErrAlreadyFinalized", err)
	}
}

// Re-attributing the grader who already holds the submission is a no-op:
// their submitted review must not drop back to under_review.
func TestReattributeSameGraderKeepsSubmittedReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.intake(t, "alice")
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", entries1520(), ""); err != nil {
		t.Fatalf("SubmitCorrection: %v", err)
	}
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatalf("re-attribute same grader: %v", err)
	}
	got, _ := f.store.GetSubmission(ctx, sub.ID)
	if got.Status != StatusReviewSubmitted {
		t.Errorf("status = %q, want review_submitted to survive re-attribution", got.Status)
	}
	if _, err := f.store.GetCorrectionFor(ctx, sub.ID, "grader1"); err != nil {
		t.Errorf("correction must survive re-attribution to the same grader: %v", err)
	}
}

// Required is not a numeric-only flag: a required text criterion must
// appear in the entries too.
func TestRequiredTextCriterionEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := Contest{
		ID:       "c2",
		Title:    "Essay Round",
		OpensAt:  t0.Add(-time.Hour),
		ClosesAt: closeT0,
		Criteria: []Criterion{
			{ID: "style", Label: "Style", Kind: KindNumeric, Max: 10, Weight: 1, Required: true},
			{ID: "summary", Label: "Summary", Kind: KindText, Required: true},
		},
	}
	if err := f.store.PutContest(ctx, c); err != nil {
		t.Fatalf("put contest: %v", err)
	}
	sub, err := f.svc.Intake(ctx, "c2", "alice", strings.NewReader("essay"), "essay.pdf")
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
	if err := f.svc.Attribute(ctx, sub.ID, "grader1", "admin"); err != nil {
		t.Fatalf("Attribute: %v", err)
	}

	_, err = f.svc.SubmitCorrection(ctx, sub.ID, "grader1", map[string]CriterionScore{
		"style": {Score: 8, Max: 10},
	}, "")
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("missing required text criterion = %v, want ErrValidationFailed", err)
	}

	if _, err := f.svc.SubmitCorrection(ctx, sub.ID, "grader1", map[string]CriterionScore{
		"style":   {Score: 8, Max: 10},
		"summary": {Comment: "well argued"},
	}, ""); err != nil {
		t.Fatalf("correction with required text present: %v", err)
	}
}

type insertFailStore struct {
	*MemoryStore
}

func (s *insertFailStore) InsertSubmission(context.Context, Submission) error {
	return storageErr("disk full")
}

// A failed insert must not leave the already-written artifact behind.
func TestIntakeCleansUpBlobOnInsertFailure(t *testing.T) {
	v, err := vault.New([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210"))
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	dir := t.TempDir()
	blobs, err := storage.NewFSStore(dir)
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	mem := NewMemoryStore()
	svc := NewService(&insertFailStore{MemoryStore: mem}, v, blobs, audit.NewMemory(), "COPY")
	svc.now = func() time.Time { return t0 }

	ctx := context.Background()
	c := Contest{
		ID: "c1", Title: "Spring Olympiad",
		OpensAt: t0.Add(-time.Hour), ClosesAt: closeT0,
		Criteria: []Criterion{{ID: "style", Label: "Style", Kind: KindNumeric, Max: 10, Weight: 1}},
	}
	if err := mem.PutContest(ctx, c); err != nil {
		t.Fatalf("put contest: %v", err)
	}

	if _, err := svc.Intake(ctx, "c1", "alice", strings.NewReader("solution"), "copy.pdf"); err == nil {
		t.Fatal("Intake should fail when the store cannot insert")
	}
	left, _ := os.ReadDir(filepath.Join(dir, "artifacts", "c1"))
	if len(left) != 0 {
		t.Errorf("orphaned blobs after failed intake: %d", len(left))
	}
}

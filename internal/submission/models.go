package submission

import (
	"fmt"
	"time"

	"github.com/blindgrade/blindgrade/internal/phase"
)

// Status is the internal workflow state of a submission. Display labels
// are the presentation layer's business; these values are the wire format
// downstream UIs read.
type Status string

const (
	StatusPending         Status = "pending"
	StatusUnderReview     Status = "under_review"
	StatusReviewSubmitted Status = "review_submitted"
	StatusFinalized       Status = "finalized"
)

type CriterionKind string

const (
	KindNumeric CriterionKind = "numeric"
	KindText    CriterionKind = "text"
	KindChoice  CriterionKind = "choice"
)

// Criterion is one dimension of a contest's grading grid. Max and Weight
// are meaningful for numeric criteria only; Options for choice only.
type Criterion struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Kind     CriterionKind `json:"kind"`
	Max      float64       `json:"max,omitempty"`
	Weight   float64       `json:"weight,omitempty"`
	Required bool          `json:"required,omitempty"`
	Options  []string      `json:"options,omitempty"`
}

func (c Criterion) validate() error {
	if c.ID == "" {
		return fmt.Errorf("criterion missing id")
	}
	switch c.Kind {
	case KindNumeric:
		if c.Max <= 0 {
			return fmt.Errorf("criterion %s: numeric max must be positive", c.ID)
		}
		if c.Weight < 0 {
			return fmt.Errorf("criterion %s: negative weight", c.ID)
		}
	case KindText:
	case KindChoice:
		if len(c.Options) == 0 {
			return fmt.Errorf("criterion %s: choice without options", c.ID)
		}
	default:
		return fmt.Errorf("criterion %s: unknown kind %q", c.ID, c.Kind)
	}
	return nil
}

type Contest struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	OpensAt   time.Time   `json:"opens_at"`
	ClosesAt  time.Time   `json:"closes_at"`
	Criteria  []Criterion `json:"criteria"`
	CreatedAt time.Time   `json:"created_at"`
}

// Validate is run once at contest save; lifecycle operations trust a stored
// contest.
func (c Contest) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("contest missing title")
	}
	if !c.OpensAt.Before(c.ClosesAt) {
		return fmt.Errorf("contest window: open must precede close")
	}
	seen := map[string]bool{}
	for _, cr := range c.Criteria {
		if err := cr.validate(); err != nil {
			return err
		}
		if seen[cr.ID] {
			return fmt.Errorf("criterion %s: duplicate id", cr.ID)
		}
		seen[cr.ID] = true
	}
	return nil
}

func (c Contest) Window() phase.Window {
	return phase.Window{OpensAt: c.OpensAt, ClosesAt: c.ClosesAt}
}

// Criterion returns the grid entry with the given id, if any.
func (c Contest) Criterion(id string) (Criterion, bool) {
	for _, cr := range c.Criteria {
		if cr.ID == id {
			return cr, true
		}
	}
	return Criterion{}, false
}

// Submission is an anonymized copy. SealedRef is opaque to every reader
// except the vault; AnonymousID never changes once assigned.
type Submission struct {
	ID          string    `json:"id"`
	ContestID   string    `json:"contest_id"`
	SubmitterID string    `json:"submitter_id"`
	AnonymousID string    `json:"anonymous_id"`
	SealedRef   string    `json:"sealed_ref"`
	DepositedAt time.Time `json:"deposited_at"`
	Status      Status    `json:"status"`
}

// Attribution assigns a submission to a grader. At most one active
// attribution per submission; reassignment replaces the row.
type Attribution struct {
	SubmissionID string    `json:"submission_id"`
	GraderID     string    `json:"grader_id"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// CriterionScore is a grader's raw result for one criterion.
type CriterionScore struct {
	Score   float64 `json:"score"`
	Max     float64 `json:"max"`
	Comment string  `json:"comment,omitempty"`
}

type Correction struct {
	ID           string                    `json:"id"`
	SubmissionID string                    `json:"submission_id"`
	GraderID     string                    `json:"grader_id"`
	Entries      map[string]CriterionScore `json:"entries"`
	Comment      string                    `json:"comment,omitempty"`
	Score        float64                   `json:"score"`
	SubmittedAt  time.Time                 `json:"submitted_at"`
	ValidatedAt  *time.Time                `json:"validated_at,omitempty"`
	ValidatorID  string                    `json:"validator_id,omitempty"`
	AdminComment string                    `json:"admin_comment,omitempty"`
}

// ModificationRecord is the append-only audit of every accepted artifact
// replacement.
type ModificationRecord struct {
	SubmissionID string    `json:"submission_id"`
	ActorID      string    `json:"actor_id"`
	PriorRef     string    `json:"prior_ref"`
	NewRef       string    `json:"new_ref"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

// RejectionRecord snapshots a bounced correction for audit; the live
// Correction row is deleted so the grader can resubmit cleanly.
type RejectionRecord struct {
	SubmissionID string                    `json:"submission_id"`
	GraderID     string                    `json:"grader_id"`
	AdminID      string                    `json:"admin_id"`
	Comment      string                    `json:"comment"`
	Entries      map[string]CriterionScore `json:"entries"`
	Score        float64                   `json:"score"`
	At           time.Time                 `json:"at"`
}

// Notification kinds consumed by external display surfaces.
const (
	NotifyResultAvailable    = "result_available"
	NotifyCorrectionRejected = "correction_rejected"
)

type Notification struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Kind         string     `json:"kind"`
	SubmissionID string     `json:"submission_id"`
	Message      string     `json:"message"`
	CreatedAt    time.Time  `json:"created_at"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

// Package phase decides whether a submission may still be modified. The
// phase is never stored: it is recomputed from the contest window and the
// wall clock on every query, so it can only move forward as time advances.
package phase

import "time"

// GracePeriod is how long after the official close a submitter may still
// push one last replacement.
const GracePeriod = 30 * time.Minute

// MaxGraceModifications caps replacements during the grace window.
const MaxGraceModifications = 1

type Phase string

const (
	PhaseSubmission Phase = "submission"
	PhaseGrace      Phase = "grace"
	PhaseLocked     Phase = "locked"
)

// Window is a contest's acceptance window.
type Window struct {
	OpensAt  time.Time
	ClosesAt time.Time
}

// Status is the full answer to "can this submission change right now".
type Status struct {
	Phase                  Phase
	CanModify              bool
	ModificationsRemaining int // -1 means unlimited
	Deadline               time.Time
}

// Of returns the phase at a given instant. The close instant itself still
// belongs to the submission phase; the grace cutoff likewise belongs to
// grace.
func Of(w Window, now time.Time) Phase {
	switch {
	case !now.After(w.ClosesAt):
		return PhaseSubmission
	case !now.After(w.ClosesAt.Add(GracePeriod)):
		return PhaseGrace
	default:
		return PhaseLocked
	}
}

// Compute evaluates the window at now. graceModifications counts only the
// replacements whose timestamp falls inside the grace window; replacements
// made while submissions were open do not consume grace quota.
func Compute(w Window, now time.Time, graceModifications int) Status {
	switch Of(w, now) {
	case PhaseSubmission:
		return Status{
			Phase:                  PhaseSubmission,
			CanModify:              true,
			ModificationsRemaining: -1,
			Deadline:               w.ClosesAt,
		}
	case PhaseGrace:
		remaining := MaxGraceModifications - graceModifications
		if remaining < 0 {
			remaining = 0
		}
		return Status{
			Phase:                  PhaseGrace,
			CanModify:              remaining > 0,
			ModificationsRemaining: remaining,
			Deadline:               w.ClosesAt.Add(GracePeriod),
		}
	default:
		return Status{
			Phase:    PhaseLocked,
			Deadline: w.ClosesAt.Add(GracePeriod),
		}
	}
}

// Accepting reports whether a contest still takes brand-new submissions.
// Intake follows the same clock as replacement: anything before lock.
func Accepting(w Window, now time.Time) bool {
	return now.After(w.OpensAt) && Of(w, now) != PhaseLocked
}

// CountInGrace counts the timestamps that fall inside the grace window.
// This is the grace-quota counter: modification history from the open
// phase is deliberately excluded.
func CountInGrace(w Window, times []time.Time) int {
	n := 0
	cutoff := w.ClosesAt.Add(GracePeriod)
	for _, ts := range times {
		if ts.After(w.ClosesAt) && !ts.After(cutoff) {
			n++
		}
	}
	return n
}

package phase

import (
	"testing"
	"time"
)

var (
	open  = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	closeAt = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	win   = Window{OpensAt: open, ClosesAt: closeAt}
)

func TestPhaseBoundaries(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want Phase
	}{
		{"well before close", closeAt.Add(-time.Hour), PhaseSubmission},
		{"one second before close", closeAt.Add(-time.Second), PhaseSubmission},
		{"close instant", closeAt, PhaseSubmission},
		{"one second after close", closeAt.Add(time.Second), PhaseGrace},
		{"grace cutoff", closeAt.Add(GracePeriod), PhaseGrace},
		{"one second past grace", closeAt.Add(GracePeriod + time.Second), PhaseLocked},
		{"long after", closeAt.Add(24 * time.Hour), PhaseLocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Of(win, tc.at); got != tc.want {
				t.Errorf("Of(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestComputeSubmissionPhaseUnlimited(t *testing.T) {
	for _, used := range []int{0, 1, 50} {
		st := Compute(win, closeAt.Add(-time.Minute), used)
		if !st.CanModify {
			t.Errorf("submission phase with %d prior modifications should allow modify", used)
		}
		if st.ModificationsRemaining != -1 {
			t.Errorf("submission phase remaining = %d, want -1", st.ModificationsRemaining)
		}
		if !st.Deadline.Equal(closeAt) {
			t.Errorf("submission phase deadline = %v, want %v", st.Deadline, closeAt)
		}
	}
}

func TestComputeGraceQuota(t *testing.T) {
	at := closeAt.Add(10 * time.Minute)

	st := Compute(win, at, 0)
	if st.Phase != PhaseGrace || !st.CanModify || st.ModificationsRemaining != 1 {
		t.Errorf("grace with 0 used = %+v, want canModify with 1 remaining", st)
	}

	st = Compute(win, at, 1)
	if st.CanModify || st.ModificationsRemaining != 0 {
		t.Errorf("grace with 1 used = %+v, want quota exhausted", st)
	}

	st = Compute(win, at, 3)
	if st.CanModify || st.ModificationsRemaining != 0 {
		t.Errorf("grace with excess used = %+v, want clamped to 0", st)
	}
}

func TestComputeLocked(t *testing.T) {
	st := Compute(win, closeAt.Add(GracePeriod+time.Minute), 0)
	if st.Phase != PhaseLocked || st.CanModify {
		t.Errorf("locked = %+v, want no modification", st)
	}
}

func TestAccepting(t *testing.T) {
	cases := []struct {
		at   time.Time
		want bool
	}{
		{open.Add(-time.Minute), false},
		{open.Add(time.Minute), true},
		{closeAt.Add(time.Minute), true}, // grace still accepts
		{closeAt.Add(GracePeriod + time.Minute), false},
	}
	for _, tc := range cases {
		if got := Accepting(win, tc.at); got != tc.want {
			t.Errorf("Accepting(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
}

func TestCountInGraceIsPhaseScoped(t *testing.T) {
	times := []time.Time{
		closeAt.Add(-2 * time.Hour), // open phase, must not count
		closeAt.Add(-time.Minute),   // open phase, must not count
		closeAt.Add(5 * time.Minute),
		closeAt.Add(29 * time.Minute),
		closeAt.Add(GracePeriod + time.Minute), // already locked, not grace
	}
	if got := CountInGrace(win, times); got != 2 {
		t.Errorf("CountInGrace = %d, want 2", got)
	}
	if got := CountInGrace(win, nil); got != 0 {
		t.Errorf("CountInGrace(nil) = %d, want 0", got)
	}
}

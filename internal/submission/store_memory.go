package submission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps all workflow state behind one mutex. It mirrors the
// SQL store's transactional semantics (each method is all-or-nothing) and
// backs offline development and the lifecycle tests.
type MemoryStore struct {
	mu           sync.Mutex
	contests     map[string]Contest
	submissions  map[string]Submission
	attributions map[string]Attribution // by submission id
	corrections  map[string]Correction  // by correction id
	mods         map[string][]ModificationRecord
	rejections   map[string][]RejectionRecord
	notifs       map[string]Notification
	roles        map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contests:     map[string]Contest{},
		submissions:  map[string]Submission{},
		attributions: map[string]Attribution{},
		corrections:  map[string]Correction{},
		mods:         map[string][]ModificationRecord{},
		rejections:   map[string][]RejectionRecord{},
		notifs:       map[string]Notification{},
		roles:        map[string]string{},
	}
}

// SetUserRole seeds a principal's role (submitter, grader or admin).
func (m *MemoryStore) SetUserRole(id, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[id] = role
}

func (m *MemoryStore) PutContest(_ context.Context, c Contest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contests[c.ID] = c
	return nil
}

func (m *MemoryStore) GetContest(_ context.Context, id string) (Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[id]
	if !ok {
		return Contest{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListContests(_ context.Context) ([]Contest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Contest, 0, len(m.contests))
	for _, c := range m.contests {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) AnonymousIDExists(_ context.Context, contestID, anonID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anonIDTaken(contestID, anonID), nil
}

func (m *MemoryStore) anonIDTaken(contestID, anonID string) bool {
	for _, s := range m.submissions {
		if s.ContestID == contestID && s.AnonymousID == anonID {
			return true
		}
	}
	return false
}

func (m *MemoryStore) InsertSubmission(_ context.Context, s Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.anonIDTaken(s.ContestID, s.AnonymousID) {
		return ErrDuplicateAnonymousID
	}
	m.submissions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSubmission(_ context.Context, id string) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) ListSubmissions(_ context.Context, contestID string) ([]Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Submission
	for _, s := range m.submissions {
		if contestID == "" || s.ContestID == contestID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepositedAt.Before(out[j].DepositedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteSubmission(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.submissions[id]; !ok {
		return ErrNotFound
	}
	delete(m.submissions, id)
	delete(m.attributions, id)
	for cid, c := range m.corrections {
		if c.SubmissionID == id {
			delete(m.corrections, cid)
		}
	}
	delete(m.mods, id)
	delete(m.rejections, id)
	for nid, n := range m.notifs {
		if n.SubmissionID == id {
			delete(m.notifs, nid)
		}
	}
	return nil
}

func (m *MemoryStore) ReplaceArtifact(_ context.Context, rec ModificationRecord, quota *GraceQuota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[rec.SubmissionID]
	if !ok {
		return ErrNotFound
	}
	if quota != nil {
		used := 0
		for _, prior := range m.mods[rec.SubmissionID] {
			if prior.At.After(quota.Start) && !prior.At.After(quota.End) {
				used++
			}
		}
		if used >= quota.Max {
			return forbidden("grace period: modification quota exhausted")
		}
	}
	s.SealedRef = rec.NewRef
	m.submissions[rec.SubmissionID] = s
	m.mods[rec.SubmissionID] = append(m.mods[rec.SubmissionID], rec)
	return nil
}

func (m *MemoryStore) ListModifications(_ context.Context, submissionID string) ([]ModificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ModificationRecord(nil), m.mods[submissionID]...), nil
}

func (m *MemoryStore) UpsertAttribution(_ context.Context, a Attribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[a.SubmissionID]
	if !ok {
		return ErrNotFound
	}
	prev, had := m.attributions[a.SubmissionID]
	if had && prev.GraderID != a.GraderID {
		// re-attribution discards the removed grader's correction
		for cid, c := range m.corrections {
			if c.SubmissionID == a.SubmissionID && c.GraderID == prev.GraderID {
				delete(m.corrections, cid)
			}
		}
	}
	m.attributions[a.SubmissionID] = a
	// re-attributing the same grader is a no-op on status: their
	// submitted review stays submitted
	if had && prev.GraderID == a.GraderID {
		return nil
	}
	if s.Status == StatusPending || s.Status == StatusReviewSubmitted {
		s.Status = StatusUnderReview
		m.submissions[a.SubmissionID] = s
	}
	return nil
}

func (m *MemoryStore) GetAttribution(_ context.Context, submissionID string) (Attribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attributions[submissionID]
	if !ok {
		return Attribution{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) RemoveAttribution(_ context.Context, submissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[submissionID]
	if !ok {
		return ErrNotFound
	}
	delete(m.attributions, submissionID)
	for cid, c := range m.corrections {
		if c.SubmissionID == submissionID {
			delete(m.corrections, cid)
		}
	}
	s.Status = StatusPending
	m.submissions[submissionID] = s
	return nil
}

func (m *MemoryStore) DetachGrader(_ context.Context, graderID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var affected []string
	for sid, a := range m.attributions {
		if a.GraderID != graderID {
			continue
		}
		delete(m.attributions, sid)
		if s, ok := m.submissions[sid]; ok && s.Status != StatusFinalized {
			s.Status = StatusPending
			m.submissions[sid] = s
		}
		affected = append(affected, sid)
	}
	for cid, c := range m.corrections {
		if c.GraderID == graderID && c.ValidatedAt == nil {
			delete(m.corrections, cid)
		}
	}
	sort.Strings(affected)
	return affected, nil
}

func (m *MemoryStore) UpsertCorrection(_ context.Context, c Correction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[c.SubmissionID]
	if !ok {
		return ErrNotFound
	}
	// overwrite in place for the same (submission, grader) pair
	for cid, prev := range m.corrections {
		if prev.SubmissionID == c.SubmissionID && prev.GraderID == c.GraderID {
			c.ID = prev.ID
			delete(m.corrections, cid)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.corrections[c.ID] = c
	s.Status = StatusReviewSubmitted
	m.submissions[c.SubmissionID] = s
	return nil
}

func (m *MemoryStore) GetCorrection(_ context.Context, id string) (Correction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.corrections[id]
	if !ok {
		return Correction{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) GetCorrectionFor(_ context.Context, submissionID, graderID string) (Correction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.corrections {
		if c.SubmissionID == submissionID && c.GraderID == graderID {
			return c, nil
		}
	}
	return Correction{}, ErrNotFound
}

func (m *MemoryStore) FinalizeCorrection(_ context.Context, c Correction, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.corrections[c.ID]; !ok {
		return ErrNotFound
	}
	s, ok := m.submissions[c.SubmissionID]
	if !ok {
		return ErrNotFound
	}
	m.corrections[c.ID] = c
	s.Status = StatusFinalized
	m.submissions[c.SubmissionID] = s
	m.appendNotification(n)
	return nil
}

func (m *MemoryStore) RejectCorrection(_ context.Context, rec RejectionRecord, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[rec.SubmissionID]
	if !ok {
		return ErrNotFound
	}
	found := false
	for cid, c := range m.corrections {
		if c.SubmissionID == rec.SubmissionID && c.GraderID == rec.GraderID {
			if c.ValidatedAt != nil {
				return ErrAlreadyFinalized
			}
			delete(m.corrections, cid)
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	m.rejections[rec.SubmissionID] = append(m.rejections[rec.SubmissionID], rec)
	s.Status = StatusUnderReview
	m.submissions[rec.SubmissionID] = s
	m.appendNotification(n)
	return nil
}

func (m *MemoryStore) ListRejections(_ context.Context, submissionID string) ([]RejectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RejectionRecord(nil), m.rejections[submissionID]...), nil
}

func (m *MemoryStore) appendNotification(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	m.notifs[n.ID] = n
}

func (m *MemoryStore) ListNotifications(_ context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.notifs {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifs[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	if n.ReadAt == nil {
		now := time.Now()
		n.ReadAt = &now
		m.notifs[id] = n
	}
	return nil
}

func (m *MemoryStore) GetUserRole(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[userID]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

var _ Store = (*MemoryStore)(nil)

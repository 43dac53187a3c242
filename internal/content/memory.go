package content

import (
	"context"
	"strconv"
	"sync"
)

// Op names a gateway call on the in-memory store, for fault injection.
type Op string

const (
	OpGetAssessment        Op = "GetAssessment"
	OpGetSubmission        Op = "GetSubmission"
	OpFinalizeSubmission   Op = "FinalizeSubmission"
	OpListSubmissionAnswer Op = "ListSubmissionAnswers"
	OpCreateAnswer         Op = "CreateSubmissionAnswer"
	OpUpdateAnswer         Op = "UpdateSubmissionAnswer"
	OpFindProgress         Op = "FindProgress"
	OpCreateProgress       Op = "CreateProgress"
	OpUpdateProgress       Op = "UpdateProgress"
	OpListProgress         Op = "ListProgress"
	OpFindTrainee          Op = "FindTraineeByUser"
	OpGetCourse            Op = "GetCourse"
	OpFindEnrollment       Op = "FindActiveEnrollment"
)

// Memory is an in-process Gateway used for tests and offline development.
// Stored records are ordered by insertion, like list calls on the real store.
type Memory struct {
	mu          sync.RWMutex
	seq         int64
	assessments map[ID]Assessment
	submissions map[ID]Submission
	answers     []SubmissionAnswer
	progress    []CourseItemProgress
	trainees    []Trainee
	courses     map[ID]Course
	enrollments []Enrollment

	faults map[Op]error
	writes int
}

var _ Gateway = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		assessments: map[ID]Assessment{},
		submissions: map[ID]Submission{},
		courses:     map[ID]Course{},
		faults:      map[Op]error{},
	}
}

// FailOn makes every later call of op return err; a nil err clears it.
func (m *Memory) FailOn(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// Writes counts successful create/update calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) nextID() ID {
	m.seq++
	return ID(strconv.FormatInt(m.seq, 10))
}

func (m *Memory) fault(op Op) error { return m.faults[op] }

// --- seeding and inspection ---

func (m *Memory) PutAssessment(a Assessment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[a.ID] = a
}

func (m *Memory) PutSubmission(s Submission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[s.ID] = s
}

func (m *Memory) PutAnswer(a SubmissionAnswer) SubmissionAnswer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = m.nextID()
	}
	m.answers = append(m.answers, cloneAnswer(a))
	return a
}

func (m *Memory) PutProgress(p CourseItemProgress) CourseItemProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.nextID()
	}
	m.progress = append(m.progress, p)
	return p
}

func (m *Memory) PutTrainee(t Trainee) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainees = append(m.trainees, t)
}

func (m *Memory) PutCourse(c Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[c.ID] = c
}

func (m *Memory) PutEnrollment(e Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrollments = append(m.enrollments, e)
}

// Answers returns the stored answers of one submission.
func (m *Memory) Answers(submission ID) []SubmissionAnswer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SubmissionAnswer
	for _, a := range m.answers {
		if a.Submission == submission {
			out = append(out, cloneAnswer(a))
		}
	}
	return out
}

// AllProgress returns every stored progress record.
func (m *Memory) AllProgress() []CourseItemProgress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CourseItemProgress, len(m.progress))
	copy(out, m.progress)
	return out
}

// --- Gateway ---

func (m *Memory) GetAssessment(_ context.Context, id ID) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpGetAssessment); err != nil {
		return Assessment{}, err
	}
	a, ok := m.assessments[id]
	if !ok {
		return Assessment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) GetSubmission(_ context.Context, id ID) (Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpGetSubmission); err != nil {
		return Submission{}, err
	}
	s, ok := m.submissions[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) FinalizeSubmission(_ context.Context, id ID, res SubmissionResult) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpFinalizeSubmission); err != nil {
		return Submission{}, err
	}
	s, ok := m.submissions[id]
	if !ok {
		return Submission{}, ErrNotFound
	}
	if s.Status != SubmissionInProgress {
		return Submission{}, ErrConflict
	}
	at := res.CompletedAt
	s.Status = SubmissionSubmitted
	s.Score = res.Score
	s.PointsEarned = res.PointsEarned
	s.PointsPossible = res.PointsPossible
	s.CompletedAt = &at
	m.submissions[id] = s
	m.writes++
	return s, nil
}

func (m *Memory) ListSubmissionAnswers(_ context.Context, submission ID) ([]SubmissionAnswer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpListSubmissionAnswer); err != nil {
		return nil, err
	}
	var out []SubmissionAnswer
	for _, a := range m.answers {
		if a.Submission == submission {
			out = append(out, cloneAnswer(a))
		}
	}
	return out, nil
}

func (m *Memory) CreateSubmissionAnswer(_ context.Context, a SubmissionAnswer) (SubmissionAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpCreateAnswer); err != nil {
		return SubmissionAnswer{}, err
	}
	a.ID = m.nextID()
	m.answers = append(m.answers, cloneAnswer(a))
	m.writes++
	return a, nil
}

func (m *Memory) UpdateSubmissionAnswer(_ context.Context, id ID, a SubmissionAnswer) (SubmissionAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpUpdateAnswer); err != nil {
		return SubmissionAnswer{}, err
	}
	for i := range m.answers {
		if m.answers[i].ID == id {
			a.ID = id
			m.answers[i] = cloneAnswer(a)
			m.writes++
			return a, nil
		}
	}
	return SubmissionAnswer{}, ErrNotFound
}

func (m *Memory) FindProgress(_ context.Context, key ProgressKey) (CourseItemProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpFindProgress); err != nil {
		return CourseItemProgress{}, err
	}
	for _, p := range m.progress {
		if key.Matches(p) {
			return p, nil
		}
	}
	return CourseItemProgress{}, ErrNotFound
}

func (m *Memory) CreateProgress(_ context.Context, p CourseItemProgress) (CourseItemProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpCreateProgress); err != nil {
		return CourseItemProgress{}, err
	}
	p.ID = m.nextID()
	m.progress = append(m.progress, p)
	m.writes++
	return p, nil
}

func (m *Memory) UpdateProgress(_ context.Context, id ID, p CourseItemProgress) (CourseItemProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault(OpUpdateProgress); err != nil {
		return CourseItemProgress{}, err
	}
	for i := range m.progress {
		if m.progress[i].ID == id {
			p.ID = id
			m.progress[i] = p
			m.writes++
			return p, nil
		}
	}
	return CourseItemProgress{}, ErrNotFound
}

func (m *Memory) ListProgress(_ context.Context, f ProgressFilter) ([]CourseItemProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpListProgress); err != nil {
		return nil, err
	}
	var out []CourseItemProgress
	for _, p := range m.progress {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) FindTraineeByUser(_ context.Context, user ID) (Trainee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpFindTrainee); err != nil {
		return Trainee{}, err
	}
	for _, t := range m.trainees {
		if t.User == user {
			return t, nil
		}
	}
	return Trainee{}, ErrNotFound
}

func (m *Memory) GetCourse(_ context.Context, id ID) (Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpGetCourse); err != nil {
		return Course{}, err
	}
	c, ok := m.courses[id]
	if !ok {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) FindActiveEnrollment(_ context.Context, trainee, course ID) (Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fault(OpFindEnrollment); err != nil {
		return Enrollment{}, err
	}
	for _, e := range m.enrollments {
		if e.Trainee == trainee && e.Course == course && e.Status == EnrollmentActive {
			return e, nil
		}
	}
	return Enrollment{}, ErrNotFound
}

func cloneAnswer(a SubmissionAnswer) SubmissionAnswer {
	a.Response.values = append([]string(nil), a.Response.values...)
	return a
}

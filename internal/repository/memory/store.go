// Package memory is an in-process store with the same contract as the
// Postgres repositories. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/repository"
)

type pairKey struct {
	userID int
	examID uuid.UUID
}

// Store holds exams, attempts, results, audit events and notifications behind
// one mutex. Every conditional write is checked and applied under that lock.
type Store struct {
	mu            sync.RWMutex
	exams         map[uuid.UUID]*model.Exam
	attempts      map[uuid.UUID]*model.Attempt
	active        map[pairKey]uuid.UUID
	results       map[uuid.UUID]*model.Result
	resultByAtt   map[uuid.UUID]uuid.UUID
	audit         []model.AuditEvent
	auditSeen     map[uuid.UUID]struct{}
	notifications []model.Notification
}

// New creates an empty store.
func New() *Store {
	return &Store{
		exams:       make(map[uuid.UUID]*model.Exam),
		attempts:    make(map[uuid.UUID]*model.Attempt),
		active:      make(map[pairKey]uuid.UUID),
		results:     make(map[uuid.UUID]*model.Result),
		resultByAtt: make(map[uuid.UUID]uuid.UUID),
		auditSeen:   make(map[uuid.UUID]struct{}),
	}
}

// ----------------------------------------------------------------
// Exams
// ----------------------------------------------------------------

func cloneExam(e *model.Exam) *model.Exam {
	c := *e
	c.Questions = make([]model.Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Options = append([]string(nil), q.Options...)
		c.Questions[i] = q
	}
	return &c
}

// CreateExam stores an exam, assigning IDs where missing.
func (s *Store) CreateExam(_ context.Context, e *model.Exam) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	for i := range e.Questions {
		if e.Questions[i].ID == uuid.Nil {
			e.Questions[i].ID = uuid.New()
		}
		e.Questions[i].ExamID = e.ID
	}
	sort.SliceStable(e.Questions, func(i, j int) bool {
		return e.Questions[i].OrderNum < e.Questions[j].OrderNum
	})
	s.exams[e.ID] = cloneExam(e)
	return nil
}

// GetExam returns a copy of the exam.
func (s *Store) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneExam(e), nil
}

// ExamActive reports the exam's active flag.
func (s *Store) ExamActive(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.exams[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	return e.IsActive, nil
}

// SetActive toggles an exam's active flag.
func (s *Store) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.IsActive = active
	e.UpdatedAt = time.Now()
	return nil
}

// DeleteExam removes an exam while leaving its attempts behind.
func (s *Store) DeleteExam(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.exams, id)
}

// ----------------------------------------------------------------
// Attempts
// ----------------------------------------------------------------

// CreateAttempt inserts an IN_PROGRESS attempt, or returns the existing one
// for the pair with created=false.
func (s *Store) CreateAttempt(_ context.Context, userID int, examID uuid.UUID, startedAt time.Time) (*model.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{userID: userID, examID: examID}
	if id, ok := s.active[key]; ok {
		return s.attempts[id].Clone(), false, nil
	}

	a := &model.Attempt{
		ID:        uuid.New(),
		UserID:    userID,
		ExamID:    examID,
		StartedAt: startedAt,
		Status:    model.AttemptStatusInProgress,
		Answers:   model.Answers{},
	}
	s.attempts[a.ID] = a
	s.active[key] = a.ID
	return a.Clone(), true, nil
}

// GetAttempt returns a copy of the attempt.
func (s *Store) GetAttempt(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

// GetActive returns the IN_PROGRESS attempt for the pair.
func (s *Store) GetActive(_ context.Context, userID int, examID uuid.UUID) (*model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[pairKey{userID: userID, examID: examID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.attempts[id].Clone(), nil
}

// SaveAnswers merges answers into an in-progress attempt.
func (s *Store) SaveAnswers(_ context.Context, id uuid.UUID, answers model.Answers) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, repository.ErrStatusConflict
	}
	for q, idx := range answers {
		a.Answers[q] = idx
	}
	a.Version++
	return a.Clone(), nil
}

// Finalize grades an in-progress attempt at the expected version and creates
// its result.
func (s *Store) Finalize(_ context.Context, f repository.Finalization) (*model.Attempt, *model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[f.AttemptID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, nil, repository.ErrStatusConflict
	}
	if a.Version != f.ExpectedVersion {
		return nil, nil, repository.ErrVersionConflict
	}

	at := f.ResolvedAt
	score, passed := f.Score, f.Passed
	a.Status = model.AttemptStatusGraded
	a.ResolvedAs = f.ResolvedAs
	a.Answers = f.Answers.Clone()
	a.Late = f.Late
	a.Score = &score
	a.Passed = &passed
	a.GradedAt = &at
	if f.ResolvedAs == model.AttemptStatusAutoSubmitted {
		a.AutoSubmittedAt = &at
	} else {
		a.SubmittedAt = &at
	}
	a.Version++
	delete(s.active, pairKey{userID: a.UserID, examID: a.ExamID})

	res := &model.Result{
		ID:        uuid.New(),
		AttemptID: a.ID,
		UserID:    a.UserID,
		ExamID:    a.ExamID,
		Score:     score,
		Passed:    passed,
		CreatedAt: at,
	}
	s.results[res.ID] = res
	s.resultByAtt[a.ID] = res.ID

	out := *res
	return a.Clone(), &out, nil
}

// ListInProgress pages through IN_PROGRESS attempts by (started_at, id).
func (s *Store) ListInProgress(_ context.Context, after repository.Cursor, startedBefore time.Time, limit int) ([]model.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Attempt
	for _, id := range s.active {
		a := s.attempts[id]
		if !a.StartedAt.Before(startedBefore) || !cursorLess(after, a) {
			continue
		}
		out = append(out, *a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cursorLess(c repository.Cursor, a *model.Attempt) bool {
	if c.IsZero() {
		return true
	}
	if !a.StartedAt.Equal(c.StartedAt) {
		return a.StartedAt.After(c.StartedAt)
	}
	return a.ID.String() > c.ID.String()
}

// ----------------------------------------------------------------
// Results
// ----------------------------------------------------------------

// GetResult returns a copy of the result.
func (s *Store) GetResult(_ context.Context, id uuid.UUID) (*model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *res
	return &out, nil
}

// GetResultByAttempt returns the result of a graded attempt.
func (s *Store) GetResultByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	s.mu.RLock()
	id, ok := s.resultByAtt[attemptID]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetResult(ctx, id)
}

// SetPublication flips the publication flag. Unpublishing keeps the last
// publisher and timestamp.
func (s *Store) SetPublication(_ context.Context, id uuid.UUID, published bool, actorID int, at time.Time) (*model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.results[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	res.IsPublished = published
	if published {
		actor, stamp := actorID, at
		res.PublishedBy = &actor
		res.PublishedAt = &stamp
	}
	out := *res
	return &out, nil
}

// ListResults filters, orders newest first and paginates results.
func (s *Store) ListResults(_ context.Context, f model.ResultFilter) ([]model.Result, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.Result
	for _, res := range s.results {
		if f.UserID != nil && res.UserID != *f.UserID {
			continue
		}
		if f.ExamID != nil && res.ExamID != *f.ExamID {
			continue
		}
		if f.Published != nil && res.IsPublished != *f.Published {
			continue
		}
		matched = append(matched, *res)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := int64(len(matched))
	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = model.DefaultResultsPerPage
	}
	start := (page - 1) * perPage
	if start >= len(matched) {
		return nil, total, nil
	}
	end := min(start+perPage, len(matched))
	return matched[start:end], total, nil
}

// ----------------------------------------------------------------
// Audit & notifications
// ----------------------------------------------------------------

// InsertAuditEvents appends events, ignoring IDs already stored.
func (s *Store) InsertAuditEvents(_ context.Context, events []model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if _, dup := s.auditSeen[e.ID]; dup {
			continue
		}
		s.auditSeen[e.ID] = struct{}{}
		s.audit = append(s.audit, e)
	}
	return nil
}

// InsertNotifications appends notifications.
func (s *Store) InsertNotifications(_ context.Context, notes []model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, notes...)
	return nil
}

// AuditEvents returns a snapshot of stored audit events.
func (s *Store) AuditEvents() []model.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AuditEvent(nil), s.audit...)
}

// Notifications returns a snapshot of stored notifications.
func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Notification(nil), s.notifications...)
}

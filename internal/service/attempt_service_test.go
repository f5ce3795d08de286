package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-grading/internal/grading"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/repository"
	"github.com/stemsi/exstem-grading/internal/repository/memory"
)

func TestSubmit_EightOfTenWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.start(t, 1)
	f.clock.Set(t0.Add(5 * time.Minute))

	got, err := f.attempts.Submit(ctx, 1, a.ID, sheet(f.exam, 8))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != model.AttemptStatusGraded || got.ResolvedAs != model.AttemptStatusSubmitted {
		t.Errorf("expected GRADED via SUBMITTED, got %s via %s", got.Status, got.ResolvedAs)
	}
	if *got.Score != 80.0 || !*got.Passed || got.Late {
		t.Errorf("expected 80 passed on time, got score=%v passed=%v late=%v", *got.Score, *got.Passed, got.Late)
	}
	if got.SubmittedAt == nil || !got.SubmittedAt.Equal(t0.Add(5*time.Minute)) || got.AutoSubmittedAt != nil {
		t.Errorf("unexpected timestamps submitted=%v auto=%v", got.SubmittedAt, got.AutoSubmittedAt)
	}

	res, err := f.store.GetResultByAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetResultByAttempt: %v", err)
	}
	if res.IsPublished || res.Score != 80.0 || !res.Passed {
		t.Errorf("expected unpublished 80/passed result, got %+v", res)
	}

	types := f.events.types()
	if len(types) != 2 || types[0] != model.AttemptEventStarted || types[1] != model.AttemptEventSubmitted {
		t.Errorf("unexpected events %v", types)
	}
}

func TestSubmit_SubmitBufferBoundary(t *testing.T) {
	tests := []struct {
		name       string
		at         time.Duration
		resolvedAs model.AttemptStatus
		late       bool
	}{
		{name: "within buffer", at: 30*time.Minute + 5*time.Second, resolvedAs: model.AttemptStatusSubmitted, late: false},
		{name: "past buffer", at: 30*time.Minute + 15*time.Second, resolvedAs: model.AttemptStatusAutoSubmitted, late: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.start(t, 1)
			f.clock.Set(t0.Add(tc.at))

			got, err := f.attempts.Submit(context.Background(), 1, a.ID, sheet(f.exam, 10))
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if got.ResolvedAs != tc.resolvedAs || got.Late != tc.late {
				t.Errorf("expected %s late=%v, got %s late=%v", tc.resolvedAs, tc.late, got.ResolvedAs, got.Late)
			}
			if tc.late && (got.AutoSubmittedAt == nil || got.SubmittedAt != nil) {
				t.Errorf("late submission must set only AutoSubmittedAt, got %+v", got)
			}
			// Candidate-supplied answers are graded even when late.
			if *got.Score != 100 {
				t.Errorf("expected score 100, got %v", *got.Score)
			}
		})
	}
}

func TestStart_ConcurrentCallsShareOneAttempt(t *testing.T) {
	f := newFixture(t)

	const callers = 20
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.attempts.Start(context.Background(), 5, f.exam.ID)
			if err != nil {
				t.Errorf("Start: %v", err)
				return
			}
			ids[i] = v.Attempt.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one attempt, got %s and %s", ids[0], id)
		}
	}
	if n := f.inProgressCount(t, 5, f.exam.ID); n != 1 {
		t.Errorf("expected 1 in-progress attempt, got %d", n)
	}
}

func TestStart_ResumesWithinResumeBuffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, 1)

	f.clock.Set(t0.Add(10 * time.Minute))
	v, err := f.attempts.Start(ctx, 1, f.exam.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v.Attempt.ID != a.ID || !v.Resumed || v.RemainingSeconds != 20*60 {
		t.Errorf("expected resume with 1200s left, got id=%s resumed=%v remaining=%v", v.Attempt.ID, v.Resumed, v.RemainingSeconds)
	}
	if len(v.Questions) != len(f.exam.Questions) {
		t.Errorf("expected questions on resume, got %d", len(v.Questions))
	}

	f.clock.Set(t0.Add(30*time.Minute + 25*time.Second))
	v, err = f.attempts.Start(ctx, 1, f.exam.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v.Attempt.Status != model.AttemptStatusInProgress || v.RemainingSeconds != 0 {
		t.Errorf("expected still in progress with no time left, got %s %v", v.Attempt.Status, v.RemainingSeconds)
	}
}

func TestStart_ExpiredAttemptIsForceSubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, 1)

	f.clock.Set(t0.Add(10 * time.Minute))
	partial := sheet(f.exam, 3)
	if _, err := f.attempts.SaveAnswers(ctx, 1, a.ID, partial); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}

	f.clock.Set(t0.Add(30*time.Minute + 31*time.Second))
	v, err := f.attempts.Start(ctx, 1, f.exam.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := v.Attempt
	if got.ID != a.ID {
		t.Fatalf("expected the expired attempt back, got a new one")
	}
	if got.Status != model.AttemptStatusGraded || got.ResolvedAs != model.AttemptStatusAutoSubmitted || !got.Late {
		t.Errorf("expected late auto-submission, got %s via %s late=%v", got.Status, got.ResolvedAs, got.Late)
	}
	if len(got.Answers) != len(partial) || *got.Score != 30 {
		t.Errorf("expected stored answers graded to 30, got %d answers score %v", len(got.Answers), *got.Score)
	}
	if len(v.Questions) != 0 || v.RemainingSeconds != 0 {
		t.Errorf("graded view must not expose questions, got %d", len(v.Questions))
	}

	// The next start is a retake.
	next, err := f.attempts.Start(ctx, 1, f.exam.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if next.Attempt.ID == a.ID || next.Attempt.Status != model.AttemptStatusInProgress {
		t.Errorf("expected a fresh attempt, got %+v", next.Attempt)
	}
}

func TestStart_UnknownOrInactiveExam(t *testing.T) {
	f := newFixture(t)
	inactive := f.addExam(t, 3, false)

	for name, id := range map[string]uuid.UUID{"missing": uuid.New(), "inactive": inactive.ID} {
		t.Run(name, func(t *testing.T) {
			if _, err := f.attempts.Start(context.Background(), 1, id); !errors.Is(err, ErrExamNotFound) {
				t.Errorf("expected ErrExamNotFound, got %v", err)
			}
		})
	}
}

func TestSubmit_SecondCallConflictsAndKeepsScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, 1)

	first, err := f.attempts.Submit(ctx, 1, a.ID, sheet(f.exam, 8))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = f.attempts.Submit(ctx, 1, a.ID, sheet(f.exam, 10))
	if !errors.Is(err, ErrAttemptAlreadySubmitted) {
		t.Fatalf("expected ErrAttemptAlreadySubmitted, got %v", err)
	}

	stored, _ := f.store.GetAttempt(ctx, a.ID)
	if *stored.Score != *first.Score || *stored.Passed != *first.Passed {
		t.Errorf("score changed after conflict: %v -> %v", *first.Score, *stored.Score)
	}
	if _, total, _ := f.store.ListResults(ctx, model.ResultFilter{}); total != 1 {
		t.Errorf("expected exactly one result, got %d", total)
	}
}

func TestSubmit_ConcurrentCallsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	a := f.start(t, 1)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.attempts.Submit(context.Background(), 1, a.ID, sheet(f.exam, i%11))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAttemptAlreadySubmitted):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 || conflicts != callers-1 {
		t.Errorf("expected 1 winner and %d conflicts, got %d and %d", callers-1, wins, conflicts)
	}
	if _, total, _ := f.store.ListResults(context.Background(), model.ResultFilter{}); total != 1 {
		t.Errorf("expected one result, got %d", total)
	}
}

func TestSubmit_ScopedToOwnerAndValidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, 1)

	if _, err := f.attempts.Submit(ctx, 2, a.ID, model.Answers{}); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound for another user, got %v", err)
	}
	if _, err := f.attempts.Submit(ctx, 1, uuid.New(), model.Answers{}); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}

	bad := model.Answers{f.exam.Questions[0].ID: 9}
	_, err := f.attempts.Submit(ctx, 1, a.ID, bad)
	if !errors.Is(err, ErrInvalidAnswer) || !errors.Is(err, grading.ErrOptionOutOfRange) {
		t.Errorf("expected ErrInvalidAnswer, got %v", err)
	}

	// A rejected sheet leaves the attempt open.
	if got, _ := f.store.GetAttempt(ctx, a.ID); got.Status != model.AttemptStatusInProgress {
		t.Errorf("expected attempt still in progress, got %s", got.Status)
	}
}

func TestSaveAnswers_MergesUntilExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, 1)
	q := f.exam.Questions

	if _, err := f.attempts.SaveAnswers(ctx, 1, a.ID, model.Answers{q[0].ID: q[0].CorrectAnswerIndex}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	got, err := f.attempts.SaveAnswers(ctx, 1, a.ID, model.Answers{q[1].ID: q[1].CorrectAnswerIndex, q[0].ID: 3})
	if err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	if len(got.Answers) != 2 || got.Answers[q[0].ID] != 3 || got.Version != 2 {
		t.Errorf("expected merged sheet at version 2, got %v v%d", got.Answers, got.Version)
	}

	if _, err := f.attempts.SaveAnswers(ctx, 1, a.ID, model.Answers{uuid.New(): 0}); !errors.Is(err, ErrInvalidAnswer) {
		t.Errorf("expected ErrInvalidAnswer, got %v", err)
	}

	f.clock.Set(t0.Add(30*time.Minute + 11*time.Second))
	graded, err := f.attempts.SaveAnswers(ctx, 1, a.ID, model.Answers{q[2].ID: q[2].CorrectAnswerIndex})
	if err != nil {
		t.Fatalf("SaveAnswers after expiry: %v", err)
	}
	if graded.Status != model.AttemptStatusGraded || graded.ResolvedAs != model.AttemptStatusAutoSubmitted {
		t.Fatalf("expected forced submission, got %s", graded.Status)
	}
	if _, ok := graded.Answers[q[2].ID]; ok {
		t.Error("answers sent after expiry must not be recorded")
	}
	if *graded.Score != 10 {
		t.Errorf("expected score 10 from stored answers, got %v", *graded.Score)
	}

	// Further saves just report the frozen attempt.
	again, err := f.attempts.SaveAnswers(ctx, 1, a.ID, model.Answers{q[3].ID: 0})
	if err != nil || again.Status != model.AttemptStatusGraded || len(again.Answers) != 2 {
		t.Errorf("expected frozen attempt, got %+v err=%v", again, err)
	}
}

func TestForceSubmit_NotificationFollowsConfig(t *testing.T) {
	for _, notify := range []bool{false, true} {
		f := newFixture(t, WithForcedSubmitNotification(notify))
		a := f.start(t, 1)

		if _, err := f.attempts.ForceSubmit(context.Background(), a.ID); err != nil {
			t.Fatalf("ForceSubmit: %v", err)
		}

		want := 0
		if notify {
			want = 1
		}
		if got := f.notes.count(); got != want {
			t.Errorf("notify=%v: expected %d notifications, got %d", notify, want, got)
		}
	}
}

func TestForceSubmit_CandidateSubmitNeverNotifies(t *testing.T) {
	f := newFixture(t, WithForcedSubmitNotification(true))
	a := f.start(t, 1)
	f.clock.Set(t0.Add(40 * time.Minute))

	got, err := f.attempts.Submit(context.Background(), 1, a.ID, model.Answers{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !got.Late || f.notes.count() != 0 {
		t.Errorf("expected late submission without notification, got late=%v notes=%d", got.Late, f.notes.count())
	}
}

// racingStore slips an autosave in front of the first Finalize.
type racingStore struct {
	*memory.Store
	once   sync.Once
	inject func()
}

func (r *racingStore) Finalize(ctx context.Context, fin repository.Finalization) (*model.Attempt, *model.Result, error) {
	r.once.Do(r.inject)
	return r.Store.Finalize(ctx, fin)
}

func TestForceSubmit_RetriesWhenAnswersChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, 1)
	q := f.exam.Questions[0]

	racing := &racingStore{Store: f.store}
	racing.inject = func() {
		if _, err := f.store.SaveAnswers(ctx, a.ID, model.Answers{q.ID: q.CorrectAnswerIndex}); err != nil {
			t.Errorf("SaveAnswers: %v", err)
		}
	}
	svc := NewAttemptService(racing, f.store, nil, nil, testLog, WithClock(f.clock.Now))

	got, err := svc.ForceSubmit(ctx, a.ID)
	if err != nil {
		t.Fatalf("ForceSubmit: %v", err)
	}
	if _, ok := got.Answers[q.ID]; !ok || *got.Score != 10 {
		t.Errorf("expected the late autosave to be graded, got answers=%v score=%v", got.Answers, *got.Score)
	}
}

func TestGetAttempt_View(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.start(t, 1)

	f.clock.Set(t0.Add(12 * time.Minute))
	v, err := f.attempts.GetAttempt(ctx, 1, a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if v.RemainingSeconds != 18*60 || !v.Deadline.Equal(t0.Add(30*time.Minute)) {
		t.Errorf("unexpected view %+v", v)
	}
	for _, q := range v.Questions {
		if q.Text == "" || len(q.Options) != 4 {
			t.Errorf("unexpected candidate question %+v", q)
		}
	}
	if _, err := f.attempts.GetAttempt(ctx, 2, a.ID); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected ErrAttemptNotFound, got %v", err)
	}
}

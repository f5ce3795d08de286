package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-grading/internal/model"
)

func (f *fixture) gradedResult(t *testing.T, userID, correct int) *model.Result {
	t.Helper()
	ctx := context.Background()
	a := f.start(t, userID)
	if _, err := f.attempts.Submit(ctx, userID, a.ID, sheet(f.exam, correct)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := f.store.GetResultByAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetResultByAttempt: %v", err)
	}
	return res
}

func TestPublication_ControlsCandidateVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const admin = 900

	mine := f.gradedResult(t, 1, 8)
	f.gradedResult(t, 2, 4)

	visible, _, err := f.results.GetResults(ctx, 1, 1, 20)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("expected nothing visible before publication, got %d", len(visible))
	}

	f.clock.Set(t0.Add(time.Hour))
	pub, err := f.results.Publish(ctx, mine.ID, admin)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !pub.IsPublished || *pub.PublishedBy != admin || !pub.PublishedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("unexpected publication %+v", pub)
	}

	visible, total, _ := f.results.GetResults(ctx, 1, 1, 20)
	if total != 1 || visible[0].ID != mine.ID || visible[0].Score != 80 {
		t.Fatalf("expected the published result, got %+v", visible)
	}

	all, total, _ := f.results.ListAll(ctx, model.ResultFilter{})
	if total != 2 || len(all) != 2 {
		t.Fatalf("admin listing expected 2 results, got %d", total)
	}

	if _, err := f.results.Unpublish(ctx, mine.ID, admin); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	visible, _, _ = f.results.GetResults(ctx, 1, 1, 20)
	if len(visible) != 0 {
		t.Errorf("expected result hidden after unpublish, got %d", len(visible))
	}
	if _, total, _ := f.results.ListAll(ctx, model.ResultFilter{}); total != 2 {
		t.Errorf("admin listing must ignore publication, got %d", total)
	}

	events := f.store.AuditEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].Action != model.AuditActionResultPublished || events[1].Action != model.AuditActionResultUnpublished {
		t.Errorf("unexpected audit actions %s, %s", events[0].Action, events[1].Action)
	}
	for _, e := range events {
		if e.ActorID != admin || e.ResultID != mine.ID || e.UserID != 1 || e.ExamID != f.exam.ID || e.Score != 80 {
			t.Errorf("audit event missing payload: %+v", e)
		}
	}
}

func TestPublication_DoesNotTouchScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.gradedResult(t, 1, 5)

	for range 3 {
		if _, err := f.results.Publish(ctx, res.ID, 1); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if _, err := f.results.Unpublish(ctx, res.ID, 1); err != nil {
			t.Fatalf("Unpublish: %v", err)
		}
	}

	got, _ := f.results.Get(ctx, res.ID)
	if got.Score != res.Score || got.Passed != res.Passed {
		t.Errorf("score changed: %+v -> %+v", res, got)
	}
	attempt, _ := f.store.GetAttempt(ctx, res.AttemptID)
	if *attempt.Score != res.Score {
		t.Errorf("attempt score changed: %v", *attempt.Score)
	}
}

type downAuditSink struct{ calls int }

func (s *downAuditSink) Record(context.Context, model.AuditEvent) error {
	s.calls++
	return errors.New("audit queue unavailable")
}

func TestPublication_SucceedsWhenAuditIsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.gradedResult(t, 1, 8)

	sink := &downAuditSink{}
	results := NewResultService(f.store, sink, testLog, WithClock(f.clock.Now))

	pub, err := results.Publish(ctx, res.ID, 900)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !pub.IsPublished {
		t.Errorf("expected published result, got %+v", pub)
	}
	stored, _ := f.store.GetResult(ctx, res.ID)
	if !stored.IsPublished {
		t.Error("publication flag not persisted")
	}

	if _, err := results.Unpublish(ctx, res.ID, 900); err != nil {
		t.Fatalf("Unpublish: %v", err)
	}
	if sink.calls != 2 {
		t.Errorf("expected one audit attempt per call, got %d", sink.calls)
	}
}

func TestPublication_UnknownResult(t *testing.T) {
	f := newFixture(t)
	if _, err := f.results.Publish(context.Background(), uuid.New(), 1); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("expected ErrResultNotFound, got %v", err)
	}
	if _, err := f.results.Unpublish(context.Background(), uuid.New(), 1); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("expected ErrResultNotFound, got %v", err)
	}
	if got := len(f.store.AuditEvents()); got != 0 {
		t.Errorf("no audit event expected for a missing result, got %d", got)
	}
}

func TestPublishedForAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.gradedResult(t, 1, 7)

	if _, err := f.results.PublishedForAttempt(ctx, 1, res.AttemptID); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("expected hidden result, got %v", err)
	}
	if _, err := f.results.Publish(ctx, res.ID, 99); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got, err := f.results.PublishedForAttempt(ctx, 1, res.AttemptID); err != nil || got.ID != res.ID {
		t.Errorf("expected published result, got %v err=%v", got, err)
	}
	if _, err := f.results.PublishedForAttempt(ctx, 2, res.AttemptID); !errors.Is(err, ErrResultNotFound) {
		t.Errorf("other candidates must not see the result, got %v", err)
	}
}

func TestListAll_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r1 := f.gradedResult(t, 1, 8)
	f.gradedResult(t, 2, 8)
	f.gradedResult(t, 3, 8)
	if _, err := f.results.Publish(ctx, r1.ID, 9); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	user := 2
	got, total, _ := f.results.ListAll(ctx, model.ResultFilter{UserID: &user})
	if total != 1 || got[0].UserID != 2 {
		t.Errorf("user filter: %+v", got)
	}

	published, hidden := true, false
	_, total, _ = f.results.ListAll(ctx, model.ResultFilter{Published: &published})
	if total != 1 {
		t.Errorf("published filter: expected 1, got %d", total)
	}
	_, total, _ = f.results.ListAll(ctx, model.ResultFilter{Published: &hidden})
	if total != 2 {
		t.Errorf("unpublished filter: expected 2, got %d", total)
	}

	page, total, _ := f.results.ListAll(ctx, model.ResultFilter{Page: 2, PerPage: 2})
	if total != 3 || len(page) != 1 {
		t.Errorf("pagination: expected 1 of 3 on page 2, got %d of %d", len(page), total)
	}

	other := uuid.New()
	got, total, _ = f.results.ListAll(ctx, model.ResultFilter{ExamID: &other})
	if total != 0 || got == nil {
		t.Errorf("exam filter: expected empty non-nil slice, got %v", got)
	}
}

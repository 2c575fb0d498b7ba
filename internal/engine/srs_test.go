package engine_test

import (
	"testing"
	"time"

	"studyline/internal/domain"
	"studyline/internal/engine"
)

func TestScheduleReviews(t *testing.T) {
	studied := time.Date(2024, 3, 10, 22, 45, 0, 0, time.UTC)
	revisions := engine.ScheduleReviews("j1", "t1", studied, []int{1, 7, 30})
	if len(revisions) != 3 {
		t.Fatalf("expected 3 revisions, got %d", len(revisions))
	}
	want := []struct {
		due   string
		label string
	}{
		{"2024-03-11", "1d"},
		{"2024-03-17", "7d"},
		{"2024-04-09", "30d"},
	}
	for i, w := range want {
		rev := revisions[i]
		if rev.DueDate != w.due || rev.Label != w.label {
			t.Fatalf("revision %d: got %s/%s, want %s/%s", i, rev.DueDate, rev.Label, w.due, w.label)
		}
		if rev.Completed {
			t.Fatalf("revision %d should start pending", i)
		}
		if rev.JourneyID != "j1" || rev.TopicID != "t1" {
			t.Fatalf("revision %d has wrong references", i)
		}
	}
	if revisions[0].ID == revisions[1].ID {
		t.Fatalf("revision ids must be unique")
	}
}

func TestScheduleReviewsMonthBoundary(t *testing.T) {
	studied := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	revisions := engine.ScheduleReviews("j1", "t1", studied, []int{1, 30})
	if revisions[0].DueDate != "2024-02-01" {
		t.Fatalf("expected 2024-02-01, got %s", revisions[0].DueDate)
	}
	if revisions[1].DueDate != "2024-03-01" {
		t.Fatalf("expected 2024-03-01, got %s", revisions[1].DueDate)
	}
}

func TestClassifyRevisions(t *testing.T) {
	today := time.Date(2024, 3, 15, 16, 0, 0, 0, time.UTC)
	revisions := []domain.Revision{
		{ID: "a", DueDate: "2024-03-20"},
		{ID: "b", DueDate: "2024-03-10"},
		{ID: "c", DueDate: "2024-03-15"},
		{ID: "d", DueDate: "2024-03-12"},
		{ID: "e", DueDate: "2024-03-01", Completed: true},
	}
	agenda := engine.ClassifyRevisions(revisions, today)
	if len(agenda.Overdue) != 2 || agenda.Overdue[0].ID != "b" || agenda.Overdue[1].ID != "d" {
		t.Fatalf("overdue wrong: %+v", agenda.Overdue)
	}
	if len(agenda.DueToday) != 1 || agenda.DueToday[0].ID != "c" {
		t.Fatalf("due today wrong: %+v", agenda.DueToday)
	}
	if len(agenda.Upcoming) != 1 || agenda.Upcoming[0].ID != "a" {
		t.Fatalf("upcoming wrong: %+v", agenda.Upcoming)
	}
}

func TestClassifyRevisionsExcludesCompleted(t *testing.T) {
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	agenda := engine.ClassifyRevisions([]domain.Revision{
		{ID: "x", DueDate: "2024-03-14", Completed: true},
		{ID: "y", DueDate: "2024-03-15", Completed: true},
		{ID: "z", DueDate: "2024-03-16", Completed: true},
	}, today)
	if len(agenda.Overdue)+len(agenda.DueToday)+len(agenda.Upcoming) != 0 {
		t.Fatalf("completed revisions must not appear: %+v", agenda)
	}
}

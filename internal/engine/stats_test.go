package engine_test

import (
	"testing"
	"time"

	"studyline/internal/domain"
	"studyline/internal/engine"
)

func TestXPAndLevel(t *testing.T) {
	cases := []struct {
		seconds   int
		questions int
		xp        int
		level     int
	}{
		{0, 0, 0, 1},
		{3600, 10, 200, 2},
		{3599, 0, 0, 1},   // partial hours earn nothing
		{7200, 0, 200, 2},
		{0, 10, 100, 2},
		{10800, 10, 400, 3},
		{28800, 10, 900, 4},
	}
	for _, c := range cases {
		xp := engine.XP(c.seconds, c.questions)
		if xp != c.xp {
			t.Fatalf("XP(%d,%d) = %d, want %d", c.seconds, c.questions, xp, c.xp)
		}
		if lvl := engine.Level(xp); lvl != c.level {
			t.Fatalf("Level(%d) = %d, want %d", xp, lvl, c.level)
		}
	}
}

func TestOverallAccuracyRounds(t *testing.T) {
	logs := []domain.QuestionLog{
		{Correct: 9, Total: 20},
	}
	if got := engine.OverallAccuracy(logs); got != 45 {
		t.Fatalf("expected 45, got %d", got)
	}
	if got := engine.OverallAccuracy(nil); got != 0 {
		t.Fatalf("no attempts must be 0, got %d", got)
	}
	// 2/3 rounds up to 67
	if got := engine.OverallAccuracy([]domain.QuestionLog{{Correct: 2, Total: 3}}); got != 67 {
		t.Fatalf("expected 67, got %d", got)
	}
}

func TestAggregateByDiscipline(t *testing.T) {
	disciplines := map[string]domain.Discipline{
		"d1": {ID: "d1", Name: "Portuguese"},
		"d2": {ID: "d2", Name: "Math"},
	}
	logs := []domain.QuestionLog{
		{DisciplineID: "d1", Correct: 9, Total: 20},
		{DisciplineID: "d2", Correct: 8, Total: 10},
		{DisciplineID: "d1", Correct: 0, Total: 0},
		{DisciplineID: "gone", Correct: 5, Total: 5},
	}
	stats := engine.AggregateByDiscipline(logs, disciplines)
	if len(stats) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(stats))
	}
	if stats[0].Name != "Math" || stats[0].AccuracyPct != 80 {
		t.Fatalf("best accuracy first, got %+v", stats[0])
	}
	if stats[1].Name != "Portuguese" || stats[1].AccuracyPct != 45 {
		t.Fatalf("expected Portuguese at 45, got %+v", stats[1])
	}
}

func TestAggregateByTopicKeepsRemovedTopics(t *testing.T) {
	topics := map[string]domain.Topic{
		"t1": {ID: "t1", Name: "Verbs"},
	}
	logs := []domain.QuestionLog{
		{TopicID: "t1", Correct: 9, Total: 10},
		{TopicID: "deleted", Correct: 1, Total: 10},
	}
	stats := engine.AggregateByTopic(logs, topics)
	if len(stats) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(stats))
	}
	// weakest first
	if stats[0].Name != "(removed topic)" || stats[0].AccuracyPct != 10 {
		t.Fatalf("expected placeholder row first, got %+v", stats[0])
	}
	if stats[1].Name != "Verbs" || stats[1].QuestionsAttempted != 10 {
		t.Fatalf("expected Verbs row, got %+v", stats[1])
	}
}

func TestStudyDayStreak(t *testing.T) {
	today := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	sessions := []domain.StudySession{
		{Date: "2024-03-15T08:00:00Z"},
		{Date: "2024-03-14T22:00:00Z"},
		{Date: "2024-03-13T10:00:00Z"},
		{Date: "2024-03-10T10:00:00Z"},
	}
	if got := engine.StudyDayStreak(sessions, today); got != 3 {
		t.Fatalf("expected streak 3, got %d", got)
	}
}

func TestStudyDayStreakSurvivesUntilDayMissed(t *testing.T) {
	today := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	sessions := []domain.StudySession{
		{Date: "2024-03-14T08:00:00Z"},
		{Date: "2024-03-13T08:00:00Z"},
	}
	// nothing yet today, streak counts from yesterday
	if got := engine.StudyDayStreak(sessions, today); got != 2 {
		t.Fatalf("expected streak 2, got %d", got)
	}
	if got := engine.StudyDayStreak(nil, today); got != 0 {
		t.Fatalf("expected streak 0, got %d", got)
	}
}

func TestComputeProgress(t *testing.T) {
	data := domain.StudyData{
		Sessions: []domain.StudySession{
			{Date: "2024-03-15T08:00:00Z", DurationSeconds: 3600},
		},
		Questions: []domain.QuestionLog{
			{Correct: 9, Total: 10},
		},
	}
	p := engine.ComputeProgress(data, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	if p.XP != 200 || p.Level != 2 {
		t.Fatalf("expected 200 XP level 2, got %+v", p)
	}
	if p.OverallAccuracyPct != 90 || p.StudyDayStreak != 1 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if p.TotalStudySeconds != 3600 || p.TotalQuestions != 10 {
		t.Fatalf("unexpected totals: %+v", p)
	}
}

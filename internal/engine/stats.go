package engine

import (
	"math"
	"sort"
	"time"

	"studyline/internal/domain"
)

// removedTopicName labels stats rows whose topic was deleted from the edital.
const removedTopicName = "(removed topic)"

// XP awards 100 points per full study hour and 10 per question attempted.
func XP(totalStudySeconds, totalQuestions int) int {
	return (totalStudySeconds/3600)*100 + totalQuestions*10
}

// Level grows with the square root of XP: level 2 at 100 XP, 3 at 400,
// 4 at 900.
func Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return int(math.Sqrt(float64(xp)/100)) + 1
}

func accuracyPct(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// OverallAccuracy is the rounded percentage of correct answers across all
// logs, zero when nothing was attempted.
func OverallAccuracy(questions []domain.QuestionLog) int {
	var correct, total int
	for _, q := range questions {
		correct += q.Correct
		total += q.Total
	}
	return accuracyPct(correct, total)
}

// AggregateByDiscipline sums question logs per discipline. Logs whose
// discipline no longer exists are dropped, disciplines with zero attempts are
// excluded, and the result is ordered best accuracy first.
func AggregateByDiscipline(questions []domain.QuestionLog, disciplines map[string]domain.Discipline) []domain.DisciplineStats {
	totals := map[string]*domain.DisciplineStats{}
	for _, q := range questions {
		d, ok := disciplines[q.DisciplineID]
		if !ok {
			continue
		}
		row, ok := totals[q.DisciplineID]
		if !ok {
			row = &domain.DisciplineStats{DisciplineID: d.ID, Name: d.Name}
			totals[q.DisciplineID] = row
		}
		row.Correct += q.Correct
		row.Total += q.Total
	}
	res := make([]domain.DisciplineStats, 0, len(totals))
	for _, row := range totals {
		if row.Total == 0 {
			continue
		}
		row.AccuracyPct = accuracyPct(row.Correct, row.Total)
		res = append(res, *row)
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].AccuracyPct != res[j].AccuracyPct {
			return res[i].AccuracyPct > res[j].AccuracyPct
		}
		return res[i].Name < res[j].Name
	})
	return res
}

// AggregateByTopic sums question logs per topic, weakest accuracy first, so
// the head of the list is the review priority. Logs for deleted topics keep a
// placeholder row instead of being dropped.
func AggregateByTopic(questions []domain.QuestionLog, topics map[string]domain.Topic) []domain.TopicStats {
	type acc struct {
		correct int
		total   int
	}
	totals := map[string]*acc{}
	for _, q := range questions {
		row, ok := totals[q.TopicID]
		if !ok {
			row = &acc{}
			totals[q.TopicID] = row
		}
		row.correct += q.Correct
		row.total += q.Total
	}
	res := make([]domain.TopicStats, 0, len(totals))
	for topicID, row := range totals {
		if row.total == 0 {
			continue
		}
		name := removedTopicName
		if t, ok := topics[topicID]; ok {
			name = t.Name
		}
		res = append(res, domain.TopicStats{
			TopicID:            topicID,
			Name:               name,
			AccuracyPct:        accuracyPct(row.correct, row.total),
			QuestionsAttempted: row.total,
		})
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].AccuracyPct != res[j].AccuracyPct {
			return res[i].AccuracyPct < res[j].AccuracyPct
		}
		return res[i].Name < res[j].Name
	})
	return res
}

// StudyDayStreak counts consecutive calendar days with at least one session,
// walking back from today. A streak survives until a full day is missed, so
// studying yesterday but not yet today still counts.
func StudyDayStreak(sessions []domain.StudySession, today time.Time) int {
	days := map[string]bool{}
	for _, s := range sessions {
		if len(s.Date) >= len(dateLayout) {
			days[s.Date[:len(dateLayout)]] = true
		}
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if !days[day.Format(dateLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	streak := 0
	for days[day.Format(dateLayout)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// ComputeProgress derives the gamification summary from raw study data.
func ComputeProgress(data domain.StudyData, today time.Time) domain.Progress {
	var seconds, questions int
	for _, s := range data.Sessions {
		seconds += s.DurationSeconds
	}
	for _, q := range data.Questions {
		questions += q.Total
	}
	xp := XP(seconds, questions)
	return domain.Progress{
		XP:                 xp,
		Level:              Level(xp),
		TotalStudySeconds:  seconds,
		TotalQuestions:     questions,
		OverallAccuracyPct: OverallAccuracy(data.Questions),
		StudyDayStreak:     StudyDayStreak(data.Sessions, today),
	}
}

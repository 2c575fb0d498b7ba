package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"studyline/internal/domain"
)

const dateLayout = "2006-01-02"

// ScheduleReviews builds one pending revision per offset, due the given number
// of calendar days after the study date. Labels carry the offset ("1d", "7d").
func ScheduleReviews(journeyID, topicID string, studyDate time.Time, offsetsDays []int) []domain.Revision {
	day := time.Date(studyDate.Year(), studyDate.Month(), studyDate.Day(), 0, 0, 0, 0, time.UTC)
	revisions := make([]domain.Revision, 0, len(offsetsDays))
	for _, offset := range offsetsDays {
		revisions = append(revisions, domain.Revision{
			ID:        uuid.NewString(),
			JourneyID: journeyID,
			TopicID:   topicID,
			DueDate:   day.AddDate(0, 0, offset).Format(dateLayout),
			Label:     fmt.Sprintf("%dd", offset),
		})
	}
	return revisions
}

// ClassifyRevisions partitions pending revisions by calendar day relative to
// today. Completed revisions never appear. Each bucket is ascending by due
// date.
func ClassifyRevisions(revisions []domain.Revision, today time.Time) domain.ReviewAgenda {
	ref := today.Format(dateLayout)
	var agenda domain.ReviewAgenda
	for _, rev := range revisions {
		if rev.Completed {
			continue
		}
		switch {
		case rev.DueDate < ref:
			agenda.Overdue = append(agenda.Overdue, rev)
		case rev.DueDate == ref:
			agenda.DueToday = append(agenda.DueToday, rev)
		default:
			agenda.Upcoming = append(agenda.Upcoming, rev)
		}
	}
	byDue := func(s []domain.Revision) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].DueDate < s[j].DueDate })
	}
	byDue(agenda.Overdue)
	byDue(agenda.DueToday)
	byDue(agenda.Upcoming)
	return agenda
}

package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"studyline/internal/engine"
)

// WriteStatsXLSX renders a stats report as a spreadsheet with one sheet for
// progress, one per-discipline, one per-topic.
func WriteStatsXLSX(report engine.StatsReport, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const progressSheet = "Progress"
	if err := f.SetSheetName("Sheet1", progressSheet); err != nil {
		return err
	}
	progressRows := [][]any{
		{"XP", report.Progress.XP},
		{"Level", report.Progress.Level},
		{"Total study hours", float64(report.Progress.TotalStudySeconds) / 3600},
		{"Total questions", report.Progress.TotalQuestions},
		{"Overall accuracy %", report.Progress.OverallAccuracyPct},
		{"Study day streak", report.Progress.StudyDayStreak},
	}
	for i, row := range progressRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(progressSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := writeSheet(f, "Disciplines", []any{"Discipline", "Correct", "Total", "Accuracy %"}, len(report.ByDiscipline), func(i int) []any {
		d := report.ByDiscipline[i]
		return []any{d.Name, d.Correct, d.Total, d.AccuracyPct}
	}); err != nil {
		return err
	}
	if err := writeSheet(f, "Topics", []any{"Topic", "Questions", "Accuracy %"}, len(report.ByTopic), func(i int) []any {
		t := report.ByTopic[i]
		return []any{t.Name, t.QuestionsAttempted, t.AccuracyPct}
	}); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, header []any, n int, row func(int) []any) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row(i)
		if err := f.SetSheetRow(name, cell, &r); err != nil {
			return err
		}
	}
	return nil
}

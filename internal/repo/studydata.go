package repo

import (
	"context"
	"database/sql"

	"studyline/internal/domain"
)

func (r Repo) InsertStudySession(ctx context.Context, tx *sql.Tx, s domain.StudySession) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO study_sessions(id,journey_id,discipline_id,topic_id,duration_seconds,date,type)
VALUES (?,?,?,?,?,?,?)`, s.ID, s.JourneyID, s.DisciplineID, s.TopicID, s.DurationSeconds, s.Date, s.Type)
	return err
}

func (r Repo) ListStudySessions(ctx context.Context, journeyID string) ([]domain.StudySession, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,journey_id,discipline_id,topic_id,duration_seconds,date,type
FROM study_sessions WHERE journey_id=? ORDER BY date,id`, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StudySession
	for rows.Next() {
		var s domain.StudySession
		if err := rows.Scan(&s.ID, &s.JourneyID, &s.DisciplineID, &s.TopicID, &s.DurationSeconds, &s.Date, &s.Type); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertQuestionLog(ctx context.Context, tx *sql.Tx, q domain.QuestionLog) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO question_logs(id,journey_id,discipline_id,topic_id,total,correct,date)
VALUES (?,?,?,?,?,?,?)`, q.ID, q.JourneyID, q.DisciplineID, q.TopicID, q.Total, q.Correct, q.Date)
	return err
}

func (r Repo) ListQuestionLogs(ctx context.Context, journeyID string) ([]domain.QuestionLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,journey_id,discipline_id,topic_id,total,correct,date
FROM question_logs WHERE journey_id=? ORDER BY date,id`, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.QuestionLog
	for rows.Next() {
		var q domain.QuestionLog
		if err := rows.Scan(&q.ID, &q.JourneyID, &q.DisciplineID, &q.TopicID, &q.Total, &q.Correct, &q.Date); err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func (r Repo) InsertRevision(ctx context.Context, tx *sql.Tx, rev domain.Revision) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO revisions(id,journey_id,topic_id,due_date,label,completed,completed_at)
VALUES (?,?,?,?,?,?,?)`, rev.ID, rev.JourneyID, rev.TopicID, rev.DueDate, rev.Label, boolInt(rev.Completed), nullableStringPtr(rev.CompletedAt))
	return err
}

func (r Repo) GetRevision(ctx context.Context, id string) (domain.Revision, error) {
	var rev domain.Revision
	var completed int
	var completedAt sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,journey_id,topic_id,due_date,label,completed,completed_at
FROM revisions WHERE id=?`, id).Scan(&rev.ID, &rev.JourneyID, &rev.TopicID, &rev.DueDate, &rev.Label, &completed, &completedAt)
	if err == sql.ErrNoRows {
		return rev, ErrNotFound
	}
	if err != nil {
		return rev, err
	}
	rev.Completed = completed != 0
	if completedAt.Valid {
		rev.CompletedAt = &completedAt.String
	}
	return rev, nil
}

func (r Repo) ListRevisions(ctx context.Context, journeyID string) ([]domain.Revision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,journey_id,topic_id,due_date,label,completed,completed_at
FROM revisions WHERE journey_id=? ORDER BY due_date,id`, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Revision
	for rows.Next() {
		var rev domain.Revision
		var completed int
		var completedAt sql.NullString
		if err := rows.Scan(&rev.ID, &rev.JourneyID, &rev.TopicID, &rev.DueDate, &rev.Label, &completed, &completedAt); err != nil {
			return nil, err
		}
		rev.Completed = completed != 0
		if completedAt.Valid {
			rev.CompletedAt = &completedAt.String
		}
		res = append(res, rev)
	}
	return res, rows.Err()
}

// MarkRevisionCompleted flips the completed flag. It never unflips: callers
// rely on completion being one-way.
func (r Repo) MarkRevisionCompleted(ctx context.Context, tx *sql.Tx, id, completedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE revisions SET completed=1, completed_at=? WHERE id=? AND completed=0`, completedAt, id)
	return err
}

func (r Repo) GetTopicStatus(ctx context.Context, journeyID, topicID string) (domain.TopicStatus, bool, error) {
	var st domain.TopicStatus
	var pending, pdf, video, law, questions, summary int
	err := r.DB.QueryRowContext(ctx, `SELECT pending,pdf,video,law,questions,summary
FROM topic_status WHERE journey_id=? AND topic_id=?`, journeyID, topicID).
		Scan(&pending, &pdf, &video, &law, &questions, &summary)
	if err == sql.ErrNoRows {
		return st, false, nil
	}
	if err != nil {
		return st, false, err
	}
	st = domain.TopicStatus{
		Pending:   pending != 0,
		PDF:       pdf != 0,
		Video:     video != 0,
		Law:       law != 0,
		Questions: questions != 0,
		Summary:   summary != 0,
	}
	return st, true, nil
}

func (r Repo) UpsertTopicStatus(ctx context.Context, tx *sql.Tx, journeyID, topicID string, st domain.TopicStatus) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO topic_status(journey_id,topic_id,pending,pdf,video,law,questions,summary)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(journey_id,topic_id) DO UPDATE SET
pending=excluded.pending, pdf=excluded.pdf, video=excluded.video,
law=excluded.law, questions=excluded.questions, summary=excluded.summary`,
		journeyID, topicID, boolInt(st.Pending), boolInt(st.PDF), boolInt(st.Video), boolInt(st.Law), boolInt(st.Questions), boolInt(st.Summary))
	return err
}

func (r Repo) ListTopicStatus(ctx context.Context, journeyID string) (domain.StatusMap, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT topic_id,pending,pdf,video,law,questions,summary
FROM topic_status WHERE journey_id=?`, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := domain.StatusMap{}
	for rows.Next() {
		var topicID string
		var pending, pdf, video, law, questions, summary int
		if err := rows.Scan(&topicID, &pending, &pdf, &video, &law, &questions, &summary); err != nil {
			return nil, err
		}
		res[topicID] = domain.TopicStatus{
			Pending:   pending != 0,
			PDF:       pdf != 0,
			Video:     video != 0,
			Law:       law != 0,
			Questions: questions != 0,
			Summary:   summary != 0,
		}
	}
	return res, rows.Err()
}

// LoadStudyData assembles the full aggregate for one journey.
func (r Repo) LoadStudyData(ctx context.Context, journeyID string) (domain.StudyData, error) {
	var data domain.StudyData
	var err error
	if data.Sessions, err = r.ListStudySessions(ctx, journeyID); err != nil {
		return data, err
	}
	if data.Questions, err = r.ListQuestionLogs(ctx, journeyID); err != nil {
		return data, err
	}
	if data.Revisions, err = r.ListRevisions(ctx, journeyID); err != nil {
		return data, err
	}
	if data.TopicStatus, err = r.ListTopicStatus(ctx, journeyID); err != nil {
		return data, err
	}
	return data, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

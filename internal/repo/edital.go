package repo

import (
	"context"
	"database/sql"

	"studyline/internal/domain"
)

func (r Repo) InsertDiscipline(ctx context.Context, tx *sql.Tx, d domain.Discipline) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO disciplines(id,journey_id,name,position) VALUES (?,?,?,?)`,
		d.ID, d.JourneyID, d.Name, d.Position)
	return err
}

func (r Repo) InsertTopic(ctx context.Context, tx *sql.Tx, t domain.Topic) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO topics(id,discipline_id,name,position) VALUES (?,?,?,?)`,
		t.ID, t.DisciplineID, t.Name, t.Position)
	return err
}

func (r Repo) RenameDiscipline(ctx context.Context, id, name string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE disciplines SET name=? WHERE id=?`, name, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) RenameTopic(ctx context.Context, id, name string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE topics SET name=? WHERE id=?`, name, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDiscipline removes a discipline and its topics. Study data rows that
// reference the removed topics stay behind.
func (r Repo) DeleteDiscipline(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM disciplines WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTopic(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM topics WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetDiscipline(ctx context.Context, id string) (domain.Discipline, error) {
	var d domain.Discipline
	err := r.DB.QueryRowContext(ctx, `SELECT id,journey_id,name,position FROM disciplines WHERE id=?`, id).
		Scan(&d.ID, &d.JourneyID, &d.Name, &d.Position)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) GetTopic(ctx context.Context, id string) (domain.Topic, error) {
	var t domain.Topic
	err := r.DB.QueryRowContext(ctx, `SELECT id,discipline_id,name,position FROM topics WHERE id=?`, id).
		Scan(&t.ID, &t.DisciplineID, &t.Name, &t.Position)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// ListEdital returns the journey's disciplines with topics nested, ordered by
// position.
func (r Repo) ListEdital(ctx context.Context, journeyID string) ([]domain.Discipline, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,journey_id,name,position FROM disciplines WHERE journey_id=? ORDER BY position,id`, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var disciplines []domain.Discipline
	index := map[string]int{}
	for rows.Next() {
		var d domain.Discipline
		if err := rows.Scan(&d.ID, &d.JourneyID, &d.Name, &d.Position); err != nil {
			return nil, err
		}
		index[d.ID] = len(disciplines)
		disciplines = append(disciplines, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(disciplines) == 0 {
		return disciplines, nil
	}

	topicRows, err := r.DB.QueryContext(ctx, `SELECT t.id,t.discipline_id,t.name,t.position
FROM topics t JOIN disciplines d ON d.id=t.discipline_id
WHERE d.journey_id=? ORDER BY t.position,t.id`, journeyID)
	if err != nil {
		return nil, err
	}
	defer topicRows.Close()
	for topicRows.Next() {
		var t domain.Topic
		if err := topicRows.Scan(&t.ID, &t.DisciplineID, &t.Name, &t.Position); err != nil {
			return nil, err
		}
		if i, ok := index[t.DisciplineID]; ok {
			disciplines[i].Topics = append(disciplines[i].Topics, t)
		}
	}
	return disciplines, topicRows.Err()
}

// TopicIndex maps topic id to its topic and owning discipline for one journey.
type TopicIndex struct {
	Topics      map[string]domain.Topic
	Disciplines map[string]domain.Discipline
}

func (r Repo) BuildTopicIndex(ctx context.Context, journeyID string) (TopicIndex, error) {
	idx := TopicIndex{
		Topics:      map[string]domain.Topic{},
		Disciplines: map[string]domain.Discipline{},
	}
	edital, err := r.ListEdital(ctx, journeyID)
	if err != nil {
		return idx, err
	}
	for _, d := range edital {
		stripped := d
		stripped.Topics = nil
		idx.Disciplines[d.ID] = stripped
		for _, t := range d.Topics {
			idx.Topics[t.ID] = t
		}
	}
	return idx, nil
}

package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyline/internal/config"
	"studyline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanJourney(row *sql.Row) (domain.Journey, error) {
	var j domain.Journey
	var exam sql.NullString
	err := row.Scan(&j.ID, &j.OwnerID, &j.Name, &exam, &j.Status, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if exam.Valid {
		j.ExamName = exam.String
	}
	return j, err
}

func (r Repo) InsertJourney(ctx context.Context, tx *sql.Tx, j domain.Journey) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO journeys(id,owner_id,name,exam_name,status,created_at) VALUES (?,?,?,?,?,?)`,
		j.ID, j.OwnerID, j.Name, nullable(j.ExamName), j.Status, j.CreatedAt)
	return err
}

func (r Repo) GetJourney(ctx context.Context, id string) (domain.Journey, error) {
	return scanJourney(r.DB.QueryRowContext(ctx, `SELECT id,owner_id,name,COALESCE(exam_name,'') AS exam_name,status,created_at FROM journeys WHERE id=?`, id))
}

// SingleJourney returns the only journey in the workspace, or an error when
// zero or several exist.
func (r Repo) SingleJourney(ctx context.Context) (domain.Journey, error) {
	journeys, err := r.ListJourneys(ctx, "")
	if err != nil {
		return domain.Journey{}, err
	}
	if len(journeys) == 0 {
		return domain.Journey{}, ErrNotFound
	}
	if len(journeys) > 1 {
		return domain.Journey{}, fmt.Errorf("multiple journeys exist; specify --journey")
	}
	return journeys[0], nil
}

func (r Repo) ListJourneys(ctx context.Context, ownerID string) ([]domain.Journey, error) {
	query := `SELECT id,owner_id,name,COALESCE(exam_name,'') AS exam_name,status,created_at FROM journeys`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id=?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Journey
	for rows.Next() {
		var j domain.Journey
		if err := rows.Scan(&j.ID, &j.OwnerID, &j.Name, &j.ExamName, &j.Status, &j.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

func (r Repo) UpdateJourney(ctx context.Context, id string, status string, name *string) error {
	var (
		fields []string
		args   []any
	)
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE journeys SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteJourney(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM journeys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertJourneyConfig(ctx context.Context, journeyID string, cfg *config.Config) error {
	return upsertJourneyConfig(ctx, r.DB, nil, journeyID, cfg)
}

func (r Repo) UpsertJourneyConfigTx(ctx context.Context, tx *sql.Tx, journeyID string, cfg *config.Config) error {
	return upsertJourneyConfig(ctx, nil, tx, journeyID, cfg)
}

func upsertJourneyConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, journeyID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Journey.ID = journeyID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO journey_configs(journey_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(journey_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, journeyID, string(payload), now, now)
	return err
}

func (r Repo) GetJourneyConfig(ctx context.Context, journeyID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM journey_configs WHERE journey_id=?`, journeyID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Journey.ID == "" {
		cfg.Journey.ID = journeyID
	}
	return &cfg, cfg.Validate()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, journeyID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, journeyID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, journeyID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if journeyID != "" {
		clauses = append(clauses, "journey_id=?")
		args = append(args, journeyID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,journey_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, journeyID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if journeyID != "" {
		clauses = append(clauses, "journey_id=?")
		args = append(args, journeyID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,journey_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var journeyID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &journeyID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if journeyID.Valid {
			e.JourneyID = journeyID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a journey.
func (r Repo) LatestEventID(ctx context.Context, journeyID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE journey_id=?`, journeyID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"studyline/internal/config"
	"studyline/internal/domain"
	"studyline/internal/events"
	"studyline/internal/repo"
)

// QuizSpec describes one quiz generation request to the AI collaborator.
type QuizSpec struct {
	Exam       string
	Discipline string
	Topic      string
	Count      int
	Model      string
}

// QuizResult carries generated questions and where they came from.
type QuizResult struct {
	Questions []domain.QuizQuestion `json:"questions"`
	Source    string                `json:"source" enum:"ai,fallback"`
}

// Collaborator is the AI surface the engine depends on. Implementations are
// expected to fall back to canned content rather than fail a quiz request.
type Collaborator interface {
	GenerateQuiz(ctx context.Context, spec QuizSpec) (QuizResult, error)
	ExtractEdital(ctx context.Context, model, text string) ([]EditalDisciplineInput, error)
	SummarizeTopic(ctx context.Context, model, discipline, topic string) (string, error)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	AI     Collaborator
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// journeyConfig resolves the effective config for a journey: the stored one,
// the process-level one, or defaults.
func (e Engine) journeyConfig(ctx context.Context, journeyID string) (*config.Config, error) {
	cfg, err := e.Repo.GetJourneyConfig(ctx, journeyID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if e.Config != nil {
		return e.Config, nil
	}
	return config.Default(journeyID), nil
}

type JourneyCreateOptions struct {
	ID      string
	Name    string
	Exam    string
	ActorID string
}

func (e Engine) CreateJourney(ctx context.Context, opts JourneyCreateOptions) (domain.Journey, error) {
	if opts.Name == "" {
		return domain.Journey{}, errors.New("name is required")
	}
	if opts.ActorID == "" {
		return domain.Journey{}, errors.New("actor is required")
	}
	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.ActorID+"|"+opts.Name+"|"+now)).String()
	}
	j := domain.Journey{
		ID:        id,
		OwnerID:   opts.ActorID,
		Name:      opts.Name,
		ExamName:  opts.Exam,
		Status:    "active",
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Journey{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertJourney(ctx, tx, j); err != nil {
		return domain.Journey{}, fmt.Errorf("insert journey: %w", err)
	}
	cfg := config.Default(j.ID)
	cfg.Journey.Exam = opts.Exam
	if err := e.Repo.UpsertJourneyConfigTx(ctx, tx, j.ID, cfg); err != nil {
		return domain.Journey{}, fmt.Errorf("insert journey config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "journey.created", j.ID, "journey", j.ID, opts.ActorID, events.EventPayload{"name": j.Name, "exam": j.ExamName}); err != nil {
		return domain.Journey{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Journey{}, err
	}
	return j, nil
}

func (e Engine) ArchiveJourney(ctx context.Context, journeyID, actorID string) error {
	j, err := e.Repo.GetJourney(ctx, journeyID)
	if err != nil {
		return err
	}
	if j.OwnerID != actorID {
		return ForbiddenError{Reason: "only the journey owner can archive it"}
	}
	if err := e.Repo.UpdateJourney(ctx, journeyID, "archived", nil); err != nil {
		return err
	}
	return e.appendEvent(ctx, "journey.archived", journeyID, "journey", journeyID, actorID, nil)
}

// DeleteJourney removes a journey and everything hanging off it. Owner only.
func (e Engine) DeleteJourney(ctx context.Context, journeyID, actorID string) error {
	j, err := e.Repo.GetJourney(ctx, journeyID)
	if err != nil {
		return err
	}
	if j.OwnerID != actorID {
		return ForbiddenError{Reason: "only the journey owner can delete it"}
	}
	if err := e.Repo.DeleteJourney(ctx, journeyID); err != nil {
		return err
	}
	return e.appendEvent(ctx, "journey.deleted", "", "journey", journeyID, actorID, nil)
}

// EditalDisciplineInput is one discipline with its topic names, in syllabus
// order, as supplied by an import or the AI extractor.
type EditalDisciplineInput struct {
	Name   string   `json:"name"`
	Topics []string `json:"topics"`
}

type EditalImportOptions struct {
	JourneyID   string
	Disciplines []EditalDisciplineInput
	ActorID     string
}

// Syllabus ids derive from journey, position and name so that re-importing
// the same edital keeps them stable. The position salt lets the same name
// appear twice in one discipline, which real editais do.
func stableDisciplineID(journeyID string, position int, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|discipline|%d|%s", journeyID, position, name))).String()
}

func stableTopicID(disciplineID string, position int, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|topic|%d|%s", disciplineID, position, name))).String()
}

// ImportEdital replaces the journey's syllabus with the given structure.
// Status, sessions and revisions for previously known topic IDs are kept as
// orphans and resurface only if the same IDs return.
func (e Engine) ImportEdital(ctx context.Context, opts EditalImportOptions) ([]domain.Discipline, error) {
	if len(opts.Disciplines) == 0 {
		return nil, errors.New("edital has no disciplines")
	}
	for _, d := range opts.Disciplines {
		if d.Name == "" {
			return nil, errors.New("discipline name is required")
		}
	}
	if _, err := e.Repo.GetJourney(ctx, opts.JourneyID); err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM disciplines WHERE journey_id=?`, opts.JourneyID); err != nil {
		return nil, err
	}
	var result []domain.Discipline
	for di, din := range opts.Disciplines {
		d := domain.Discipline{
			ID:        stableDisciplineID(opts.JourneyID, di, din.Name),
			JourneyID: opts.JourneyID,
			Name:      din.Name,
			Position:  di,
		}
		if err := e.Repo.InsertDiscipline(ctx, tx, d); err != nil {
			return nil, fmt.Errorf("insert discipline %q: %w", din.Name, err)
		}
		for ti, topicName := range din.Topics {
			t := domain.Topic{
				ID:           stableTopicID(d.ID, ti, topicName),
				DisciplineID: d.ID,
				Name:         topicName,
				Position:     ti,
			}
			if err := e.Repo.InsertTopic(ctx, tx, t); err != nil {
				return nil, fmt.Errorf("insert topic %q: %w", topicName, err)
			}
			d.Topics = append(d.Topics, t)
		}
		result = append(result, d)
	}
	if err := e.Events.Append(ctx, tx, "edital.imported", opts.JourneyID, "edital", opts.JourneyID, opts.ActorID,
		events.EventPayload{"disciplines": len(result)}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// ImportEditalText runs the AI extractor over raw syllabus text, then imports
// the structured result.
func (e Engine) ImportEditalText(ctx context.Context, journeyID, text, actorID string) ([]domain.Discipline, error) {
	if e.AI == nil {
		return nil, errors.New("ai collaborator not configured")
	}
	cfg, err := e.journeyConfig(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	disciplines, err := e.AI.ExtractEdital(ctx, cfg.AI.Model, text)
	if err != nil {
		return nil, fmt.Errorf("extract edital: %w", err)
	}
	return e.ImportEdital(ctx, EditalImportOptions{JourneyID: journeyID, Disciplines: disciplines, ActorID: actorID})
}

func (e Engine) AddDiscipline(ctx context.Context, journeyID, name, actorID string) (domain.Discipline, error) {
	if name == "" {
		return domain.Discipline{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetJourney(ctx, journeyID); err != nil {
		return domain.Discipline{}, err
	}
	existing, err := e.Repo.ListEdital(ctx, journeyID)
	if err != nil {
		return domain.Discipline{}, err
	}
	d := domain.Discipline{
		ID:        stableDisciplineID(journeyID, len(existing), name),
		JourneyID: journeyID,
		Name:      name,
		Position:  len(existing),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Discipline{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDiscipline(ctx, tx, d); err != nil {
		return domain.Discipline{}, err
	}
	if err := e.Events.Append(ctx, tx, "edital.discipline_added", journeyID, "discipline", d.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Discipline{}, err
	}
	return d, tx.Commit()
}

func (e Engine) AddTopic(ctx context.Context, disciplineID, name, actorID string) (domain.Topic, error) {
	if name == "" {
		return domain.Topic{}, errors.New("name is required")
	}
	d, err := e.Repo.GetDiscipline(ctx, disciplineID)
	if err != nil {
		return domain.Topic{}, err
	}
	siblings, err := e.Repo.ListEdital(ctx, d.JourneyID)
	if err != nil {
		return domain.Topic{}, err
	}
	position := 0
	for _, sd := range siblings {
		if sd.ID == disciplineID {
			position = len(sd.Topics)
		}
	}
	t := domain.Topic{
		ID:           stableTopicID(disciplineID, position, name),
		DisciplineID: disciplineID,
		Name:         name,
		Position:     position,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Topic{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTopic(ctx, tx, t); err != nil {
		return domain.Topic{}, err
	}
	if err := e.Events.Append(ctx, tx, "edital.topic_added", d.JourneyID, "topic", t.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Topic{}, err
	}
	return t, tx.Commit()
}

func (e Engine) RenameDiscipline(ctx context.Context, disciplineID, name, actorID string) (domain.Discipline, error) {
	if name == "" {
		return domain.Discipline{}, errors.New("name is required")
	}
	d, err := e.Repo.GetDiscipline(ctx, disciplineID)
	if err != nil {
		return domain.Discipline{}, err
	}
	if err := e.Repo.RenameDiscipline(ctx, disciplineID, name); err != nil {
		return domain.Discipline{}, err
	}
	d.Name = name
	return d, e.appendEvent(ctx, "edital.discipline_renamed", d.JourneyID, "discipline", d.ID, actorID, events.EventPayload{"name": name})
}

func (e Engine) RenameTopic(ctx context.Context, topicID, name, actorID string) (domain.Topic, error) {
	if name == "" {
		return domain.Topic{}, errors.New("name is required")
	}
	t, err := e.Repo.GetTopic(ctx, topicID)
	if err != nil {
		return domain.Topic{}, err
	}
	d, err := e.Repo.GetDiscipline(ctx, t.DisciplineID)
	if err != nil {
		return domain.Topic{}, err
	}
	if err := e.Repo.RenameTopic(ctx, topicID, name); err != nil {
		return domain.Topic{}, err
	}
	t.Name = name
	return t, e.appendEvent(ctx, "edital.topic_renamed", d.JourneyID, "topic", t.ID, actorID, events.EventPayload{"name": name})
}

func (e Engine) DeleteTopic(ctx context.Context, topicID, actorID string) error {
	t, err := e.Repo.GetTopic(ctx, topicID)
	if err != nil {
		return err
	}
	d, err := e.Repo.GetDiscipline(ctx, t.DisciplineID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTopic(ctx, tx, topicID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "edital.topic_deleted", d.JourneyID, "topic", topicID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeleteDiscipline(ctx context.Context, disciplineID, actorID string) error {
	d, err := e.Repo.GetDiscipline(ctx, disciplineID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDiscipline(ctx, tx, disciplineID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "edital.discipline_deleted", d.JourneyID, "discipline", disciplineID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

type StudySessionOptions struct {
	JourneyID       string
	DisciplineID    string
	TopicID         string
	DurationSeconds int
	Date            string
	Type            string
	ActorID         string
}

// RecordStudySession stores one study session and applies its side effects in
// a single transaction: topic status flags advance, and a timed session
// schedules its spaced repetitions.
func (e Engine) RecordStudySession(ctx context.Context, opts StudySessionOptions) (domain.StudySession, []domain.Revision, error) {
	if !ValidSessionType(opts.Type) {
		return domain.StudySession{}, nil, fmt.Errorf("unknown session type %q", opts.Type)
	}
	if opts.DurationSeconds < 0 {
		return domain.StudySession{}, nil, errors.New("duration must not be negative")
	}
	t, err := e.Repo.GetTopic(ctx, opts.TopicID)
	if err != nil {
		return domain.StudySession{}, nil, err
	}
	if opts.DisciplineID == "" {
		opts.DisciplineID = t.DisciplineID
	}
	if t.DisciplineID != opts.DisciplineID {
		return domain.StudySession{}, nil, fmt.Errorf("topic %s not in discipline %s", opts.TopicID, opts.DisciplineID)
	}
	d, err := e.Repo.GetDiscipline(ctx, t.DisciplineID)
	if err != nil {
		return domain.StudySession{}, nil, err
	}
	if d.JourneyID != opts.JourneyID {
		return domain.StudySession{}, nil, fmt.Errorf("topic %s not in journey %s", opts.TopicID, opts.JourneyID)
	}
	cfg, err := e.journeyConfig(ctx, opts.JourneyID)
	if err != nil {
		return domain.StudySession{}, nil, err
	}
	when := e.now().UTC()
	if opts.Date != "" {
		when, err = time.Parse(time.RFC3339, opts.Date)
		if err != nil {
			parsed, dayErr := time.Parse(dateLayout, opts.Date)
			if dayErr != nil {
				return domain.StudySession{}, nil, fmt.Errorf("invalid date %q", opts.Date)
			}
			when = parsed
		}
		when = when.UTC()
	}
	s := domain.StudySession{
		ID:              uuid.NewString(),
		JourneyID:       opts.JourneyID,
		DisciplineID:    opts.DisciplineID,
		TopicID:         opts.TopicID,
		DurationSeconds: opts.DurationSeconds,
		Date:            when.Format(time.RFC3339),
		Type:            opts.Type,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StudySession{}, nil, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertStudySession(ctx, tx, s); err != nil {
		return domain.StudySession{}, nil, fmt.Errorf("insert session: %w", err)
	}

	current, _, err := e.Repo.GetTopicStatus(ctx, opts.JourneyID, opts.TopicID)
	if err != nil {
		return domain.StudySession{}, nil, err
	}
	updated := ApplyStudy(domain.StatusMap{opts.TopicID: current}, opts.TopicID, opts.Type)
	if err := e.Repo.UpsertTopicStatus(ctx, tx, opts.JourneyID, opts.TopicID, updated[opts.TopicID]); err != nil {
		return domain.StudySession{}, nil, fmt.Errorf("update topic status: %w", err)
	}

	var revisions []domain.Revision
	if opts.DurationSeconds > 0 {
		revisions = ScheduleReviews(opts.JourneyID, opts.TopicID, when, cfg.Review.OffsetsDays)
		for _, rev := range revisions {
			if err := e.Repo.InsertRevision(ctx, tx, rev); err != nil {
				return domain.StudySession{}, nil, fmt.Errorf("insert revision: %w", err)
			}
		}
	}
	if err := e.Events.Append(ctx, tx, "study.session_recorded", opts.JourneyID, "session", s.ID, opts.ActorID,
		events.EventPayload{"topic_id": s.TopicID, "type": s.Type, "duration_seconds": s.DurationSeconds, "revisions": len(revisions)}); err != nil {
		return domain.StudySession{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StudySession{}, nil, err
	}
	return s, revisions, nil
}

type QuestionLogOptions struct {
	JourneyID    string
	DisciplineID string
	TopicID      string
	Total        int
	Correct      int
	Date         string
	ActorID      string
}

func (e Engine) LogQuestions(ctx context.Context, opts QuestionLogOptions) (domain.QuestionLog, error) {
	if opts.Total <= 0 {
		return domain.QuestionLog{}, errors.New("total must be positive")
	}
	if opts.Correct < 0 || opts.Correct > opts.Total {
		return domain.QuestionLog{}, errors.New("correct must be between 0 and total")
	}
	t, err := e.Repo.GetTopic(ctx, opts.TopicID)
	if err != nil {
		return domain.QuestionLog{}, err
	}
	if opts.DisciplineID == "" {
		opts.DisciplineID = t.DisciplineID
	}
	date := opts.Date
	if date == "" {
		date = e.now().UTC().Format(time.RFC3339)
	}
	q := domain.QuestionLog{
		ID:           uuid.NewString(),
		JourneyID:    opts.JourneyID,
		DisciplineID: opts.DisciplineID,
		TopicID:      opts.TopicID,
		Total:        opts.Total,
		Correct:      opts.Correct,
		Date:         date,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.QuestionLog{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertQuestionLog(ctx, tx, q); err != nil {
		return domain.QuestionLog{}, fmt.Errorf("insert question log: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "study.questions_logged", opts.JourneyID, "question_log", q.ID, opts.ActorID,
		events.EventPayload{"topic_id": q.TopicID, "total": q.Total, "correct": q.Correct}); err != nil {
		return domain.QuestionLog{}, err
	}
	return q, tx.Commit()
}

// CompleteRevision marks a revision done. Completing an already completed or
// unknown revision is a silent no-op, so agendas holding stale ids after an
// edital edit keep working.
func (e Engine) CompleteRevision(ctx context.Context, journeyID, revisionID, actorID string) (domain.Revision, error) {
	rev, err := e.Repo.GetRevision(ctx, revisionID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && rev.JourneyID != journeyID) {
		return domain.Revision{ID: revisionID, JourneyID: journeyID, Completed: true}, nil
	}
	if err != nil {
		return domain.Revision{}, err
	}
	if rev.Completed {
		return rev, nil
	}
	completedAt := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Revision{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.MarkRevisionCompleted(ctx, tx, revisionID, completedAt); err != nil {
		return domain.Revision{}, err
	}
	if err := e.Events.Append(ctx, tx, "review.completed", journeyID, "revision", revisionID, actorID,
		events.EventPayload{"topic_id": rev.TopicID, "label": rev.Label}); err != nil {
		return domain.Revision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Revision{}, err
	}
	rev.Completed = true
	rev.CompletedAt = &completedAt
	return rev, nil
}

// Agenda returns the journey's pending revisions partitioned around today.
func (e Engine) Agenda(ctx context.Context, journeyID string) (domain.ReviewAgenda, error) {
	revisions, err := e.Repo.ListRevisions(ctx, journeyID)
	if err != nil {
		return domain.ReviewAgenda{}, err
	}
	return ClassifyRevisions(revisions, e.now().UTC()), nil
}

// StatsReport is the full performance picture for one journey.
type StatsReport struct {
	Progress     domain.Progress          `json:"progress"`
	ByDiscipline []domain.DisciplineStats `json:"by_discipline"`
	ByTopic      []domain.TopicStats      `json:"by_topic"`
}

func (e Engine) Stats(ctx context.Context, journeyID string) (StatsReport, error) {
	if _, err := e.Repo.GetJourney(ctx, journeyID); err != nil {
		return StatsReport{}, err
	}
	data, err := e.Repo.LoadStudyData(ctx, journeyID)
	if err != nil {
		return StatsReport{}, err
	}
	idx, err := e.Repo.BuildTopicIndex(ctx, journeyID)
	if err != nil {
		return StatsReport{}, err
	}
	return StatsReport{
		Progress:     ComputeProgress(data, e.now().UTC()),
		ByDiscipline: AggregateByDiscipline(data.Questions, idx.Disciplines),
		ByTopic:      AggregateByTopic(data.Questions, idx.Topics),
	}, nil
}

func (e Engine) CreateGroup(ctx context.Context, name, actorID string) (domain.Group, error) {
	if name == "" {
		return domain.Group{}, errors.New("name is required")
	}
	code, err := inviteCode()
	if err != nil {
		return domain.Group{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	g := domain.Group{
		ID:         uuid.NewString(),
		Name:       name,
		OwnerID:    actorID,
		InviteCode: code,
		CreatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertGroup(ctx, tx, g); err != nil {
		return domain.Group{}, err
	}
	if err := e.Repo.InsertGroupMember(ctx, tx, domain.GroupMember{GroupID: g.ID, ActorID: actorID, Role: "owner", JoinedAt: now}); err != nil {
		return domain.Group{}, err
	}
	if err := e.Events.Append(ctx, tx, "group.created", "", "group", g.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Group{}, err
	}
	return g, tx.Commit()
}

func (e Engine) JoinGroup(ctx context.Context, inviteCode, actorID string) (domain.Group, error) {
	g, err := e.Repo.GetGroupByInviteCode(ctx, inviteCode)
	if err != nil {
		return domain.Group{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, err
	}
	defer tx.Rollback()
	m := domain.GroupMember{GroupID: g.ID, ActorID: actorID, Role: "member", JoinedAt: e.now().UTC().Format(time.RFC3339)}
	if err := e.Repo.InsertGroupMember(ctx, tx, m); err != nil {
		return domain.Group{}, err
	}
	if err := e.Events.Append(ctx, tx, "group.joined", "", "group", g.ID, actorID, nil); err != nil {
		return domain.Group{}, err
	}
	return g, tx.Commit()
}

func (e Engine) LeaveGroup(ctx context.Context, groupID, actorID string) error {
	g, err := e.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID == actorID {
		return ForbiddenError{Reason: "group owner cannot leave; delete the group instead"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteGroupMember(ctx, tx, groupID, actorID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "group.left", "", "group", groupID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RotateInviteCode replaces the group's invite code so old invites stop
// working. Owner only.
func (e Engine) RotateInviteCode(ctx context.Context, groupID, actorID string) (domain.Group, error) {
	g, err := e.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return domain.Group{}, err
	}
	if g.OwnerID != actorID {
		return domain.Group{}, ForbiddenError{Reason: "only the group owner can rotate the invite code"}
	}
	code, err := inviteCode()
	if err != nil {
		return domain.Group{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Group{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateGroupInviteCode(ctx, tx, groupID, code); err != nil {
		return domain.Group{}, err
	}
	if err := e.Events.Append(ctx, tx, "group.invite_rotated", "", "group", groupID, actorID, nil); err != nil {
		return domain.Group{}, err
	}
	g.InviteCode = code
	return g, tx.Commit()
}

func (e Engine) DeleteGroup(ctx context.Context, groupID, actorID string) error {
	g, err := e.Repo.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g.OwnerID != actorID {
		return ForbiddenError{Reason: "only the group owner can delete the group"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteGroup(ctx, tx, groupID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "group.deleted", "", "group", groupID, actorID, events.EventPayload{"name": g.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// Leaderboard ranks group members by XP, highest first. Only members may look.
func (e Engine) Leaderboard(ctx context.Context, groupID, actorID string) ([]domain.LeaderboardEntry, error) {
	if _, err := e.Repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	member, err := e.Repo.IsGroupMember(ctx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ForbiddenError{Reason: "only group members can view the leaderboard"}
	}
	totals, err := e.Repo.GroupMemberTotals(ctx, groupID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(totals))
	for _, t := range totals {
		xp := XP(t.StudySeconds, t.Questions)
		entries = append(entries, domain.LeaderboardEntry{ActorID: t.ActorID, XP: xp, Level: Level(xp)})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].XP > entries[j].XP })
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// SubscriptionActive reports whether the actor's subscription grants paid
// access right now.
func (e Engine) SubscriptionActive(ctx context.Context, actorID string) (bool, error) {
	sub, err := e.Repo.GetSubscription(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sub.Status != "active" {
		return false, nil
	}
	if sub.CurrentPeriodEnd == "" {
		return true, nil
	}
	end, err := time.Parse(time.RFC3339, sub.CurrentPeriodEnd)
	if err != nil {
		return false, nil
	}
	return e.now().UTC().Before(end), nil
}

type QuizOptions struct {
	JourneyID string
	TopicID   string
	Count     int
	ActorID   string
}

// GenerateQuiz produces a quiz for a topic. Free-tier actors get a per-day
// budget; subscribers skip the quota. The counter only moves after the quiz is
// actually produced.
func (e Engine) GenerateQuiz(ctx context.Context, opts QuizOptions) (QuizResult, error) {
	if e.AI == nil {
		return QuizResult{}, errors.New("ai collaborator not configured")
	}
	t, err := e.Repo.GetTopic(ctx, opts.TopicID)
	if err != nil {
		return QuizResult{}, err
	}
	d, err := e.Repo.GetDiscipline(ctx, t.DisciplineID)
	if err != nil {
		return QuizResult{}, err
	}
	if d.JourneyID != opts.JourneyID {
		return QuizResult{}, repo.ErrNotFound
	}
	j, err := e.Repo.GetJourney(ctx, opts.JourneyID)
	if err != nil {
		return QuizResult{}, err
	}
	cfg, err := e.journeyConfig(ctx, opts.JourneyID)
	if err != nil {
		return QuizResult{}, err
	}

	today := e.now().UTC().Format(dateLayout)
	active, err := e.SubscriptionActive(ctx, opts.ActorID)
	if err != nil {
		return QuizResult{}, err
	}
	used := 0
	if !active {
		counter, err := e.Repo.GetUsageCounter(ctx, opts.ActorID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return QuizResult{}, err
		}
		if err == nil && counter.Date == today {
			used = counter.Count
		}
		if used >= cfg.Quota.FreeDailyQuizzes {
			return QuizResult{}, PaywallError{Limit: cfg.Quota.FreeDailyQuizzes}
		}
	}

	count := opts.Count
	if count <= 0 {
		count = cfg.AI.QuizQuestions
	}
	result, err := e.AI.GenerateQuiz(ctx, QuizSpec{
		Exam:       j.ExamName,
		Discipline: d.Name,
		Topic:      t.Name,
		Count:      count,
		Model:      cfg.AI.Model,
	})
	if err != nil {
		return QuizResult{}, fmt.Errorf("generate quiz: %w", err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return QuizResult{}, err
	}
	defer tx.Rollback()
	if !active {
		if err := e.Repo.SetUsageCounter(ctx, tx, domain.UsageCounter{ActorID: opts.ActorID, Date: today, Count: used + 1}); err != nil {
			return QuizResult{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "quiz.generated", opts.JourneyID, "topic", opts.TopicID, opts.ActorID,
		events.EventPayload{"questions": len(result.Questions), "source": result.Source}); err != nil {
		return QuizResult{}, err
	}
	return result, tx.Commit()
}

// SummarizeTopic asks the AI collaborator for a study summary of a topic.
func (e Engine) SummarizeTopic(ctx context.Context, journeyID, topicID, actorID string) (string, error) {
	if e.AI == nil {
		return "", errors.New("ai collaborator not configured")
	}
	t, err := e.Repo.GetTopic(ctx, topicID)
	if err != nil {
		return "", err
	}
	d, err := e.Repo.GetDiscipline(ctx, t.DisciplineID)
	if err != nil {
		return "", err
	}
	if d.JourneyID != journeyID {
		return "", repo.ErrNotFound
	}
	cfg, err := e.journeyConfig(ctx, journeyID)
	if err != nil {
		return "", err
	}
	summary, err := e.AI.SummarizeTopic(ctx, cfg.AI.Model, d.Name, t.Name)
	if err != nil {
		return "", fmt.Errorf("summarize topic: %w", err)
	}
	return summary, e.appendEvent(ctx, "topic.summarized", journeyID, "topic", topicID, actorID, nil)
}

// GatewayEvent is one parsed payment-gateway webhook notification.
type GatewayEvent struct {
	Type             string `json:"type"`
	ActorID          string `json:"actor_id"`
	Plan             string `json:"plan,omitempty"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty"`
}

// HandleGatewayEvent applies a payment notification to the actor's
// subscription. Unknown event types are acknowledged without effect.
func (e Engine) HandleGatewayEvent(ctx context.Context, evt GatewayEvent) (bool, error) {
	var status string
	switch evt.Type {
	case "subscription.activated", "subscription.renewed":
		status = "active"
	case "subscription.canceled":
		status = "canceled"
	case "payment_failed":
		status = "past_due"
	default:
		return false, nil
	}
	if evt.ActorID == "" {
		return false, errors.New("gateway event missing actor_id")
	}
	plan := evt.Plan
	if plan == "" {
		plan = "premium"
	}
	sub := domain.Subscription{
		ActorID:          evt.ActorID,
		Plan:             plan,
		Status:           status,
		CurrentPeriodEnd: evt.CurrentPeriodEnd,
		UpdatedAt:        e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertSubscription(ctx, tx, sub); err != nil {
		return false, err
	}
	if err := e.Events.Append(ctx, tx, "billing."+evt.Type, "", "subscription", evt.ActorID, evt.ActorID,
		events.EventPayload{"status": status, "plan": plan}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (e Engine) appendEvent(ctx context.Context, evtType, journeyID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, journeyID, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func inviteCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"studyline/internal/config"
	"studyline/internal/db"
	"studyline/internal/domain"
	"studyline/internal/engine"
	"studyline/internal/migrate"
	"studyline/internal/repo"
)

type fakeAI struct {
	quizCalls int
}

func (f *fakeAI) GenerateQuiz(ctx context.Context, spec engine.QuizSpec) (engine.QuizResult, error) {
	f.quizCalls++
	return engine.QuizResult{
		Questions: []domain.QuizQuestion{{
			Question:      "What is " + spec.Topic + "?",
			Options:       []string{"a", "b"},
			CorrectAnswer: 0,
		}},
		Source: "ai",
	}, nil
}

func (f *fakeAI) ExtractEdital(ctx context.Context, model, text string) ([]engine.EditalDisciplineInput, error) {
	return []engine.EditalDisciplineInput{{Name: "Extracted", Topics: []string{"One", "Two"}}}, nil
}

func (f *fakeAI) SummarizeTopic(ctx context.Context, model, discipline, topic string) (string, error) {
	return "summary of " + topic, nil
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	AI     *fakeAI
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("journey-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	ai := &fakeAI{}
	eng.AI = ai
	ctx := context.Background()
	if _, err := eng.CreateJourney(ctx, engine.JourneyCreateOptions{
		ID:      "journey-1",
		Name:    "TRF",
		Exam:    "TRF Analyst",
		ActorID: "ana",
	}); err != nil {
		t.Fatalf("create journey: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, AI: ai}
}

func importEdital(t *testing.T, env testEnv) []domain.Discipline {
	t.Helper()
	disciplines, err := env.Engine.ImportEdital(env.Ctx, engine.EditalImportOptions{
		JourneyID: "journey-1",
		Disciplines: []engine.EditalDisciplineInput{
			{Name: "Portuguese", Topics: []string{"Verbs", "Syntax"}},
			{Name: "Law", Topics: []string{"Constitution"}},
		},
		ActorID: "ana",
	})
	if err != nil {
		t.Fatalf("import edital: %v", err)
	}
	return disciplines
}

func TestImportEditalReplacesStructure(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	if len(disciplines) != 2 || len(disciplines[0].Topics) != 2 {
		t.Fatalf("unexpected edital: %+v", disciplines)
	}
	// a second import replaces the whole structure
	again, err := env.Engine.ImportEdital(env.Ctx, engine.EditalImportOptions{
		JourneyID:   "journey-1",
		Disciplines: []engine.EditalDisciplineInput{{Name: "Portuguese", Topics: []string{"Verbs"}}},
		ActorID:     "ana",
	})
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("expected 1 discipline after re-import, got %d", len(again))
	}
	// same names derive the same ids across imports
	if again[0].ID != disciplines[0].ID || again[0].Topics[0].ID != disciplines[0].Topics[0].ID {
		t.Fatalf("ids must be stable for identical names")
	}
}

func TestImportEditalRepeatedNames(t *testing.T) {
	env := newTestEnv(t)
	// editais repeat section names; ids must still be unique and stable
	input := []engine.EditalDisciplineInput{
		{Name: "Law", Topics: []string{"General provisions", "General provisions"}},
		{Name: "Law", Topics: []string{"General provisions"}},
	}
	disciplines, err := env.Engine.ImportEdital(env.Ctx, engine.EditalImportOptions{
		JourneyID: "journey-1", Disciplines: input, ActorID: "ana",
	})
	if err != nil {
		t.Fatalf("import with repeated names: %v", err)
	}
	if disciplines[0].ID == disciplines[1].ID {
		t.Fatalf("repeated discipline names must not share an id")
	}
	if disciplines[0].Topics[0].ID == disciplines[0].Topics[1].ID {
		t.Fatalf("repeated topic names must not share an id")
	}

	again, err := env.Engine.ImportEdital(env.Ctx, engine.EditalImportOptions{
		JourneyID: "journey-1", Disciplines: input, ActorID: "ana",
	})
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if again[0].Topics[1].ID != disciplines[0].Topics[1].ID {
		t.Fatalf("ids must stay stable across identical imports")
	}

	// adding a duplicate by hand lands at the next position with its own id
	dup, err := env.Engine.AddTopic(env.Ctx, disciplines[1].ID, "General provisions", "ana")
	if err != nil {
		t.Fatalf("add duplicate topic: %v", err)
	}
	if dup.ID == disciplines[1].Topics[0].ID {
		t.Fatalf("added duplicate must get its own id")
	}
}

func TestImportEditalText(t *testing.T) {
	env := newTestEnv(t)
	disciplines, err := env.Engine.ImportEditalText(env.Ctx, "journey-1", "raw syllabus text", "ana")
	if err != nil {
		t.Fatalf("import from text: %v", err)
	}
	if len(disciplines) != 1 || disciplines[0].Name != "Extracted" {
		t.Fatalf("unexpected extraction result: %+v", disciplines)
	}
}

func TestRecordStudySessionSchedulesReviews(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]

	session, revisions, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID:       "journey-1",
		TopicID:         topic.ID,
		DurationSeconds: 1800,
		Type:            "pdf",
		ActorID:         "ana",
	})
	if err != nil {
		t.Fatalf("record session: %v", err)
	}
	if session.DisciplineID != disciplines[0].ID {
		t.Fatalf("discipline not resolved from topic")
	}
	if len(revisions) != 3 {
		t.Fatalf("expected 3 revisions, got %d", len(revisions))
	}
	want := []string{"2024-03-16", "2024-03-22", "2024-04-14"}
	for i, rev := range revisions {
		if rev.DueDate != want[i] {
			t.Fatalf("revision %d due %s, want %s", i, rev.DueDate, want[i])
		}
	}

	st, found, err := env.Engine.Repo.GetTopicStatus(env.Ctx, "journey-1", topic.ID)
	if err != nil || !found {
		t.Fatalf("topic status missing: %v", err)
	}
	if st.Pending || !st.PDF {
		t.Fatalf("status not advanced: %+v", st)
	}
}

func TestRecordStudySessionZeroDurationSkipsReviews(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]

	_, revisions, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1",
		TopicID:   topic.ID,
		Type:      "summary",
		ActorID:   "ana",
	})
	if err != nil {
		t.Fatalf("record session: %v", err)
	}
	if len(revisions) != 0 {
		t.Fatalf("untimed session must not schedule reviews")
	}
	st, _, _ := env.Engine.Repo.GetTopicStatus(env.Ctx, "journey-1", topic.ID)
	if !st.Summary || st.Pending {
		t.Fatalf("status must still advance: %+v", st)
	}
}

func TestRecordStudySessionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]

	if _, _, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: topic.ID, Type: "flashcards", ActorID: "ana",
	}); err == nil {
		t.Fatalf("expected unknown type error")
	}
	if _, _, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: topic.ID, Type: "pdf", DurationSeconds: -1, ActorID: "ana",
	}); err == nil {
		t.Fatalf("expected negative duration error")
	}
	if _, _, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: "missing", Type: "pdf", ActorID: "ana",
	}); err == nil {
		t.Fatalf("expected unknown topic error")
	}
}

func TestCompleteRevisionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]
	_, revisions, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: topic.ID, DurationSeconds: 600, Type: "video", ActorID: "ana",
	})
	if err != nil {
		t.Fatalf("record session: %v", err)
	}

	done, err := env.Engine.CompleteRevision(env.Ctx, "journey-1", revisions[0].ID, "ana")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("revision not completed: %+v", done)
	}
	// second completion is a silent no-op
	if _, err := env.Engine.CompleteRevision(env.Ctx, "journey-1", revisions[0].ID, "ana"); err != nil {
		t.Fatalf("second completion should not error: %v", err)
	}

	agenda, err := env.Engine.Agenda(env.Ctx, "journey-1")
	if err != nil {
		t.Fatalf("agenda: %v", err)
	}
	total := len(agenda.Overdue) + len(agenda.DueToday) + len(agenda.Upcoming)
	if total != 2 {
		t.Fatalf("expected 2 pending revisions, got %d", total)
	}
}

func TestCompleteRevisionUnknownIDIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]
	if _, _, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: topic.ID, DurationSeconds: 600, Type: "pdf", ActorID: "ana",
	}); err != nil {
		t.Fatalf("record session: %v", err)
	}

	// stale ids survive edital edits; completing one must not error
	rev, err := env.Engine.CompleteRevision(env.Ctx, "journey-1", "no-such-revision", "ana")
	if err != nil {
		t.Fatalf("unknown id should be a silent no-op, got %v", err)
	}
	if !rev.Completed {
		t.Fatalf("no-op completion should report done: %+v", rev)
	}

	agenda, err := env.Engine.Agenda(env.Ctx, "journey-1")
	if err != nil {
		t.Fatalf("agenda: %v", err)
	}
	if total := len(agenda.Overdue) + len(agenda.DueToday) + len(agenda.Upcoming); total != 3 {
		t.Fatalf("real revisions must be untouched, got %d pending", total)
	}
}

func TestCompleteRevisionWrongJourney(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]
	_, revisions, _ := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: topic.ID, DurationSeconds: 600, Type: "pdf", ActorID: "ana",
	})
	// an id belonging to another journey counts as unknown, not as that
	// journey's revision
	if _, err := env.Engine.CompleteRevision(env.Ctx, "other-journey", revisions[0].ID, "ana"); err != nil {
		t.Fatalf("wrong journey should be a silent no-op, got %v", err)
	}
	got, err := env.Engine.Repo.GetRevision(env.Ctx, revisions[0].ID)
	if err != nil {
		t.Fatalf("get revision: %v", err)
	}
	if got.Completed {
		t.Fatalf("no-op must not complete the revision in its own journey")
	}
}

func TestStatsEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	verbs := disciplines[0].Topics[0]
	constitution := disciplines[1].Topics[0]

	if _, _, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: verbs.ID, DurationSeconds: 3600, Type: "pdf", ActorID: "ana",
	}); err != nil {
		t.Fatalf("record session: %v", err)
	}
	if _, err := env.Engine.LogQuestions(env.Ctx, engine.QuestionLogOptions{
		JourneyID: "journey-1", TopicID: verbs.ID, Total: 10, Correct: 9, ActorID: "ana",
	}); err != nil {
		t.Fatalf("log questions: %v", err)
	}
	if _, err := env.Engine.LogQuestions(env.Ctx, engine.QuestionLogOptions{
		JourneyID: "journey-1", TopicID: constitution.ID, Total: 10, Correct: 2, ActorID: "ana",
	}); err != nil {
		t.Fatalf("log questions: %v", err)
	}

	report, err := env.Engine.Stats(env.Ctx, "journey-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if report.Progress.XP != 300 || report.Progress.Level != 2 {
		t.Fatalf("unexpected progress: %+v", report.Progress)
	}
	if len(report.ByDiscipline) != 2 || report.ByDiscipline[0].Name != "Portuguese" {
		t.Fatalf("discipline ordering wrong: %+v", report.ByDiscipline)
	}
	if len(report.ByTopic) != 2 || report.ByTopic[0].TopicID != constitution.ID {
		t.Fatalf("weakest topic must come first: %+v", report.ByTopic)
	}
}

func TestLogQuestionsValidation(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]
	if _, err := env.Engine.LogQuestions(env.Ctx, engine.QuestionLogOptions{
		JourneyID: "journey-1", TopicID: topic.ID, Total: 0, Correct: 0, ActorID: "ana",
	}); err == nil {
		t.Fatalf("expected total validation error")
	}
	if _, err := env.Engine.LogQuestions(env.Ctx, engine.QuestionLogOptions{
		JourneyID: "journey-1", TopicID: topic.ID, Total: 5, Correct: 6, ActorID: "ana",
	}); err == nil {
		t.Fatalf("expected correct > total error")
	}
}

func TestQuizQuotaAndSubscription(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]

	// free tier: the default daily budget
	limit := env.Engine.Config.Quota.FreeDailyQuizzes
	for i := 0; i < limit; i++ {
		if _, err := env.Engine.GenerateQuiz(env.Ctx, engine.QuizOptions{
			JourneyID: "journey-1", TopicID: topic.ID, ActorID: "ana",
		}); err != nil {
			t.Fatalf("quiz %d: %v", i, err)
		}
	}
	_, err := env.Engine.GenerateQuiz(env.Ctx, engine.QuizOptions{
		JourneyID: "journey-1", TopicID: topic.ID, ActorID: "ana",
	})
	var paywall engine.PaywallError
	if !errors.As(err, &paywall) {
		t.Fatalf("expected paywall error, got %v", err)
	}
	if env.AI.quizCalls != limit {
		t.Fatalf("blocked request must not reach the model: %d calls", env.AI.quizCalls)
	}

	// activating a subscription lifts the quota
	handled, err := env.Engine.HandleGatewayEvent(env.Ctx, engine.GatewayEvent{
		Type:    "subscription.activated",
		ActorID: "ana",
	})
	if err != nil || !handled {
		t.Fatalf("gateway event: handled=%v err=%v", handled, err)
	}
	if _, err := env.Engine.GenerateQuiz(env.Ctx, engine.QuizOptions{
		JourneyID: "journey-1", TopicID: topic.ID, ActorID: "ana",
	}); err != nil {
		t.Fatalf("subscriber quiz: %v", err)
	}
}

func TestHandleGatewayEvent(t *testing.T) {
	env := newTestEnv(t)

	handled, err := env.Engine.HandleGatewayEvent(env.Ctx, engine.GatewayEvent{Type: "subscription.activated", ActorID: "ana"})
	if err != nil || !handled {
		t.Fatalf("activate: handled=%v err=%v", handled, err)
	}
	active, err := env.Engine.SubscriptionActive(env.Ctx, "ana")
	if err != nil || !active {
		t.Fatalf("expected active subscription: %v", err)
	}

	handled, err = env.Engine.HandleGatewayEvent(env.Ctx, engine.GatewayEvent{Type: "subscription.canceled", ActorID: "ana"})
	if err != nil || !handled {
		t.Fatalf("cancel: handled=%v err=%v", handled, err)
	}
	active, _ = env.Engine.SubscriptionActive(env.Ctx, "ana")
	if active {
		t.Fatalf("canceled subscription must not be active")
	}

	// unknown types are acknowledged without effect
	handled, err = env.Engine.HandleGatewayEvent(env.Ctx, engine.GatewayEvent{Type: "invoice.finalized", ActorID: "ana"})
	if err != nil || handled {
		t.Fatalf("unknown type: handled=%v err=%v", handled, err)
	}
}

func TestSubscriptionExpiry(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.HandleGatewayEvent(env.Ctx, engine.GatewayEvent{
		Type:             "subscription.activated",
		ActorID:          "ana",
		CurrentPeriodEnd: "2024-03-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("gateway event: %v", err)
	}
	active, err := env.Engine.SubscriptionActive(env.Ctx, "ana")
	if err != nil {
		t.Fatalf("subscription active: %v", err)
	}
	if active {
		t.Fatalf("expired period must not grant access")
	}
}

func TestGroupsAndLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]
	if _, _, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: topic.ID, DurationSeconds: 7200, Type: "pdf", ActorID: "ana",
	}); err != nil {
		t.Fatalf("record session: %v", err)
	}

	group, err := env.Engine.CreateGroup(env.Ctx, "TRF crew", "ana")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if group.InviteCode == "" {
		t.Fatalf("group needs an invite code")
	}
	if _, err := env.Engine.JoinGroup(env.Ctx, group.InviteCode, "bruno"); err != nil {
		t.Fatalf("join group: %v", err)
	}

	entries, err := env.Engine.Leaderboard(env.Ctx, group.ID, "bruno")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ActorID != "ana" || entries[0].Rank != 1 || entries[0].XP != 200 {
		t.Fatalf("owner should lead with 200 XP: %+v", entries[0])
	}

	// outsiders cannot look
	var forbidden engine.ForbiddenError
	if _, err := env.Engine.Leaderboard(env.Ctx, group.ID, "stranger"); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// the owner cannot leave, members can
	if err := env.Engine.LeaveGroup(env.Ctx, group.ID, "ana"); !errors.As(err, &forbidden) {
		t.Fatalf("owner leave should be forbidden, got %v", err)
	}
	if err := env.Engine.LeaveGroup(env.Ctx, group.ID, "bruno"); err != nil {
		t.Fatalf("member leave: %v", err)
	}
}

func TestRotateInviteCode(t *testing.T) {
	env := newTestEnv(t)
	group, err := env.Engine.CreateGroup(env.Ctx, "TRF crew", "ana")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	oldCode := group.InviteCode

	var forbidden engine.ForbiddenError
	if _, err := env.Engine.RotateInviteCode(env.Ctx, group.ID, "stranger"); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	rotated, err := env.Engine.RotateInviteCode(env.Ctx, group.ID, "ana")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.InviteCode == "" || rotated.InviteCode == oldCode {
		t.Fatalf("expected a fresh invite code, got %q", rotated.InviteCode)
	}
	if _, err := env.Engine.JoinGroup(env.Ctx, oldCode, "bruno"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("old code should be dead, got %v", err)
	}
	if _, err := env.Engine.JoinGroup(env.Ctx, rotated.InviteCode, "bruno"); err != nil {
		t.Fatalf("join with new code: %v", err)
	}
}

func TestDeleteGroup(t *testing.T) {
	env := newTestEnv(t)
	group, err := env.Engine.CreateGroup(env.Ctx, "TRF crew", "ana")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := env.Engine.JoinGroup(env.Ctx, group.InviteCode, "bruno"); err != nil {
		t.Fatalf("join group: %v", err)
	}

	var forbidden engine.ForbiddenError
	if err := env.Engine.DeleteGroup(env.Ctx, group.ID, "bruno"); !errors.As(err, &forbidden) {
		t.Fatalf("member delete should be forbidden, got %v", err)
	}
	if err := env.Engine.DeleteGroup(env.Ctx, group.ID, "ana"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetGroup(env.Ctx, group.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("group should be gone, got %v", err)
	}
	groups, err := env.Engine.Repo.ListGroupsForActor(env.Ctx, "bruno")
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("memberships should be gone with the group, got %d", len(groups))
	}
}

func TestRenameDisciplineAndTopic(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	d := disciplines[0]
	topic := d.Topics[0]

	renamed, err := env.Engine.RenameDiscipline(env.Ctx, d.ID, "Direito Constitucional II", "ana")
	if err != nil {
		t.Fatalf("rename discipline: %v", err)
	}
	if renamed.Name != "Direito Constitucional II" {
		t.Fatalf("expected new name, got %q", renamed.Name)
	}
	if _, err := env.Engine.RenameDiscipline(env.Ctx, d.ID, "", "ana"); err == nil {
		t.Fatalf("empty name must be rejected")
	}

	rt, err := env.Engine.RenameTopic(env.Ctx, topic.ID, "Controle difuso", "ana")
	if err != nil {
		t.Fatalf("rename topic: %v", err)
	}
	if rt.Name != "Controle difuso" || rt.ID != topic.ID {
		t.Fatalf("rename should keep the id: %+v", rt)
	}
	if _, err := env.Engine.RenameTopic(env.Ctx, "nope", "x", "ana"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteJourney(t *testing.T) {
	env := newTestEnv(t)
	disciplines := importEdital(t, env)
	topic := disciplines[0].Topics[0]
	if _, _, err := env.Engine.RecordStudySession(env.Ctx, engine.StudySessionOptions{
		JourneyID: "journey-1", TopicID: topic.ID, DurationSeconds: 3600, Type: "pdf", ActorID: "ana",
	}); err != nil {
		t.Fatalf("record session: %v", err)
	}

	var forbidden engine.ForbiddenError
	if err := env.Engine.DeleteJourney(env.Ctx, "journey-1", "stranger"); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := env.Engine.DeleteJourney(env.Ctx, "journey-1", "ana"); err != nil {
		t.Fatalf("delete journey: %v", err)
	}
	if _, err := env.Engine.Repo.GetJourney(env.Ctx, "journey-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("journey should be gone, got %v", err)
	}
}

func TestArchiveJourneyOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	var forbidden engine.ForbiddenError
	if err := env.Engine.ArchiveJourney(env.Ctx, "journey-1", "stranger"); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := env.Engine.ArchiveJourney(env.Ctx, "journey-1", "ana"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	j, err := env.Engine.Repo.GetJourney(env.Ctx, "journey-1")
	if err != nil {
		t.Fatalf("get journey: %v", err)
	}
	if j.Status != "archived" {
		t.Fatalf("expected archived, got %s", j.Status)
	}
}

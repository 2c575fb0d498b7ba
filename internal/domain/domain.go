package domain

// Journey is one candidate's preparation for one exam: an edital plus the
// study data accumulated against it. A workspace may hold several journeys.
type Journey struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	ExamName  string `json:"exam_name,omitempty"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Discipline struct {
	ID        string  `json:"id"`
	JourneyID string  `json:"journey_id"`
	Name      string  `json:"name"`
	Position  int     `json:"position"`
	Topics    []Topic `json:"topics,omitempty"`
}

type Topic struct {
	ID           string `json:"id"`
	DisciplineID string `json:"discipline_id"`
	Name         string `json:"name"`
	Position     int    `json:"position"`
}

// TopicStatus tracks which study modalities have been completed for a topic.
// Pending is true only while no modality has ever been touched; flags are
// monotonic and never regress.
type TopicStatus struct {
	Pending   bool `json:"pending"`
	PDF       bool `json:"pdf"`
	Video     bool `json:"video"`
	Law       bool `json:"law"`
	Questions bool `json:"questions"`
	Summary   bool `json:"summary"`
}

// StatusMap keys TopicStatus by topic id. Entries may outlive their topic
// when the edital is edited; lookups are weak references by design.
type StatusMap map[string]TopicStatus

type StudySession struct {
	ID              string `json:"id"`
	JourneyID       string `json:"journey_id"`
	DisciplineID    string `json:"discipline_id"`
	TopicID         string `json:"topic_id"`
	DurationSeconds int    `json:"duration_seconds"`
	Date            string `json:"date" format:"date-time"`
	Type            string `json:"type" enum:"theory,pdf,video,questions,law,summary,review"`
}

type QuestionLog struct {
	ID           string `json:"id"`
	JourneyID    string `json:"journey_id"`
	DisciplineID string `json:"discipline_id"`
	TopicID      string `json:"topic_id"`
	Total        int    `json:"total"`
	Correct      int    `json:"correct"`
	Date         string `json:"date" format:"date-time"`
}

// Revision is a scheduled spaced-repetition review obligation. DueDate is
// date-only ("2006-01-02"): review scheduling works in calendar days.
type Revision struct {
	ID          string  `json:"id"`
	JourneyID   string  `json:"journey_id"`
	TopicID     string  `json:"topic_id"`
	DueDate     string  `json:"due_date" format:"date"`
	Label       string  `json:"label" enum:"1d,7d,30d"`
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

// ReviewAgenda partitions pending revisions relative to a reference day.
type ReviewAgenda struct {
	Overdue  []Revision `json:"overdue"`
	DueToday []Revision `json:"due_today"`
	Upcoming []Revision `json:"upcoming"`
}

// StudyData is the full mutable aggregate for one journey. The storage layer
// keeps the rows, but API consumers always see the aggregate whole.
type StudyData struct {
	Sessions    []StudySession `json:"sessions"`
	Questions   []QuestionLog  `json:"questions"`
	Revisions   []Revision     `json:"revisions"`
	TopicStatus StatusMap      `json:"topic_status"`
}

type DisciplineStats struct {
	DisciplineID string `json:"discipline_id"`
	Name         string `json:"name"`
	Correct      int    `json:"correct"`
	Total        int    `json:"total"`
	AccuracyPct  int    `json:"accuracy_pct"`
}

type TopicStats struct {
	TopicID            string `json:"topic_id"`
	Name               string `json:"name"`
	AccuracyPct        int    `json:"accuracy_pct"`
	QuestionsAttempted int    `json:"questions_attempted"`
}

type Progress struct {
	XP                 int `json:"xp"`
	Level              int `json:"level"`
	TotalStudySeconds  int `json:"total_study_seconds"`
	TotalQuestions     int `json:"total_questions"`
	OverallAccuracyPct int `json:"overall_accuracy_pct"`
	StudyDayStreak     int `json:"study_day_streak"`
}

type Group struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OwnerID    string `json:"owner_id"`
	InviteCode string `json:"invite_code,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type GroupMember struct {
	GroupID  string `json:"group_id"`
	ActorID  string `json:"actor_id"`
	Role     string `json:"role" enum:"owner,member"`
	JoinedAt string `json:"joined_at" format:"date-time"`
}

type LeaderboardEntry struct {
	ActorID string `json:"actor_id"`
	XP      int    `json:"xp"`
	Level   int    `json:"level"`
	Rank    int    `json:"rank"`
}

type Subscription struct {
	ActorID          string `json:"actor_id"`
	Plan             string `json:"plan"`
	Status           string `json:"status" enum:"active,canceled,past_due"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty" format:"date-time"`
	UpdatedAt        string `json:"updated_at" format:"date-time"`
}

// UsageCounter is the free-tier daily counter for AI quiz generation.
// The date comparison is the engine's job; the store only keeps the row.
type UsageCounter struct {
	ActorID string `json:"actor_id"`
	Date    string `json:"date" format:"date"`
	Count   int    `json:"count"`
}

type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	JourneyID  string `json:"journey_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

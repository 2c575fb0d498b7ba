package server

import (
	"studyline/internal/domain"
	"studyline/internal/engine"
)

type CreateJourneyRequest struct {
	Name string  `json:"name"`
	Exam *string `json:"exam,omitempty"`
}

type JourneyResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	ExamName  string `json:"exam_name,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func journeyResponse(j domain.Journey) JourneyResponse {
	return JourneyResponse{
		ID:        j.ID,
		OwnerID:   j.OwnerID,
		Name:      j.Name,
		ExamName:  j.ExamName,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
	}
}

func mapJourneys(items []domain.Journey) []JourneyResponse {
	res := make([]JourneyResponse, 0, len(items))
	for _, j := range items {
		res = append(res, journeyResponse(j))
	}
	return res
}

type ImportEditalRequest struct {
	// Disciplines imports an already structured syllabus. Text hands raw
	// syllabus text to the AI extractor instead. Exactly one must be set.
	Disciplines []engine.EditalDisciplineInput `json:"disciplines,omitempty"`
	Text        string                         `json:"text,omitempty"`
}

type AddDisciplineRequest struct {
	Name string `json:"name"`
}

type AddTopicRequest struct {
	Name string `json:"name"`
}

type RenameRequest struct {
	Name string `json:"name"`
}

type DisciplineResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Position int             `json:"position"`
	Topics   []TopicResponse `json:"topics"`
}

type TopicResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	Status   *domain.TopicStatus `json:"status,omitempty"`
}

func editalResponse(disciplines []domain.Discipline, statuses domain.StatusMap) []DisciplineResponse {
	res := make([]DisciplineResponse, 0, len(disciplines))
	for _, d := range disciplines {
		dr := DisciplineResponse{ID: d.ID, Name: d.Name, Position: d.Position, Topics: []TopicResponse{}}
		for _, t := range d.Topics {
			tr := TopicResponse{ID: t.ID, Name: t.Name, Position: t.Position}
			if st, ok := statuses[t.ID]; ok {
				stCopy := st
				tr.Status = &stCopy
			}
			dr.Topics = append(dr.Topics, tr)
		}
		res = append(res, dr)
	}
	return res
}

type RecordSessionRequest struct {
	DisciplineID    *string `json:"discipline_id,omitempty"`
	TopicID         string  `json:"topic_id"`
	DurationSeconds int     `json:"duration_seconds"`
	Date            *string `json:"date,omitempty"`
	Type            string  `json:"type"`
}

type SessionResponse struct {
	Session   domain.StudySession `json:"session"`
	Revisions []domain.Revision   `json:"revisions"`
}

type LogQuestionsRequest struct {
	DisciplineID *string `json:"discipline_id,omitempty"`
	TopicID      string  `json:"topic_id"`
	Total        int     `json:"total"`
	Correct      int     `json:"correct"`
	Date         *string `json:"date,omitempty"`
}

type QuizRequest struct {
	TopicID string `json:"topic_id"`
	Count   int    `json:"count,omitempty"`
}

type SummaryResponse struct {
	TopicID string `json:"topic_id"`
	Summary string `json:"summary"`
}

type CreateGroupRequest struct {
	Name string `json:"name"`
}

type JoinGroupRequest struct {
	InviteCode string `json:"invite_code"`
}

type GroupResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OwnerID    string `json:"owner_id"`
	InviteCode string `json:"invite_code,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func groupResponse(g domain.Group) GroupResponse {
	return GroupResponse{ID: g.ID, Name: g.Name, OwnerID: g.OwnerID, InviteCode: g.InviteCode, CreatedAt: g.CreatedAt}
}

type GroupDetailResponse struct {
	GroupResponse
	Members []domain.GroupMember `json:"members"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	// Key is the raw secret, present only in the create response.
	Key string `json:"key,omitempty"`
}

func apiKeyResponse(k domain.APIKey, raw string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt, Key: raw}
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package studylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Studyline HTTP API client.
type Client struct {
	BaseURL     string
	JourneyID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, journeyID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		JourneyID: journeyID,
		Timeout:   10 * time.Second,
	}
}

// Journey represents the API journey model (partial).
type Journey struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	ExamName string `json:"exam_name"`
	Status   string `json:"status"`
}

// Topic is one syllabus item within a discipline.
type Topic struct {
	ID           string `json:"id"`
	DisciplineID string `json:"discipline_id"`
	Name         string `json:"name"`
	Position     int    `json:"position"`
}

// Discipline groups topics within the edital.
type Discipline struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Topics   []Topic `json:"topics"`
}

// Session represents a recorded study session.
type Session struct {
	ID              string `json:"id"`
	JourneyID       string `json:"journey_id"`
	TopicID         string `json:"topic_id"`
	DurationSeconds int    `json:"duration_seconds"`
	Date            string `json:"date"`
	Type            string `json:"type"`
}

// Revision is one spaced-repetition obligation.
type Revision struct {
	ID        string `json:"id"`
	JourneyID string `json:"journey_id"`
	TopicID   string `json:"topic_id"`
	DueDate   string `json:"due_date"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

// ReviewAgenda buckets pending reviews by due date.
type ReviewAgenda struct {
	Overdue  []Revision `json:"overdue"`
	DueToday []Revision `json:"due_today"`
	Upcoming []Revision `json:"upcoming"`
}

// QuizQuestion is one generated multiple-choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Quiz wraps generated questions with their source (ai or fallback).
type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
	Source    string         `json:"source"`
}

// LeaderboardEntry ranks one group member by XP.
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	ActorID string `json:"actor_id"`
	XP      int    `json:"xp"`
	Level   int    `json:"level"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	JourneyID  string `json:"journey_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateJourney creates a journey.
func (c *Client) CreateJourney(ctx context.Context, name, exam string) (Journey, error) {
	body := map[string]any{
		"name": name,
		"exam": exam,
	}
	var resp Journey
	err := c.do(ctx, http.MethodPost, "v0/journeys", body, &resp)
	return resp, err
}

// Edital returns the journey's disciplines and topics.
func (c *Client) Edital(ctx context.Context) ([]Discipline, error) {
	var resp struct {
		Disciplines []Discipline `json:"disciplines"`
	}
	err := c.do(ctx, http.MethodGet, c.journeyPath("edital"), nil, &resp)
	return resp.Disciplines, err
}

// ImportEdital replaces the edital with structured disciplines.
func (c *Client) ImportEdital(ctx context.Context, disciplines []map[string]any) ([]Discipline, error) {
	body := map[string]any{"disciplines": disciplines}
	var resp struct {
		Disciplines []Discipline `json:"disciplines"`
	}
	err := c.do(ctx, http.MethodPost, c.journeyPath("edital/import"), body, &resp)
	return resp.Disciplines, err
}

// RecordSession records a study session and returns scheduled reviews.
func (c *Client) RecordSession(ctx context.Context, topicID, sessionType string, durationSeconds int) (Session, []Revision, error) {
	body := map[string]any{
		"topic_id":         topicID,
		"type":             sessionType,
		"duration_seconds": durationSeconds,
	}
	var resp struct {
		Session   Session    `json:"session"`
		Revisions []Revision `json:"revisions"`
	}
	err := c.do(ctx, http.MethodPost, c.journeyPath("sessions"), body, &resp)
	return resp.Session, resp.Revisions, err
}

// LogQuestions records a question batch for a topic.
func (c *Client) LogQuestions(ctx context.Context, topicID string, total, correct int) error {
	body := map[string]any{
		"topic_id": topicID,
		"total":    total,
		"correct":  correct,
	}
	return c.do(ctx, http.MethodPost, c.journeyPath("questions"), body, nil)
}

// ReviewAgenda returns overdue, due-today, and upcoming reviews.
func (c *Client) ReviewAgenda(ctx context.Context) (ReviewAgenda, error) {
	var resp ReviewAgenda
	err := c.do(ctx, http.MethodGet, c.journeyPath("reviews"), nil, &resp)
	return resp, err
}

// CompleteReview marks a review as done.
func (c *Client) CompleteReview(ctx context.Context, revisionID string) (Revision, error) {
	var resp Revision
	endpoint := c.journeyPath(fmt.Sprintf("reviews/%s/complete", url.PathEscape(revisionID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// GenerateQuiz asks for an AI quiz on a topic. A 402 response means the
// caller's free daily quota is exhausted.
func (c *Client) GenerateQuiz(ctx context.Context, topicID string, count int) (Quiz, error) {
	body := map[string]any{
		"topic_id": topicID,
		"count":    count,
	}
	var resp Quiz
	err := c.do(ctx, http.MethodPost, c.journeyPath("quiz"), body, &resp)
	return resp, err
}

// Leaderboard returns the XP ranking for a group.
func (c *Client) Leaderboard(ctx context.Context, groupID string) ([]LeaderboardEntry, error) {
	var resp struct {
		Items []LeaderboardEntry `json:"items"`
	}
	endpoint := fmt.Sprintf("v0/groups/%s/leaderboard", url.PathEscape(groupID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) journeyPath(p string) string {
	journey := url.PathEscape(c.JourneyID)
	return fmt.Sprintf("v0/journeys/%s/%s", journey, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"studyline/internal/domain"
	"studyline/internal/engine"
)

// Client talks to an OpenAI-compatible chat completions endpoint. A quiz
// request never fails outright: anything the model gets wrong degrades to the
// canned fallback quiz.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, model, system, user string) (string, error) {
	if c.BaseURL == "" || c.APIKey == "" {
		return "", fmt.Errorf("ai endpoint not configured")
	}
	payload, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ai endpoint returned %d", resp.StatusCode)
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode ai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("ai response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

const quizSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["question", "options", "correct_answer"],
    "properties": {
      "question": {"type": "string", "minLength": 1},
      "options": {"type": "array", "minItems": 2, "items": {"type": "string"}},
      "correct_answer": {"type": "integer", "minimum": 0},
      "explanation": {"type": "string"}
    }
  }
}`

const editalSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["name", "topics"],
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "topics": {"type": "array", "items": {"type": "string", "minLength": 1}}
    }
  }
}`

// GenerateQuiz asks the model for questions and validates the reply against
// the quiz schema. Any failure yields the fallback quiz instead of an error.
func (c *Client) GenerateQuiz(ctx context.Context, spec engine.QuizSpec) (engine.QuizResult, error) {
	system := "You write multiple-choice exam preparation questions. Reply with a JSON array only, no prose. " +
		`Each element: {"question": string, "options": [string], "correct_answer": index, "explanation": string}.`
	user := fmt.Sprintf("Write %d questions about %q (discipline %q) for the exam %q. Language of the syllabus.",
		spec.Count, spec.Topic, spec.Discipline, spec.Exam)
	raw, err := c.complete(ctx, spec.Model, system, user)
	if err != nil {
		return engine.QuizResult{Questions: FallbackQuiz(spec.Topic, spec.Count), Source: "fallback"}, nil
	}
	questions, err := parseQuiz(raw)
	if err != nil {
		return engine.QuizResult{Questions: FallbackQuiz(spec.Topic, spec.Count), Source: "fallback"}, nil
	}
	return engine.QuizResult{Questions: questions, Source: "ai"}, nil
}

func parseQuiz(raw string) ([]domain.QuizQuestion, error) {
	doc := RepairJSON(raw)
	if err := validate(quizSchema, doc); err != nil {
		return nil, err
	}
	var questions []domain.QuizQuestion
	if err := json.Unmarshal([]byte(doc), &questions); err != nil {
		return nil, err
	}
	for i, q := range questions {
		if q.CorrectAnswer >= len(q.Options) {
			return nil, fmt.Errorf("question %d: correct_answer out of range", i)
		}
	}
	return questions, nil
}

// ExtractEdital structures raw syllabus text into disciplines and topics.
// Extraction has no fallback; a bad model reply is the caller's error.
func (c *Client) ExtractEdital(ctx context.Context, model, text string) ([]engine.EditalDisciplineInput, error) {
	system := "You structure exam syllabi. Reply with a JSON array only, no prose. " +
		`Each element: {"name": discipline name, "topics": [topic names in syllabus order]}.`
	raw, err := c.complete(ctx, model, system, text)
	if err != nil {
		return nil, err
	}
	doc := RepairJSON(raw)
	if err := validate(editalSchema, doc); err != nil {
		return nil, fmt.Errorf("model reply is not a valid edital: %w", err)
	}
	var disciplines []engine.EditalDisciplineInput
	if err := json.Unmarshal([]byte(doc), &disciplines); err != nil {
		return nil, err
	}
	return disciplines, nil
}

func (c *Client) SummarizeTopic(ctx context.Context, model, discipline, topic string) (string, error) {
	system := "You write concise study summaries for exam candidates. Reply in plain text."
	user := fmt.Sprintf("Summarize the key points of %q within the discipline %q.", topic, discipline)
	return c.complete(ctx, model, system, user)
}

func validate(schema, doc string) error {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewStringLoader(doc))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// RepairJSON trims the prose and markdown fencing models wrap around JSON:
// it cuts everything outside the outermost bracket pair.
func RepairJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	var closer byte
	if s[start] == '[' {
		closer = ']'
	} else {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s
	}
	return s[start : end+1]
}

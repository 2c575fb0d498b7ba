package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"studyline/internal/engine"
)

func TestRepairJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`[{"a":1}]`, `[{"a":1}]`},
		{"```json\n[1,2]\n```", `[1,2]`},
		{"Sure! Here is the quiz:\n[1,2]\nHope that helps.", `[1,2]`},
		{`prefix {"a":1} suffix`, `{"a":1}`},
		{`no json at all`, `no json at all`},
	}
	for _, c := range cases {
		if got := RepairJSON(c.in); got != c.want {
			t.Fatalf("RepairJSON(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseQuiz(t *testing.T) {
	raw := "```json\n" + `[{"question":"Q1","options":["a","b","c"],"correct_answer":2,"explanation":"because"}]` + "\n```"
	questions, err := parseQuiz(raw)
	if err != nil {
		t.Fatalf("parse quiz: %v", err)
	}
	if len(questions) != 1 || questions[0].CorrectAnswer != 2 {
		t.Fatalf("unexpected questions: %+v", questions)
	}
}

func TestParseQuizRejectsBadData(t *testing.T) {
	cases := []string{
		`[]`, // empty
		`[{"question":"Q1"}]`,                                         // missing fields
		`[{"question":"Q1","options":["a","b"],"correct_answer":5}]`,  // answer out of range
		`[{"question":"Q1","options":["only"],"correct_answer":0}]`,   // too few options
		`not json`,
	}
	for _, c := range cases {
		if _, err := parseQuiz(c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestFallbackQuiz(t *testing.T) {
	questions := FallbackQuiz("Verbs", 3)
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}
	for i, q := range questions {
		if q.Question == "" || len(q.Options) < 2 {
			t.Fatalf("question %d malformed: %+v", i, q)
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			t.Fatalf("question %d answer out of range", i)
		}
	}
	// count larger than the template pool clamps
	if got := len(FallbackQuiz("Verbs", 100)); got == 0 || got > 100 {
		t.Fatalf("unexpected clamp result: %d", got)
	}
}

func TestGenerateQuizFallsBackWhenUnconfigured(t *testing.T) {
	c := NewClient("", "")
	result, err := c.GenerateQuiz(context.Background(), engine.QuizSpec{Topic: "Verbs", Count: 2})
	if err != nil {
		t.Fatalf("quiz must not fail outright: %v", err)
	}
	if result.Source != "fallback" || len(result.Questions) == 0 {
		t.Fatalf("expected fallback quiz, got %+v", result)
	}
}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestGenerateQuizFromModel(t *testing.T) {
	srv := chatServer(t, `[{"question":"Q1","options":["a","b"],"correct_answer":1}]`)
	defer srv.Close()
	c := NewClient(srv.URL, "key")
	result, err := c.GenerateQuiz(context.Background(), engine.QuizSpec{Topic: "Verbs", Count: 1})
	if err != nil {
		t.Fatalf("generate quiz: %v", err)
	}
	if result.Source != "ai" || len(result.Questions) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGenerateQuizFallsBackOnGarbage(t *testing.T) {
	srv := chatServer(t, "I cannot answer that.")
	defer srv.Close()
	c := NewClient(srv.URL, "key")
	result, err := c.GenerateQuiz(context.Background(), engine.QuizSpec{Topic: "Verbs", Count: 2})
	if err != nil {
		t.Fatalf("generate quiz: %v", err)
	}
	if result.Source != "fallback" {
		t.Fatalf("expected fallback, got %s", result.Source)
	}
}

func TestExtractEdital(t *testing.T) {
	srv := chatServer(t, "```json\n"+`[{"name":"Portuguese","topics":["Verbs","Syntax"]}]`+"\n```")
	defer srv.Close()
	c := NewClient(srv.URL, "key")
	disciplines, err := c.ExtractEdital(context.Background(), "model", "raw edital text")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(disciplines) != 1 || disciplines[0].Name != "Portuguese" || len(disciplines[0].Topics) != 2 {
		t.Fatalf("unexpected disciplines: %+v", disciplines)
	}
}

func TestExtractEditalHasNoFallback(t *testing.T) {
	srv := chatServer(t, "not an edital")
	defer srv.Close()
	c := NewClient(srv.URL, "key")
	if _, err := c.ExtractEdital(context.Background(), "model", "raw"); err == nil {
		t.Fatalf("expected extraction error")
	}
}

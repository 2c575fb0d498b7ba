package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studyline/internal/config"
	"studyline/internal/db"
	"studyline/internal/domain"
	"studyline/internal/engine"
	"studyline/internal/migrate"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testGatewaySecret = "test-gateway-secret"
)

type fakeAI struct{}

func (fakeAI) GenerateQuiz(ctx context.Context, spec engine.QuizSpec) (engine.QuizResult, error) {
	return engine.QuizResult{
		Questions: []domain.QuizQuestion{{Question: "Q", Options: []string{"a", "b"}, CorrectAnswer: 0}},
		Source:    "ai",
	}, nil
}

func (fakeAI) ExtractEdital(ctx context.Context, model, text string) ([]engine.EditalDisciplineInput, error) {
	return []engine.EditalDisciplineInput{{Name: "Extracted", Topics: []string{"One"}}}, nil
}

func (fakeAI) SummarizeTopic(ctx context.Context, model, discipline, topic string) (string, error) {
	return "summary", nil
}

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("journey-1")
	e := engine.New(conn, cfg)
	e.AI = fakeAI{}
	if _, err := e.CreateJourney(context.Background(), engine.JourneyCreateOptions{
		ID: "journey-1", Name: "TRF", Exam: "TRF Analyst", ActorID: "ana",
	}); err != nil {
		t.Fatalf("create journey: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:     testJWTSecret,
			GatewaySecret: testGatewaySecret,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authHeaders(t *testing.T, actor string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + signToken(t, actor)}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func importTestEdital(t *testing.T, srv *testServer) []DisciplineResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/journeys/journey-1/edital/import", map[string]any{
		"disciplines": []map[string]any{
			{"name": "Portuguese", "topics": []string{"Verbs", "Syntax"}},
		},
	}, authHeaders(t, "ana"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import edital status %d: %s", res.StatusCode, string(data))
	}
	var disciplines []DisciplineResponse
	if err := json.Unmarshal(data, &disciplines); err != nil {
		t.Fatalf("unmarshal edital: %v", err)
	}
	return disciplines
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/journeys", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/journeys", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token expected 401, got %d", res.StatusCode)
	}

	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health expected 200, got %d", res.StatusCode)
	}
}

func TestStudyFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	disciplines := importTestEdital(t, srv)
	topicID := disciplines[0].Topics[0].ID
	headers := authHeaders(t, "ana")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/journeys/journey-1/sessions", map[string]any{
		"topic_id":         topicID,
		"type":             "pdf",
		"duration_seconds": 1800,
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("record session status %d: %s", res.StatusCode, string(data))
	}
	var session SessionResponse
	if err := json.Unmarshal(data, &session); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if len(session.Revisions) != 3 {
		t.Fatalf("expected 3 revisions, got %d", len(session.Revisions))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/journeys/journey-1/reviews", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("agenda status %d: %s", res.StatusCode, string(data))
	}
	var agenda domain.ReviewAgenda
	if err := json.Unmarshal(data, &agenda); err != nil {
		t.Fatalf("unmarshal agenda: %v", err)
	}
	if len(agenda.Upcoming) != 3 {
		t.Fatalf("expected 3 upcoming, got %+v", agenda)
	}

	revID := agenda.Upcoming[0].ID
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/journeys/journey-1/reviews/"+revID+"/complete", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete review status %d: %s", res.StatusCode, string(data))
	}
	var rev domain.Revision
	if err := json.Unmarshal(data, &rev); err != nil {
		t.Fatalf("unmarshal revision: %v", err)
	}
	if !rev.Completed {
		t.Fatalf("revision should be completed")
	}

	// stale revision ids complete without error
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/journeys/journey-1/reviews/gone/complete", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stale id should still return 200, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/journeys/journey-1/questions", map[string]any{
		"topic_id": topicID,
		"total":    10,
		"correct":  9,
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("log questions status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/journeys/journey-1/stats", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", res.StatusCode, string(data))
	}
	var report engine.StatsReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if report.Progress.TotalQuestions != 10 || report.Progress.OverallAccuracyPct != 90 {
		t.Fatalf("unexpected progress: %+v", report.Progress)
	}
	if len(report.ByDiscipline) != 1 || report.ByDiscipline[0].Name != "Portuguese" {
		t.Fatalf("unexpected discipline stats: %+v", report.ByDiscipline)
	}
}

func TestQuizQuotaOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	disciplines := importTestEdital(t, srv)
	topicID := disciplines[0].Topics[0].ID
	headers := authHeaders(t, "ana")

	limit := srv.Engine.Config.Quota.FreeDailyQuizzes
	for i := 0; i < limit; i++ {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/journeys/journey-1/quiz", map[string]any{
			"topic_id": topicID,
		}, headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("quiz %d status %d: %s", i, res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/journeys/journey-1/quiz", map[string]any{
		"topic_id": topicID,
	}, headers)
	if res.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "quota_exceeded" {
		t.Fatalf("expected quota_exceeded, got %q", envelope.Error.Code)
	}
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testGatewaySecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestBillingWebhook(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	payload, _ := json.Marshal(map[string]any{
		"type":     "subscription.activated",
		"actor_id": "ana",
	})

	// missing signature
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v0/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unsigned webhook expected 401, got %d", res.StatusCode)
	}

	// bad signature
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v0/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", "deadbeef")
	res, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad signature expected 401, got %d", res.StatusCode)
	}

	// valid signature
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v0/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", signBody(payload))
	res, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("signed webhook expected 200, got %d: %s", res.StatusCode, string(data))
	}
	var ack struct {
		Received bool `json:"received"`
		Handled  bool `json:"handled"`
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if !ack.Received || !ack.Handled {
		t.Fatalf("expected handled ack, got %+v", ack)
	}

	active, err := srv.Engine.SubscriptionActive(context.Background(), "ana")
	if err != nil || !active {
		t.Fatalf("subscription should be active: %v", err)
	}

	// unknown event types are acknowledged but not handled
	unknown, _ := json.Marshal(map[string]any{"type": "invoice.finalized", "actor_id": "ana"})
	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/v0/billing/webhook", bytes.NewReader(unknown))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", signBody(unknown))
	res, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	data, _ = io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unknown event expected 200, got %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &ack)
	if !ack.Received || ack.Handled {
		t.Fatalf("unknown event must not be handled: %+v", ack)
	}
}

func TestGroupsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := authHeaders(t, "ana")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/groups", map[string]any{
		"name": "TRF crew",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create group status %d: %s", res.StatusCode, string(data))
	}
	var group GroupResponse
	if err := json.Unmarshal(data, &group); err != nil {
		t.Fatalf("unmarshal group: %v", err)
	}

	bruno := authHeaders(t, "bruno")
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/groups/join", map[string]any{
		"invite_code": group.InviteCode,
	}, bruno)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join group status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups/"+group.ID, nil, bruno)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get group status %d: %s", res.StatusCode, string(data))
	}
	var detail GroupDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal group detail: %v", err)
	}
	if len(detail.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(detail.Members))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups/"+group.ID+"/leaderboard", nil, bruno)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("leaderboard status %d: %s", res.StatusCode, string(data))
	}

	// non-members are rejected
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/groups/"+group.ID+"/leaderboard", nil, authHeaders(t, "stranger"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/keys", map[string]any{
		"name": "ci",
	}, authHeaders(t, "ana"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatalf("create must return the raw secret")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/journeys", nil, map[string]string{
		"X-Api-Key": key.Key,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth status %d: %s", res.StatusCode, string(data))
	}
	var journeys []JourneyResponse
	if err := json.Unmarshal(data, &journeys); err != nil {
		t.Fatalf("unmarshal journeys: %v", err)
	}
	if len(journeys) != 1 || journeys[0].ID != "journey-1" {
		t.Fatalf("expected ana's journey, got %+v", journeys)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/journeys", nil, map[string]string{
		"X-Api-Key": "slk_wrong",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key expected 401, got %d", res.StatusCode)
	}
}

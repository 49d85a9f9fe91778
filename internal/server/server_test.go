package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/feedback"
	"github.com/kapu/pitch-coach-go/internal/metrics"
	"github.com/kapu/pitch-coach-go/internal/orchestrator"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
	"github.com/kapu/pitch-coach-go/internal/session"
	"github.com/kapu/pitch-coach-go/internal/util"
)

type scriptedCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
}

func (s *scriptedCompleter) Complete(context.Context, []domain.ChatMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply, s.err
}

func (s *scriptedCompleter) set(reply string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply, s.err = reply, err
}

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.PitchRecord
}

func (m *memoryHistory) Append(_ context.Context, rec domain.PitchRecord) (domain.PitchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = "rec"
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memoryHistory) ListByUser(_ context.Context, userID string, _ int) ([]domain.PitchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PitchRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryHistory) ListByUserPersona(context.Context, string, string, domain.PitchKind, int) ([]domain.PitchRecord, error) {
	return nil, nil
}

type staticHealth struct{}

func (staticHealth) Status() llm.ManagerStatus {
	return llm.ManagerStatus{Providers: []string{"Offline"}, Circuit: util.CircuitBreakerStatus{State: util.CircuitStateClosed}}
}

type testEnv struct {
	srv       *Server
	orch      *orchestrator.Orchestrator
	locker    *session.MemoryLocker
	roleplay  *scriptedCompleter
	coach     *scriptedCompleter
	history   *memoryHistory
	startedAt time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)

	env := &testEnv{
		locker:   session.NewMemoryLocker(),
		roleplay: &scriptedCompleter{reply: "What would the rollout look like for a team our size?"},
		coach:    &scriptedCompleter{},
		history:  &memoryHistory{},
	}
	env.orch = orchestrator.New(session.NewMemoryStore(32, time.Hour), env.locker, env.roleplay, logger,
		orchestrator.WithRand(rand.New(rand.NewPCG(7, 7))),
		orchestrator.WithReportDelay(0),
		orchestrator.WithHistory(env.history),
		orchestrator.WithMetrics(m),
	)
	t.Cleanup(env.orch.Wait)

	env.srv = New(Config{GinMode: gin.TestMode}, Deps{
		Orchestrator: env.orch,
		Feedback:     feedback.NewService(env.coach, logger, feedback.WithRecorder(env.history), feedback.WithMetrics(m)),
		Completer:    env.coach,
		History:      env.history,
		Health:       staticHealth{},
		Gatherer:     reg,
	}, logger)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, user string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(headerUserID, user)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/personas", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	personas := decode[struct {
		Personas []domain.PersonaProfile `json:"personas"`
	}](t, rec)
	if len(personas.Personas) != len(persona.Keys()) {
		t.Fatalf("got %d personas", len(personas.Personas))
	}

	rec = env.do(t, http.MethodGet, "/api/coach-tones", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Tough Coach") {
		t.Fatalf("tones: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAnalyzeRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/analyze", map[string]string{"message": "no"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	a := decode[domain.InputAnalysis](t, rec)
	if a.OverallScore != 0 {
		t.Fatalf("score = %d", a.OverallScore)
	}
}

func TestRoleplayLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/roleplay/sessions", map[string]string{"persona": "skeptical"}, "user-9")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	started := decode[orchestrator.TurnResult](t, rec)
	id := started.State.ID
	if started.State.UserID != "user-9" || started.State.PersonaKey != "skeptical" {
		t.Fatalf("unexpected state %+v", started.State)
	}

	rec = env.do(t, http.MethodGet, "/api/roleplay/sessions/"+id+"/report", nil, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("report before end = %d", rec.Code)
	}

	var last orchestrator.TurnResult
	for i := 0; i < 4; i++ {
		rec = env.do(t, http.MethodPost, "/api/roleplay/sessions/"+id+"/turns", map[string]string{"message": "no"}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("turn %d status = %d: %s", i+1, rec.Code, rec.Body.String())
		}
		last = decode[orchestrator.TurnResult](t, rec)
	}
	if last.State.Phase != domain.PhaseEnded {
		t.Fatalf("phase = %s", last.State.Phase)
	}

	rec = env.do(t, http.MethodPost, "/api/roleplay/sessions/"+id+"/turns", map[string]string{"message": "wait"}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("turn after end = %d", rec.Code)
	}

	env.orch.Wait()
	rec = env.do(t, http.MethodGet, "/api/roleplay/sessions/"+id+"/report", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report = %d: %s", rec.Code, rec.Body.String())
	}
	rep := decode[domain.TrainingReport](t, rec)
	if rep.FinalEngagement != domain.EngagementCold {
		t.Fatalf("final engagement = %s", rep.FinalEngagement)
	}

	rec = env.do(t, http.MethodGet, "/api/roleplay/sessions/"+id+"/export", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Roleplay Training Report") {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/history", nil, "user-9")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"kind":"roleplay"`) {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/roleplay/sessions/"+id+"/reset", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset = %d", rec.Code)
	}
	reset := decode[domain.SessionState](t, rec)
	if reset.Phase != domain.PhaseDiscovery || reset.TurnCount != 0 || reset.Generation != 1 {
		t.Fatalf("unexpected reset state %+v", reset)
	}

	rec = env.do(t, http.MethodDelete, "/api/roleplay/sessions/"+id, nil, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/roleplay/sessions/"+id, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rec.Code)
	}
}

func TestBusySessionIsConflict(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orch.Start(context.Background(), "", "warm", "")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = env.locker.TryAcquire(context.Background(), res.State.ID)

	rec := env.do(t, http.MethodPost, "/api/roleplay/sessions/"+res.State.ID+"/turns", map[string]string{"message": "hello there"}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestOversizedTurnIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.orch.Start(context.Background(), "", "new", "")
	if err != nil {
		t.Fatal(err)
	}

	long := strings.Repeat("a", 20000)
	rec := env.do(t, http.MethodPost, "/api/roleplay/sessions/"+res.State.ID+"/turns", map[string]string{"message": long}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChatProxy(t *testing.T) {
	env := newTestEnv(t)
	msgs := map[string]any{"messages": []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}}

	env.coach.set(`{"confidence": 5}`, nil)
	rec := env.do(t, http.MethodPost, "/api/chat", msgs, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"confidence": 5}` {
		t.Fatalf("json passthrough: %d %s", rec.Code, rec.Body.String())
	}

	env.coach.set("  plain words  ", nil)
	rec = env.do(t, http.MethodPost, "/api/chat", msgs, "")
	if got := decode[map[string]string](t, rec); got["content"] != "plain words" {
		t.Fatalf("plain wrap: %v", got)
	}

	env.coach.set("", &llm.StatusError{Provider: "OpenAI", StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")})
	rec = env.do(t, http.MethodPost, "/api/chat", msgs, "")
	if rec.Code != http.StatusTooManyRequests || !strings.Contains(rec.Body.String(), "Rate limit exceeded") {
		t.Fatalf("rate limit: %d %s", rec.Code, rec.Body.String())
	}

	env.coach.set("", &llm.StatusError{Provider: "OpenAI", StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")})
	rec = env.do(t, http.MethodPost, "/api/chat", msgs, "")
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "authentication failed") {
		t.Fatalf("auth: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/chat", map[string]any{"messages": []domain.ChatMessage{{Role: "robot", Content: "x"}}}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid role: %d", rec.Code)
	}
}

func TestFeedbackRoutes(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"pitch": "We cut churn.", "persona": "budget", "coachTone": "peer"}

	env.coach.set(`Sure! {"confidence": 8, "clarity": 7, "structure": 6, "authenticity": 7, "persuasiveness": 6, "comments": "Nice."}`, nil)
	rec := env.do(t, http.MethodPost, "/api/feedback", body, "user-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[feedback.Result](t, rec)
	if res.Feedback.Confidence != 8 || res.RecordID == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	env.coach.set("I'd rather not.", nil)
	rec = env.do(t, http.MethodPost, "/api/feedback", body, "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("parse failure = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/feedback", map[string]string{"pitch": " "}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty pitch = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/feedback/export", map[string]any{
		"feedback": domain.FeedbackResult{Confidence: 8},
		"persona":  "budget",
	}, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "AI Sales Trainer Feedback") {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHistoryRequiresUser(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/history", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/history", nil, "nobody")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"records":[]}` {
		t.Fatalf("empty history: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"Offline"`) {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}

	env.do(t, http.MethodPost, "/api/roleplay/sessions", map[string]string{"persona": "new", "pitch": "no"}, "")
	rec = env.do(t, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pitchcoach_turns_total") {
		t.Fatalf("metrics: %d %s", rec.Code, rec.Body.String())
	}
}

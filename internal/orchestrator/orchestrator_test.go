package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/report"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
	"github.com/kapu/pitch-coach-go/internal/session"
	"go.uber.org/zap"
)

const strongMessage = "For example, one client saw $50,000 ROI in six months; the case study shows how. Would that matter to your team? What goals are you tracking this year?"

type fakeCompleter struct {
	mu       sync.Mutex
	calls    int
	messages [][]domain.ChatMessage
	fn       func(call int) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, messages []domain.ChatMessage) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.messages = append(f.messages, messages)
	f.mu.Unlock()
	return f.fn(call)
}

func (f *fakeCompleter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func replyWith(text string) *fakeCompleter {
	return &fakeCompleter{fn: func(int) (string, error) { return text, nil }}
}

type fakeHistory struct {
	mu       sync.Mutex
	prior    []domain.PitchRecord
	appended []domain.PitchRecord
}

func (f *fakeHistory) Append(_ context.Context, rec domain.PitchRecord) (domain.PitchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, rec)
	return rec, nil
}

func (f *fakeHistory) ListByUserPersona(context.Context, string, string, domain.PitchKind, int) ([]domain.PitchRecord, error) {
	return f.prior, nil
}

func newTestOrchestrator(c llm.Completer, opts ...Option) (*Orchestrator, *session.MemoryStore, *session.MemoryLocker) {
	store := session.NewMemoryStore(16, time.Hour)
	locker := session.NewMemoryLocker()
	seq := 0
	base := []Option{
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithReportDelay(0),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("sess-%d", seq)
		}),
	}
	return New(store, locker, c, zap.NewNop(), append(base, opts...)...), store, locker
}

func start(t *testing.T, o *Orchestrator, personaKey string) string {
	t.Helper()
	res, err := o.Start(context.Background(), "user-1", personaKey, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return res.State.ID
}

func oneOf(s string, pool []string) bool {
	for _, p := range pool {
		if p == s {
			return true
		}
	}
	return false
}

func TestPoorTurnBypassesModel(t *testing.T) {
	c := replyWith("This should never be used as a reply.")
	o, _, _ := newTestOrchestrator(c)
	id := start(t, o, persona.KeyNew)

	res, err := o.HandleTurn(context.Background(), id, "no")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if c.Calls() != 0 {
		t.Fatalf("completer called %d times for a poor turn", c.Calls())
	}
	if res.Source != domain.SourceConcern {
		t.Fatalf("source = %s", res.Source)
	}
	if !oneOf(res.Reply, concernPool(persona.Get(persona.KeyNew))) {
		t.Fatalf("reply %q not from the concern pool", res.Reply)
	}
	if res.State.Engagement != domain.EngagementCold {
		t.Fatalf("engagement = %s, want cold", res.State.Engagement)
	}
	if len(res.State.Transcript) != 2 || res.State.Transcript[0].Analysis == nil {
		t.Fatalf("unexpected transcript %+v", res.State.Transcript)
	}
}

func TestStrongTurnUsesModelAndWarms(t *testing.T) {
	c := replyWith("What would the rollout timeline look like for a team our size?")
	o, _, _ := newTestOrchestrator(c)
	id := start(t, o, persona.KeyDecision)

	res, err := o.HandleTurn(context.Background(), id, strongMessage)
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if res.Analysis.OverallScore < 5 {
		t.Fatalf("score = %d", res.Analysis.OverallScore)
	}
	if res.Source != domain.SourceModel || res.Reply != "What would the rollout timeline look like for a team our size?" {
		t.Fatalf("unexpected reply %q (%s)", res.Reply, res.Source)
	}
	if res.State.Engagement != domain.EngagementWarm {
		t.Fatalf("engagement = %s, want warm", res.State.Engagement)
	}

	sent := c.messages[0]
	if sent[0].Role != domain.RoleSystem || !strings.Contains(sent[0].Content, "Decision Maker") {
		t.Fatalf("system prompt missing persona: %+v", sent[0])
	}
	if last := sent[len(sent)-1]; last.Role != domain.RoleUser || last.Content != strongMessage {
		t.Fatalf("last message should be the user turn, got %+v", last)
	}
}

func TestColdSessionEndsWithReport(t *testing.T) {
	hist := &fakeHistory{prior: []domain.PitchRecord{
		{Report: &domain.TrainingReport{AverageResponseQuality: 2}},
		{Report: &domain.TrainingReport{AverageResponseQuality: 2}},
		{Report: &domain.TrainingReport{AverageResponseQuality: 2}},
	}}
	o, _, _ := newTestOrchestrator(replyWith("unused reply text"), WithHistory(hist))
	id := start(t, o, persona.KeySkeptical)
	ctx := context.Background()

	var res TurnResult
	var err error
	for i := 0; i < 4; i++ {
		res, err = o.HandleTurn(ctx, id, "no")
		if err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
	}
	if res.State.Phase != domain.PhaseEnded {
		t.Fatalf("phase = %s, want ended", res.State.Phase)
	}

	if _, err := o.HandleTurn(ctx, id, "one more thing"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}

	o.Wait()
	state, err := o.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if state.Report == nil {
		t.Fatal("report was not attached")
	}
	if state.Report.FinalEngagement != domain.EngagementCold {
		t.Fatalf("final engagement = %s", state.Report.FinalEngagement)
	}
	if !oneOf(report.WeaknessInterest, state.Report.Weaknesses) {
		t.Fatalf("weaknesses = %v", state.Report.Weaknesses)
	}
	if state.Report.GeneratedAt.IsZero() {
		t.Fatal("report not stamped")
	}

	foundInsight := false
	for _, r := range state.Report.Recommendations {
		if strings.Contains(r, "2.0") {
			foundInsight = true
		}
	}
	if !foundInsight {
		t.Fatalf("expected history insight, got %v", state.Report.Recommendations)
	}

	if len(hist.appended) != 1 {
		t.Fatalf("expected one history record, got %d", len(hist.appended))
	}
	rec := hist.appended[0]
	if rec.Kind != domain.PitchKindRoleplay || rec.UserID != "user-1" || rec.Pitch != "no" || rec.Report == nil {
		t.Fatalf("unexpected history record %+v", rec)
	}
}

func TestBusySessionRejectsTurn(t *testing.T) {
	c := replyWith("Tell me why that matters to us today.")
	o, store, locker := newTestOrchestrator(c)
	id := start(t, o, persona.KeyNew)
	ctx := context.Background()

	if ok, _ := locker.TryAcquire(ctx, id); !ok {
		t.Fatal("could not hold the flag")
	}
	if _, err := o.HandleTurn(ctx, id, strongMessage); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	state, _ := store.Get(ctx, id)
	if state.TurnCount != 0 || len(state.Transcript) != 0 {
		t.Fatal("busy rejection must not touch state")
	}

	_ = locker.Release(ctx, id)
	if _, err := o.HandleTurn(ctx, id, strongMessage); err != nil {
		t.Fatalf("turn after release: %v", err)
	}
}

func TestConcurrentTurnsOneWins(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	c := &fakeCompleter{fn: func(int) (string, error) {
		entered <- struct{}{}
		<-release
		return "That sounds interesting, what does it cost us?", nil
	}}
	o, _, _ := newTestOrchestrator(c)
	id := start(t, o, persona.KeyWarm)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := o.HandleTurn(ctx, id, strongMessage)
		done <- err
	}()
	<-entered

	if _, err := o.HandleTurn(ctx, id, strongMessage); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("overlapping turn: expected ErrSessionBusy, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}
}

func TestResetDuringCompletionDiscardsReply(t *testing.T) {
	var o *Orchestrator
	var id string
	c := &fakeCompleter{fn: func(int) (string, error) {
		if _, err := o.Reset(context.Background(), id); err != nil {
			t.Errorf("reset: %v", err)
		}
		return "A reply that arrives after the reset happened.", nil
	}}
	o, _, _ = newTestOrchestrator(c)
	id = start(t, o, persona.KeyDecision)

	if _, err := o.HandleTurn(context.Background(), id, strongMessage); !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession, got %v", err)
	}

	state, err := o.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if state.Generation != 1 || len(state.Transcript) != 0 || state.TurnCount != 0 {
		t.Fatalf("reset state was overwritten: %+v", state)
	}
}

func TestRepetitiveReplyIsReplaced(t *testing.T) {
	repeated := "Our current vendor handles scheduling, billing, reporting and payroll already."
	c := replyWith(repeated)
	o, _, _ := newTestOrchestrator(c)
	id := start(t, o, persona.KeyCompetitor)
	ctx := context.Background()

	first, err := o.HandleTurn(ctx, id, strongMessage)
	if err != nil {
		t.Fatal(err)
	}
	if first.Reply != repeated || first.Source != domain.SourceModel {
		t.Fatalf("first reply = %q (%s)", first.Reply, first.Source)
	}

	second, err := o.HandleTurn(ctx, id, strongMessage)
	if err != nil {
		t.Fatal(err)
	}
	if second.Source != domain.SourceCanned {
		t.Fatalf("repetitive reply should be replaced, got %s", second.Source)
	}
	p := persona.Get(persona.KeyCompetitor)
	if !oneOf(second.Reply, p.CannedResponses) {
		t.Fatalf("replacement %q not a canned response", second.Reply)
	}
	if isRepetitive(second.Reply, []string{repeated}) {
		t.Fatal("replacement is itself repetitive")
	}
}

func TestInvalidRepliesAreReplaced(t *testing.T) {
	for name, text := range map[string]string{
		"too short": "Sure.",
		"banned":    "Great question! How can I help you with that today?",
		"empty":     "   ",
	} {
		t.Run(name, func(t *testing.T) {
			o, _, _ := newTestOrchestrator(replyWith(text))
			id := start(t, o, persona.KeyBudget)
			res, err := o.HandleTurn(context.Background(), id, strongMessage)
			if err != nil {
				t.Fatal(err)
			}
			if res.Source != domain.SourceCanned || !oneOf(res.Reply, persona.Get(persona.KeyBudget).CannedResponses) {
				t.Fatalf("got %q (%s)", res.Reply, res.Source)
			}
		})
	}
}

func TestCompletionFailureFallsBack(t *testing.T) {
	c := &fakeCompleter{fn: func(int) (string, error) {
		return "", errors.New("dial tcp: connection refused")
	}}
	o, _, _ := newTestOrchestrator(c)
	id := start(t, o, persona.KeyTechnical)

	res, err := o.HandleTurn(context.Background(), id, strongMessage)
	if err != nil {
		t.Fatalf("completion errors must not surface: %v", err)
	}
	if res.Source != domain.SourceFallback || !oneOf(res.Reply, persona.Get(persona.KeyTechnical).CannedResponses) {
		t.Fatalf("got %q (%s)", res.Reply, res.Source)
	}
	if res.State.TurnCount != 1 || len(res.State.Transcript) != 2 {
		t.Fatalf("turn not recorded: %+v", res.State)
	}
}

func TestOfflineCompleterUsesCanned(t *testing.T) {
	o, _, _ := newTestOrchestrator(llm.OfflineProvider{})
	id := start(t, o, persona.KeyEmotional)
	res, err := o.HandleTurn(context.Background(), id, strongMessage)
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != domain.SourceFallback {
		t.Fatalf("source = %s", res.Source)
	}
}

func TestRecentCannedNotRepeated(t *testing.T) {
	o, _, _ := newTestOrchestrator(replyWith("unused"))
	id := start(t, o, persona.KeyNew)

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		res, err := o.HandleTurn(context.Background(), id, "no")
		if err != nil {
			t.Fatal(err)
		}
		if seen[res.Reply] {
			t.Fatalf("turn %d repeated a recent line %q", i+1, res.Reply)
		}
		seen[res.Reply] = true
	}
}

func TestSeededRandIsDeterministic(t *testing.T) {
	run := func() []string {
		o, _, _ := newTestOrchestrator(replyWith("unused"))
		id := start(t, o, persona.KeyWarm)
		var replies []string
		for i := 0; i < 3; i++ {
			res, err := o.HandleTurn(context.Background(), id, "no")
			if err != nil {
				t.Fatal(err)
			}
			replies = append(replies, res.Reply)
		}
		return replies
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replies differ at %d: %q vs %q", i, a[i], b[i])
		}
	}
}

func TestUnknownSessionAndPersona(t *testing.T) {
	o, _, _ := newTestOrchestrator(replyWith("unused"))
	ctx := context.Background()

	if _, err := o.HandleTurn(ctx, "missing", "hello"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := o.Reset(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("reset: expected ErrSessionNotFound, got %v", err)
	}

	res, err := o.Start(ctx, "", "not-a-real-key", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.State.PersonaKey != persona.KeyNew {
		t.Fatalf("unknown persona should fall back to new, got %s", res.State.PersonaKey)
	}

	if err := o.Delete(ctx, res.State.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Get(ctx, res.State.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
}

func TestStartWithOpeningPitch(t *testing.T) {
	o, _, _ := newTestOrchestrator(replyWith("Interesting, but how is that different from what we use?"))
	res, err := o.Start(context.Background(), "u", persona.KeyDecision, strongMessage)
	if err != nil {
		t.Fatal(err)
	}
	if res.State.TurnCount != 1 || res.Reply == "" {
		t.Fatalf("opening pitch not processed: %+v", res)
	}
}

// outageStore fails every Get once down is set.
type outageStore struct {
	*session.MemoryStore
	mu   sync.Mutex
	down bool
}

func (s *outageStore) setDown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = true
}

func (s *outageStore) Get(ctx context.Context, id string) (domain.SessionState, error) {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		return domain.SessionState{}, errors.New("redis: connection refused")
	}
	return s.MemoryStore.Get(ctx, id)
}

func TestReloadFailureIsNotStale(t *testing.T) {
	store := &outageStore{MemoryStore: session.NewMemoryStore(16, time.Hour)}
	c := &fakeCompleter{fn: func(int) (string, error) {
		store.setDown()
		return "What would the rollout timeline look like for a team our size?", nil
	}}
	o := New(store, session.NewMemoryLocker(), c, zap.NewNop(), WithReportDelay(0))
	id := start(t, o, persona.KeyDecision)

	_, err := o.HandleTurn(context.Background(), id, strongMessage)
	if err == nil {
		t.Fatal("expected the store failure to surface")
	}
	if errors.Is(err, ErrStaleSession) {
		t.Fatalf("a store outage must not read as a stale session: %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("store error not wrapped: %v", err)
	}
}

func TestDeleteDuringCompletionIsStale(t *testing.T) {
	var o *Orchestrator
	var id string
	c := &fakeCompleter{fn: func(int) (string, error) {
		if err := o.Delete(context.Background(), id); err != nil {
			t.Errorf("delete: %v", err)
		}
		return "What would the rollout timeline look like for a team our size?", nil
	}}
	o, _, _ = newTestOrchestrator(c)
	id = start(t, o, persona.KeyDecision)

	if _, err := o.HandleTurn(context.Background(), id, strongMessage); !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession, got %v", err)
	}
}

package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/util"
	"go.uber.org/zap"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls atomic.Int32
	block chan struct{}
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, _ []domain.ChatMessage, _ *GenerateOptions) (ProviderResult, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ProviderResult{}, ctx.Err()
		}
	}
	if f.err != nil {
		return ProviderResult{}, f.err
	}
	return ProviderResult{Text: f.text, Model: f.name + "-model"}, nil
}

func (f *fakeProvider) Ping(context.Context) bool { return false }

var userMsg = []domain.ChatMessage{{Role: domain.RoleUser, Content: "hello"}}

func TestManagerUsesPrimary(t *testing.T) {
	primary := &fakeProvider{name: "primary", text: "primary reply"}
	fallback := &fakeProvider{name: "fallback", text: "fallback reply"}
	m, err := NewManager(zap.NewNop(), []Provider{primary, fallback})
	if err != nil {
		t.Fatal(err)
	}

	text, meta, err := m.CompleteWithMetadata(context.Background(), userMsg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if text != "primary reply" || meta.Provider != "primary" || meta.UsedFallback {
		t.Fatalf("unexpected result %q %+v", text, meta)
	}
	if fallback.calls.Load() != 0 {
		t.Fatal("fallback should not be called")
	}
}

func TestManagerFallsBackOnce(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: &StatusError{Provider: "primary", StatusCode: 503, Err: errors.New("down")}}
	fallback := &fakeProvider{name: "fallback", text: "fallback reply"}
	m, _ := NewManager(zap.NewNop(), []Provider{primary, fallback})

	text, meta, err := m.CompleteWithMetadata(context.Background(), userMsg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if text != "fallback reply" || !meta.UsedFallback {
		t.Fatalf("unexpected result %q %+v", text, meta)
	}
	if primary.calls.Load() != 1 || fallback.calls.Load() != 1 {
		t.Fatalf("each provider should be tried once: %d %d", primary.calls.Load(), fallback.calls.Load())
	}
}

func TestManagerEmptyReplyIsFailure(t *testing.T) {
	m, _ := NewManager(zap.NewNop(), []Provider{&fakeProvider{name: "p", text: "   "}})
	if _, err := m.Complete(context.Background(), userMsg); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestManagerOpensCircuit(t *testing.T) {
	p := &fakeProvider{name: "p", err: &StatusError{Provider: "p", StatusCode: 500, Err: errors.New("boom")}}
	m, _ := NewManager(zap.NewNop(), []Provider{p}, WithBreakerOptions(util.CircuitBreakerOptions{
		FailureThreshold:    2,
		ResetTimeout:        time.Hour,
		HealthCheckInterval: time.Hour,
		HealthCheck:         func() bool { return false },
	}))

	for i := 0; i < 2; i++ {
		if _, err := m.Complete(context.Background(), userMsg); err == nil {
			t.Fatal("expected failure")
		}
	}
	if m.Status().Circuit.State != util.CircuitStateOpen {
		t.Fatalf("expected open circuit, got %s", m.Status().Circuit.State)
	}
	if _, err := m.Complete(context.Background(), userMsg); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if p.calls.Load() != 2 {
		t.Fatalf("open circuit must not call provider, calls=%d", p.calls.Load())
	}
}

func TestManagerAuthFailureKeepsCircuitClosed(t *testing.T) {
	p := &fakeProvider{name: "p", err: &StatusError{Provider: "p", StatusCode: 401, Err: errors.New("bad key")}}
	m, _ := NewManager(zap.NewNop(), []Provider{p}, WithBreakerOptions(util.CircuitBreakerOptions{FailureThreshold: 1}))

	_, err := m.Complete(context.Background(), userMsg)
	if !IsAuthFailure(err) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if m.Status().Circuit.State != util.CircuitStateClosed {
		t.Fatal("auth failures must not open the circuit")
	}
}

func TestManagerCapsConcurrency(t *testing.T) {
	block := make(chan struct{})
	p := &fakeProvider{name: "p", text: "ok", block: block}
	m, _ := NewManager(zap.NewNop(), []Provider{p}, WithMaxConcurrent(1))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Complete(context.Background(), userMsg)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.Complete(ctx, userMsg); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second call should wait for the slot, got %v", err)
	}

	close(block)
	wg.Wait()
	if p.calls.Load() != 1 {
		t.Fatalf("expected exactly one provider call, got %d", p.calls.Load())
	}
}

func TestNewManagerRequiresProvider(t *testing.T) {
	if _, err := NewManager(zap.NewNop(), []Provider{nil}); err == nil {
		t.Fatal("expected error without providers")
	}
}

func TestOfflineProviderDisablesCompletion(t *testing.T) {
	m, _ := NewManager(zap.NewNop(), []Provider{OfflineProvider{}})
	_, err := m.Complete(context.Background(), userMsg)
	if !errors.Is(err, ErrCompletionDisabled) {
		t.Fatalf("expected ErrCompletionDisabled, got %v", err)
	}
	if m.Status().Circuit.State != util.CircuitStateClosed {
		t.Fatal("offline mode must not open the circuit")
	}
}

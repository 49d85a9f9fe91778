package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/metrics"
	"github.com/kapu/pitch-coach-go/internal/util"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Manager tries its providers in order, once each. A circuit breaker stops
// outbound calls after repeated service failures and a weighted semaphore caps
// concurrent requests.
type Manager struct {
	providers []Provider
	breaker   *util.CircuitBreaker
	sem       *semaphore.Weighted
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

type ManagerOption func(*managerOptions)

type managerOptions struct {
	maxConcurrent int64
	breaker       util.CircuitBreakerOptions
	metrics       *metrics.Metrics
}

func WithMaxConcurrent(n int64) ManagerOption {
	return func(o *managerOptions) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) ManagerOption {
	return func(o *managerOptions) {
		o.metrics = m
	}
}

// WithBreakerOptions overrides the circuit breaker settings. A nil HealthCheck
// is replaced with a ping of the primary provider.
func WithBreakerOptions(b util.CircuitBreakerOptions) ManagerOption {
	return func(o *managerOptions) {
		o.breaker = b
	}
}

// NewManager builds a Manager over the non-nil providers, in order.
func NewManager(logger *zap.Logger, providers []Provider, opts ...ManagerOption) (*Manager, error) {
	active := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("no completion provider configured")
	}

	options := managerOptions{
		maxConcurrent: constants.CompletionDefaults.MaxConcurrent,
		breaker: util.CircuitBreakerOptions{
			FailureThreshold:    constants.CircuitBreakerConfig.FailureThreshold,
			ResetTimeout:        constants.CircuitBreakerConfig.ResetTimeout,
			HealthCheckInterval: constants.CircuitBreakerConfig.HealthCheckInterval,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	m := &Manager{
		providers: active,
		sem:       semaphore.NewWeighted(options.maxConcurrent),
		metrics:   options.metrics,
		logger:    logger,
	}
	if options.breaker.HealthCheck == nil {
		options.breaker.HealthCheck = m.healthCheckPing
	}
	m.breaker = util.NewCircuitBreaker(options.breaker, logger)

	names := make([]string, len(active))
	for i, p := range active {
		names[i] = p.Name()
	}
	logger.Info("Completion providers configured",
		zap.Strings("providers", names),
		zap.Int64("max_concurrent", options.maxConcurrent),
	)
	return m, nil
}

func (m *Manager) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	text, _, err := m.CompleteWithMetadata(ctx, messages, nil)
	return text, err
}

// CompleteWithMetadata returns the first non-empty reply and which provider
// produced it.
func (m *Manager) CompleteWithMetadata(ctx context.Context, messages []domain.ChatMessage, opts *GenerateOptions) (string, GenerateMetadata, error) {
	if !m.breaker.CanExecute() {
		status := m.breaker.Status()
		m.logger.Warn("Completion skipped (circuit OPEN)",
			zap.Int("failure_count", status.FailureCount),
		)
		return "", GenerateMetadata{}, ErrCircuitOpen
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return "", GenerateMetadata{}, fmt.Errorf("waiting for completion slot: %w", err)
	}
	defer m.sem.Release(1)

	var errs []error
	for i, p := range m.providers {
		start := time.Now()
		res, err := p.Generate(ctx, messages, opts)
		if err == nil && strings.TrimSpace(res.Text) == "" {
			err = fmt.Errorf("%w: %s", ErrEmptyResponse, p.Name())
		}
		if err != nil {
			m.metrics.ObserveCompletion(p.Name(), "error", time.Since(start))
			errs = append(errs, err)
			if i+1 < len(m.providers) {
				m.logger.Warn("Completion provider failed, trying next",
					zap.String("provider", p.Name()),
					zap.Error(err),
				)
			}
			continue
		}

		m.metrics.ObserveCompletion(p.Name(), "ok", time.Since(start))
		m.breaker.RecordSuccess()
		return res.Text, GenerateMetadata{
			Provider:     p.Name(),
			Model:        res.Model,
			UsedFallback: i > 0,
		}, nil
	}

	m.recordFailure(errs)
	return "", GenerateMetadata{}, fmt.Errorf("completion failed: %w", errors.Join(errs...))
}

func (m *Manager) recordFailure(errs []error) {
	serviceFailure := false
	rateLimited := false
	for _, err := range errs {
		if IsServiceFailure(err) {
			serviceFailure = true
		}
		if IsRateLimit(err) {
			rateLimited = true
		}
	}
	if !serviceFailure {
		return
	}
	timeout := constants.CircuitBreakerConfig.ResetTimeout
	if rateLimited {
		timeout = constants.CircuitBreakerConfig.RateLimitTimeout
	}
	m.breaker.RecordFailure(timeout)
}

func (m *Manager) healthCheckPing() bool {
	ctx, cancel := context.WithTimeout(context.Background(), constants.CircuitBreakerConfig.HealthCheckTimeout)
	defer cancel()
	return m.providers[0].Ping(ctx)
}

// ManagerStatus is reported by the health endpoint.
type ManagerStatus struct {
	Providers []string                  `json:"providers"`
	Circuit   util.CircuitBreakerStatus `json:"circuit"`
}

func (m *Manager) Status() ManagerStatus {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return ManagerStatus{Providers: names, Circuit: m.breaker.Status()}
}

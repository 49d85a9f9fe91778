package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/pitch-coach-go/internal/analyzer"
	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/metrics"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/prompt"
	"github.com/kapu/pitch-coach-go/internal/report"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
	"github.com/kapu/pitch-coach-go/internal/session"
	"github.com/kapu/pitch-coach-go/internal/util"
	apperrors "github.com/kapu/pitch-coach-go/pkg/errors"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrSessionBusy     = errors.New("session is busy with another turn")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrStaleSession    = errors.New("session was reset while the reply was pending")
)

// History is the slice of the pitch history store the orchestrator needs.
type History interface {
	Append(ctx context.Context, rec domain.PitchRecord) (domain.PitchRecord, error)
	ListByUserPersona(ctx context.Context, userID, personaKey string, kind domain.PitchKind, limit int) ([]domain.PitchRecord, error)
}

// TurnResult is what a caller sees after one user turn.
type TurnResult struct {
	Reply    string               `json:"reply"`
	Source   domain.ReplySource   `json:"source"`
	Analysis domain.InputAnalysis `json:"analysis"`
	State    domain.SessionState  `json:"state"`
}

// Orchestrator runs roleplay turns: analyze, advance, reply, store.
type Orchestrator struct {
	store     session.Store
	locker    session.Locker
	completer llm.Completer
	history   History
	metrics   *metrics.Metrics
	logger    *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	now         func() time.Time
	newID       func() string
	reportDelay time.Duration
	reports     conc.WaitGroup
}

type Option func(*Orchestrator)

// WithRand injects the PRNG used to pick canned lines.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.rng = r
		}
	}
}

func WithHistory(h History) Option {
	return func(o *Orchestrator) {
		o.history = h
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// WithReportDelay sets how long an ended session settles before its report
// is generated.
func WithReportDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.reportDelay = d
		}
	}
}

func New(store session.Store, locker session.Locker, completer llm.Completer, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		locker:      locker,
		completer:   completer,
		logger:      logger,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:         util.NowUTC,
		newID:       uuid.NewString,
		reportDelay: constants.SessionConfig.ReportDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) intN(n int) int {
	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	return o.rng.IntN(n)
}

// Start creates a session for personaKey (unknown keys fall back to the
// default persona). A non-empty opening pitch is processed as the first turn.
func (o *Orchestrator) Start(ctx context.Context, userID, personaKey, openingPitch string) (TurnResult, error) {
	p := persona.Get(personaKey)
	state := domain.NewSessionState(o.newID(), p.Key, o.now())
	state.UserID = userID

	if err := o.store.Save(ctx, state); err != nil {
		return TurnResult{}, fmt.Errorf("save new session: %w", err)
	}

	o.observeSessions()
	o.logger.Info("Roleplay session started",
		zap.String("session_id", state.ID),
		zap.String("persona", p.Key),
	)

	if strings.TrimSpace(openingPitch) == "" {
		return TurnResult{State: state}, nil
	}
	return o.HandleTurn(ctx, state.ID, openingPitch)
}

// Get returns the stored session.
func (o *Orchestrator) Get(ctx context.Context, id string) (domain.SessionState, error) {
	state, err := o.store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return domain.SessionState{}, ErrSessionNotFound
	}
	return state, err
}

// Reset replaces the session with a fresh one under the same id and persona.
// A turn still waiting on the model sees the new generation and discards its
// reply.
func (o *Orchestrator) Reset(ctx context.Context, id string) (domain.SessionState, error) {
	old, err := o.Get(ctx, id)
	if err != nil {
		return domain.SessionState{}, err
	}

	fresh := domain.NewSessionState(old.ID, old.PersonaKey, o.now())
	fresh.UserID = old.UserID
	fresh.Generation = old.Generation + 1

	if err := o.store.Save(ctx, fresh); err != nil {
		return domain.SessionState{}, fmt.Errorf("save reset session: %w", err)
	}
	o.logger.Info("Roleplay session reset",
		zap.String("session_id", id),
		zap.Int64("generation", fresh.Generation),
	)
	return fresh, nil
}

// Delete removes the session entirely.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if _, err := o.Get(ctx, id); err != nil {
		return err
	}
	if err := o.store.Delete(ctx, id); err != nil {
		return err
	}
	o.observeSessions()
	return nil
}

// observeSessions publishes the live session count when the store knows it.
func (o *Orchestrator) observeSessions() {
	if counter, ok := o.store.(interface{ Len() int }); ok {
		o.metrics.SetActiveSessions(counter.Len())
	}
}

// HandleTurn processes one user message. Completion failures never surface:
// the prospect answers from its canned pool instead.
func (o *Orchestrator) HandleTurn(ctx context.Context, id, message string) (TurnResult, error) {
	tracer := otel.Tracer("orchestrator/HandleTurn")
	ctx, span := tracer.Start(ctx, "HandleTurn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id))

	if util.RuneLen(message) > constants.AIInputLimits.MaxPitchLength {
		return TurnResult{}, apperrors.NewValidationError("message is too long", "message", util.RuneLen(message))
	}

	acquired, err := o.locker.TryAcquire(ctx, id)
	if err != nil {
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("acquire session flag: %w", err)
	}
	if !acquired {
		return TurnResult{}, ErrSessionBusy
	}
	defer func() {
		if err := o.locker.Release(context.WithoutCancel(ctx), id); err != nil {
			o.logger.Warn("Failed to release session flag", zap.String("session_id", id), zap.Error(err))
		}
	}()

	state, err := o.Get(ctx, id)
	if err != nil {
		return TurnResult{}, err
	}
	if state.Ended() {
		return TurnResult{}, ErrSessionEnded
	}

	p := persona.Get(state.PersonaKey)
	message = strings.TrimSpace(message)
	analysis := analyzer.Analyze(message)

	next := session.Advance(state, analysis, p)
	recorded := analysis
	next.Transcript = append(next.Transcript, domain.Turn{
		Speaker:  domain.SpeakerUser,
		Text:     message,
		Analysis: &recorded,
	})

	reply, source := o.reply(ctx, next, p, analysis, message)

	// The model call is the only wait in a turn; a reset during it wins.
	current, err := o.store.Get(ctx, id)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("reload session: %w", err)
	}
	if err != nil || current.Generation != state.Generation {
		o.logger.Info("Discarding stale reply",
			zap.String("session_id", id),
			zap.Int64("generation", state.Generation),
		)
		return TurnResult{}, ErrStaleSession
	}

	if source != domain.SourceModel {
		next.RecentCanned = rememberCanned(next.RecentCanned, reply)
	}
	next.Transcript = append(next.Transcript, domain.Turn{
		Speaker: domain.SpeakerProspect,
		Text:    reply,
		Source:  source,
	})
	next.UpdatedAt = o.now()

	if err := o.store.Save(ctx, next); err != nil {
		span.RecordError(err)
		return TurnResult{}, fmt.Errorf("save session: %w", err)
	}

	o.metrics.IncTurn(p.Key, string(source))
	span.SetAttributes(
		attribute.Int("turn", next.TurnCount),
		attribute.String("phase", string(next.Phase)),
		attribute.String("reply.source", string(source)),
	)

	o.logger.Debug("Roleplay turn processed",
		zap.String("session_id", id),
		zap.Int("turn", next.TurnCount),
		zap.Int("score", analysis.OverallScore),
		zap.String("engagement", string(next.Engagement)),
		zap.String("phase", string(next.Phase)),
		zap.String("source", string(source)),
	)

	if next.Ended() {
		o.scheduleReport(next.ID, next.Generation)
	}

	return TurnResult{
		Reply:    reply,
		Source:   source,
		Analysis: analysis,
		State:    next,
	}, nil
}

// reply picks the prospect's line for this turn. Poor input skips the model.
func (o *Orchestrator) reply(ctx context.Context, state domain.SessionState, p domain.PersonaProfile, analysis domain.InputAnalysis, message string) (string, domain.ReplySource) {
	if analyzer.IsPoor(analysis, constants.ReplyValidation.PoorScoreCeiling) {
		return o.pick(concernPool(p), state), domain.SourceConcern
	}

	text, err := o.completer.Complete(ctx, prompt.RoleplayMessages(p, state, message))
	if err != nil {
		reason := reasonError
		if errors.Is(err, llm.ErrCompletionDisabled) {
			reason = reasonDisabled
		} else {
			o.logger.Warn("Completion failed, using canned reply",
				zap.String("session_id", state.ID),
				zap.Error(err),
			)
		}
		o.metrics.IncFallback(string(reason))
		return o.pick(p.CannedResponses, state), domain.SourceFallback
	}

	cleaned, reason := validateReply(text, state.RecentProspectTurns(constants.SessionConfig.RecentProspect))
	if reason != reasonNone {
		o.logger.Debug("Model reply rejected",
			zap.String("session_id", state.ID),
			zap.String("reason", string(reason)),
			zap.String("reply", util.TruncateString(cleaned, 120)),
		)
		o.metrics.IncFallback(string(reason))
		return o.pick(p.CannedResponses, state), domain.SourceCanned
	}
	return cleaned, domain.SourceModel
}

func (o *Orchestrator) scheduleReport(id string, generation int64) {
	o.reports.Go(func() {
		if o.reportDelay > 0 {
			time.Sleep(o.reportDelay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.generateReport(ctx, id, generation); err != nil {
			o.logger.Warn("Training report generation failed",
				zap.String("session_id", id),
				zap.Error(err),
			)
		}
	})
}

func (o *Orchestrator) generateReport(ctx context.Context, id string, generation int64) error {
	state, err := o.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load ended session: %w", err)
	}
	if state.Generation != generation || !state.Ended() || state.Report != nil {
		return nil
	}

	p := persona.Get(state.PersonaKey)
	rep := report.Summarize(state.Transcript, state, p)
	rep.GeneratedAt = o.now()

	if o.history != nil && state.UserID != "" {
		prior, err := o.history.ListByUserPersona(ctx, state.UserID, p.Key, domain.PitchKindRoleplay, constants.ReportConfig.HistoryLookbackSize)
		if err != nil {
			o.logger.Warn("Failed to load persona history", zap.String("session_id", id), zap.Error(err))
		} else {
			rep = report.WithHistory(rep, prior)
		}
	}

	current, err := o.store.Get(ctx, id)
	if err != nil || current.Generation != generation {
		return nil
	}
	current.Report = &rep
	if err := o.store.Save(ctx, current); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	o.metrics.IncReport()

	o.logger.Info("Training report generated",
		zap.String("session_id", id),
		zap.Float64("average_quality", rep.AverageResponseQuality),
		zap.Int("weaknesses", len(rep.Weaknesses)),
	)

	if o.history != nil && state.UserID != "" {
		rec := domain.PitchRecord{
			UserID:     state.UserID,
			Kind:       domain.PitchKindRoleplay,
			Pitch:      openingPitch(state.Transcript),
			PersonaKey: p.Key,
			Report:     &rep,
		}
		if _, err := o.history.Append(ctx, rec); err != nil {
			o.logger.Warn("Failed to save roleplay history", zap.String("session_id", id), zap.Error(err))
		}
	}
	return nil
}

func openingPitch(transcript []domain.Turn) string {
	for _, t := range transcript {
		if t.Speaker == domain.SpeakerUser {
			return t.Text
		}
	}
	return ""
}

// Wait blocks until pending reports are written.
func (o *Orchestrator) Wait() {
	o.reports.Wait()
}

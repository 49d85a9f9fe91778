package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/metrics"
	"github.com/kapu/pitch-coach-go/internal/persona"
	"github.com/kapu/pitch-coach-go/internal/prompt"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
	"github.com/kapu/pitch-coach-go/internal/util"
	apperrors "github.com/kapu/pitch-coach-go/pkg/errors"
)

const (
	minRating = 0
	maxRating = 10

	previewRunes = 200
)

// greedy on purpose: the first '{' to the last '}'
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Recorder persists evaluated pitches.
type Recorder interface {
	Append(ctx context.Context, rec domain.PitchRecord) (domain.PitchRecord, error)
}

type Request struct {
	UserID     string `json:"-"`
	Pitch      string `json:"pitch"`
	PersonaKey string `json:"persona"`
	CoachTone  string `json:"coachTone"`
}

type Result struct {
	Feedback domain.FeedbackResult `json:"feedback"`
	RecordID string                `json:"recordId,omitempty"`
	Warning  string                `json:"warning,omitempty"`
}

type Service struct {
	completer llm.Completer
	history   Recorder
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.history = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(completer llm.Completer, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		completer: completer,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate asks the coach model for a structured verdict on one pitch.
func (s *Service) Evaluate(ctx context.Context, req Request) (Result, error) {
	tracer := otel.Tracer("feedback/Evaluate")
	ctx, span := tracer.Start(ctx, "Evaluate")
	defer span.End()

	pitch := strings.TrimSpace(req.Pitch)
	if pitch == "" {
		s.metrics.IncFeedback("invalid")
		return Result{}, apperrors.NewValidationError("pitch is required", "pitch", req.Pitch)
	}

	p := persona.Get(req.PersonaKey)
	tone := persona.Tone(req.CoachTone)
	span.SetAttributes(
		attribute.String("persona", p.Key),
		attribute.String("coach_tone", tone.Key),
	)

	raw, err := s.completer.Complete(ctx, prompt.FeedbackMessages(tone, p, pitch))
	if err != nil {
		span.RecordError(err)
		s.metrics.IncFeedback("completion_error")
		s.logger.Warn("Feedback completion failed",
			zap.String("persona", p.Key),
			zap.Error(err),
		)
		return Result{}, apperrors.NewServiceError("failed to get feedback", "feedback", "complete", err)
	}

	fb, err := ParseFeedback(raw)
	if err != nil {
		span.RecordError(err)
		s.metrics.IncFeedback("parse_error")
		s.logger.Warn("Feedback reply was not usable JSON",
			zap.String("preview", util.TruncateString(raw, previewRunes)),
			zap.Error(err),
		)
		return Result{}, err
	}
	s.metrics.IncFeedback("ok")

	res := Result{Feedback: fb}
	if req.UserID == "" || s.history == nil {
		return res, nil
	}

	rec, err := s.history.Append(ctx, domain.PitchRecord{
		UserID:     req.UserID,
		Kind:       domain.PitchKindFeedback,
		Pitch:      pitch,
		PersonaKey: p.Key,
		CoachTone:  tone.Key,
		Feedback:   &fb,
	})
	if err != nil {
		s.logger.Warn("Failed to save pitch history",
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		res.Warning = "Feedback was generated but could not be saved to your history."
		return res, nil
	}
	res.RecordID = rec.ID
	return res, nil
}

// ParseFeedback pulls the JSON object out of a coach reply. A malformed
// object gets one repair attempt. Every rating must be present; nothing is
// fabricated when the model leaves one out.
func ParseFeedback(raw string) (domain.FeedbackResult, error) {
	match := jsonObjectPattern.FindString(raw)
	if match == "" {
		return domain.FeedbackResult{}, apperrors.NewParseError("feedback reply contained no JSON object", util.TruncateString(raw, previewRunes), nil)
	}
	preview := util.TruncateString(match, previewRunes)

	var wire feedbackWire
	if err := json.Unmarshal([]byte(match), &wire); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(match)
		if repairErr != nil {
			return domain.FeedbackResult{}, apperrors.NewParseError("feedback JSON could not be parsed", preview, err)
		}
		wire = feedbackWire{}
		if err := json.Unmarshal([]byte(repaired), &wire); err != nil {
			return domain.FeedbackResult{}, apperrors.NewParseError("feedback JSON could not be parsed", preview, fmt.Errorf("after repair: %w", err))
		}
	}

	if missing := wire.missingRatings(); len(missing) > 0 {
		return domain.FeedbackResult{}, apperrors.NewParseError("feedback is missing ratings: "+strings.Join(missing, ", "), preview, nil)
	}

	return domain.FeedbackResult{
		Confidence:     clampRating(*wire.Confidence),
		Clarity:        clampRating(*wire.Clarity),
		Structure:      clampRating(*wire.Structure),
		Authenticity:   clampRating(*wire.Authenticity),
		Persuasiveness: clampRating(*wire.Persuasiveness),
		StrongestLine:  wire.StrongestLine,
		WeakestLine:    wire.WeakestLine,
		Comments:       wire.Comments,
	}, nil
}

// feedbackWire is the reply shape as models actually send it: ratings may be
// absent or quoted.
type feedbackWire struct {
	Confidence     *rating `json:"confidence"`
	Clarity        *rating `json:"clarity"`
	Structure      *rating `json:"structure"`
	Authenticity   *rating `json:"authenticity"`
	Persuasiveness *rating `json:"persuasiveness"`
	StrongestLine  string  `json:"strongestLine"`
	WeakestLine    string  `json:"weakestLine"`
	Comments       string  `json:"comments"`
}

func (w feedbackWire) missingRatings() []string {
	var missing []string
	for _, f := range []struct {
		name string
		val  *rating
	}{
		{"confidence", w.Confidence},
		{"clarity", w.Clarity},
		{"structure", w.Structure},
		{"authenticity", w.Authenticity},
		{"persuasiveness", w.Persuasiveness},
	} {
		if f.val == nil {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// rating accepts 8, 8.5 and "8".
type rating float64

func (r *rating) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("rating %s is not a number", data)
	}
	*r = rating(v)
	return nil
}

func clampRating(r rating) float64 {
	return util.Clamp(float64(r), minRating, maxRating)
}

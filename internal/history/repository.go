package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kapu/pitch-coach-go/internal/constants"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/service/database"
	"github.com/kapu/pitch-coach-go/internal/util"
)

var ErrMissingUser = errors.New("history record has no user id")

// Repository is the append-only pitch history store.
type Repository struct {
	db      *sql.DB
	dialect database.Dialect
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Repository)

func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

func NewRepository(svc *database.Service, logger *zap.Logger, opts ...Option) *Repository {
	r := &Repository{
		db:      svc.DB(),
		dialect: svc.Dialect(),
		now:     util.NowUTC,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Migrate creates the pitch_history table and its index when absent.
func (r *Repository) Migrate(ctx context.Context) error {
	jsonType := "TEXT"
	if r.dialect == database.DialectPostgres {
		jsonType = "JSONB"
	}

	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS pitch_history (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			kind       TEXT NOT NULL,
			pitch      TEXT NOT NULL,
			persona    TEXT NOT NULL,
			coach_tone TEXT NOT NULL DEFAULT '',
			feedback   %[1]s,
			report     %[1]s,
			created_at BIGINT NOT NULL
		)`, jsonType),
		`CREATE INDEX IF NOT EXISTS idx_pitch_history_user_created
			ON pitch_history (user_id, created_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate pitch_history: %w", err)
		}
	}

	r.logger.Info("Pitch history schema ready", zap.String("dialect", string(r.dialect)))
	return nil
}

// Append stores rec, assigning an ID and timestamp when they are missing.
func (r *Repository) Append(ctx context.Context, rec domain.PitchRecord) (domain.PitchRecord, error) {
	if strings.TrimSpace(rec.UserID) == "" {
		return rec, ErrMissingUser
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}

	feedbackJSON, err := nullableJSON(rec.Feedback)
	if err != nil {
		return rec, fmt.Errorf("failed to encode feedback: %w", err)
	}
	reportJSON, err := nullableJSON(rec.Report)
	if err != nil {
		return rec, fmt.Errorf("failed to encode report: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO pitch_history (id, user_id, kind, pitch, persona, coach_tone, feedback, report, created_at)
		VALUES (%s)`, r.placeholders(9))

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, string(rec.Kind), rec.Pitch, rec.PersonaKey, rec.CoachTone,
		feedbackJSON, reportJSON, rec.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return rec, fmt.Errorf("failed to insert pitch history: %w", err)
	}

	r.logger.Debug("Pitch history appended",
		zap.String("id", rec.ID),
		zap.String("user_id", rec.UserID),
		zap.String("kind", string(rec.Kind)),
	)
	return rec, nil
}

// ListByUser returns the user's records, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.PitchRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, kind, pitch, persona, coach_tone, feedback, report, created_at
		FROM pitch_history
		WHERE user_id = %s
		ORDER BY created_at DESC, id DESC
		LIMIT %s`, r.dialect.Placeholder(1), r.dialect.Placeholder(2))

	return r.query(ctx, query, userID, normalizeLimit(limit))
}

// ListByUserPersona narrows ListByUser to one persona and record kind.
func (r *Repository) ListByUserPersona(ctx context.Context, userID, personaKey string, kind domain.PitchKind, limit int) ([]domain.PitchRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, kind, pitch, persona, coach_tone, feedback, report, created_at
		FROM pitch_history
		WHERE user_id = %s AND persona = %s AND kind = %s
		ORDER BY created_at DESC, id DESC
		LIMIT %s`,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.Placeholder(3), r.dialect.Placeholder(4))

	return r.query(ctx, query, userID, personaKey, string(kind), normalizeLimit(limit))
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]domain.PitchRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pitch history: %w", err)
	}
	defer rows.Close()

	var records []domain.PitchRecord
	for rows.Next() {
		var (
			rec          domain.PitchRecord
			kind         string
			feedbackJSON sql.NullString
			reportJSON   sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &kind, &rec.Pitch, &rec.PersonaKey, &rec.CoachTone,
			&feedbackJSON, &reportJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pitch history: %w", err)
		}
		rec.Kind = domain.PitchKind(kind)
		rec.CreatedAt = time.UnixMicro(createdAt).UTC()

		if feedbackJSON.Valid {
			var fb domain.FeedbackResult
			if err := json.Unmarshal([]byte(feedbackJSON.String), &fb); err != nil {
				r.logger.Warn("Skipping unreadable feedback column", zap.String("id", rec.ID), zap.Error(err))
			} else {
				rec.Feedback = &fb
			}
		}
		if reportJSON.Valid {
			var rep domain.TrainingReport
			if err := json.Unmarshal([]byte(reportJSON.String), &rep); err != nil {
				r.logger.Warn("Skipping unreadable report column", zap.String("id", rec.ID), zap.Error(err))
			} else {
				rec.Report = &rep
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pitch history: %w", err)
	}
	return records, nil
}

func (r *Repository) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = r.dialect.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

func nullableJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return constants.HistoryConfig.DefaultLimit
	}
	return util.Min(limit, constants.HistoryConfig.MaxLimit)
}

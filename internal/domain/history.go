package domain

import "time"

type PitchKind string

const (
	PitchKindFeedback PitchKind = "feedback"
	PitchKindRoleplay PitchKind = "roleplay"
)

// PitchRecord is one append-only history entry for a user.
type PitchRecord struct {
	ID         string          `json:"id"`
	UserID     string          `json:"uid"`
	Kind       PitchKind       `json:"kind"`
	Pitch      string          `json:"pitch"`
	PersonaKey string          `json:"persona"`
	CoachTone  string          `json:"coachTone,omitempty"`
	Feedback   *FeedbackResult `json:"feedback,omitempty"`
	Report     *TrainingReport `json:"report,omitempty"`
	CreatedAt  time.Time       `json:"timestamp"`
}
